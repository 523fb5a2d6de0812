package fiscalperiod

import (
	"github.com/bistrokit/stockbook/internal/fiscalperiod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fiscalperiod.service",
	fx.Provide(service.NewService),
)
