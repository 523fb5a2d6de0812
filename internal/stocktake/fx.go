package stocktake

import (
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/stocktake/service"
)

var Module = fx.Module("stocktake.service",
	fx.Provide(service.NewService),
)
