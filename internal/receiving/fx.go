package receiving

import (
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/receiving/service"
)

var Module = fx.Module("receiving.service",
	fx.Provide(service.NewService),
)
