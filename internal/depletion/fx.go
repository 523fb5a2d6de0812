package depletion

import (
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/depletion/service"
)

var Module = fx.Module("depletion.service",
	fx.Provide(service.NewService),
)
