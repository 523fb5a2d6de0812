package costing

import (
	"github.com/bistrokit/stockbook/internal/costing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("costing.service",
	fx.Provide(service.NewService),
)
