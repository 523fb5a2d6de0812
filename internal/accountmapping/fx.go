package accountmapping

import (
	"github.com/bistrokit/stockbook/internal/accountmapping/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accountmapping.service",
	fx.Provide(service.NewService),
)
