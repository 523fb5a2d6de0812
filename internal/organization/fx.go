package organization

import (
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/organization/service"
)

var Module = fx.Module("organization.service",
	fx.Provide(service.NewService),
)
