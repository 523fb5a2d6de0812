package audit

import (
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/audit/repository"
	"github.com/bistrokit/stockbook/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
