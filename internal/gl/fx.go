package gl

import (
	"github.com/bistrokit/stockbook/internal/gl/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gl.service",
	fx.Provide(service.NewService),
)
