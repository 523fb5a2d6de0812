package recipe

import (
	"github.com/bistrokit/stockbook/internal/recipe/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("recipe.repository",
	fx.Provide(repository.Provide),
)
