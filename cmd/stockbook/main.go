package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/bistrokit/stockbook/internal/clock"
	"github.com/bistrokit/stockbook/internal/config"
	"github.com/bistrokit/stockbook/internal/logger"
	"github.com/bistrokit/stockbook/internal/migration"
	"github.com/bistrokit/stockbook/internal/observability"
	"github.com/bistrokit/stockbook/internal/scheduler"
	"github.com/bistrokit/stockbook/internal/server"
	"github.com/bistrokit/stockbook/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
