package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	"github.com/mhminhas/thinklab/internal/config"
	"github.com/mhminhas/thinklab/internal/migration"
	"github.com/mhminhas/thinklab/internal/observability"
	"github.com/mhminhas/thinklab/internal/reconciler"
	"github.com/mhminhas/thinklab/internal/server"
	"github.com/mhminhas/thinklab/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		server.Module,
		reconciler.Module,
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
