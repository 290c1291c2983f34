package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/studyloop/studyloop/internal/account"
	"github.com/studyloop/studyloop/internal/clock"
	"github.com/studyloop/studyloop/internal/config"
	"github.com/studyloop/studyloop/internal/generation"
	"github.com/studyloop/studyloop/internal/keypool"
	"github.com/studyloop/studyloop/internal/ledger"
	"github.com/studyloop/studyloop/internal/logger"
	"github.com/studyloop/studyloop/internal/migration"
	obsmetrics "github.com/studyloop/studyloop/internal/observability/metrics"
	"github.com/studyloop/studyloop/internal/provider"
	"github.com/studyloop/studyloop/internal/quota"
	"github.com/studyloop/studyloop/internal/server"
	"github.com/studyloop/studyloop/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Functional Domains
		account.Module,
		keypool.Module,
		quota.Module,
		provider.Module,
		ledger.Module,
		obsmetrics.Module,
		generation.Module,
		server.Module,
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
