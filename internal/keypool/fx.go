package keypool

import (
	"github.com/studyloop/studyloop/internal/clock"
	"github.com/studyloop/studyloop/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func providePool(cfg config.Config, routing config.RoutingConfig, clk clock.Clock, log *zap.Logger) *Pool {
	return NewPool(cfg.GeminiPoolKeys, routing.PoolCooldown, clk, log)
}

var Module = fx.Module("keypool",
	fx.Provide(providePool),
	fx.Provide(NewResolver),
)
