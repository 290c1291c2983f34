package provider

import (
	"github.com/studyloop/studyloop/internal/config"
	"go.uber.org/fx"
)

// Adapters bundles the two upstream backends in fallback order. New
// providers slot in by implementing Adapter, not by branching elsewhere.
type Adapters struct {
	Primary   Adapter
	Secondary Adapter
}

func provideAdapters(cfg config.Config) Adapters {
	return Adapters{
		Primary:   NewOpenAI(cfg.OpenAIBaseURL),
		Secondary: NewGemini(cfg.GeminiBaseURL),
	}
}

var Module = fx.Module("provider",
	fx.Provide(provideAdapters),
)
