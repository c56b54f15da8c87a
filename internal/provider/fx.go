package provider

import (
	"github.com/mhminhas/thinklab/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provider",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.OpenAIAPIKey == "" {
		log.Warn("no provider credentials configured, using static provider")
		return Static{}
	}
	return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, log)
}
