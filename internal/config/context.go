package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/mnemo/pkg/log"
)

// ContextConfig bounds the rolling conversation buffer.
// SummarizationThreshold is expected to sit below MaxContextMessages so a
// summary is usually ready before eviction needs one.
type ContextConfig struct {
	MaxContextMessages     int           `env:"MNEMO_MAX_CONTEXT_MESSAGES" envDefault:"50"`
	SummarizationThreshold int           `env:"MNEMO_SUMMARIZATION_THRESHOLD" envDefault:"30"`
	MaxSummaryLength       int           `env:"MNEMO_MAX_SUMMARY_LENGTH" envDefault:"500"`
	CacheTimeout           time.Duration `env:"MNEMO_CACHE_TIMEOUT" envDefault:"1m"`
}

func NewContextConfig(ctx context.Context) *ContextConfig {
	c := &ContextConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Context config")
	}
	return c
}
