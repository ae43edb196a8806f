package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/mnemo/pkg/log"
)

type MemoryConfig struct {
	MaxMemoriesPerConversation int `env:"MNEMO_MAX_MEMORIES_PER_CONVERSATION" envDefault:"1000"`

	// RelevanceThreshold is recognized but not consumed by the current
	// ranking logic. Reserved for score-based cutoffs.
	RelevanceThreshold float64 `env:"MNEMO_RELEVANCE_THRESHOLD" envDefault:"0"`

	MemoryRetention time.Duration `env:"MNEMO_MEMORY_RETENTION" envDefault:"720h"`
	PruneInterval   time.Duration `env:"MNEMO_PRUNE_INTERVAL" envDefault:"6h"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Memory config")
	}
	return c
}
