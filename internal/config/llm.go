package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/mnemo/pkg/log"
)

type LLMConfig struct {
	BaseURL     string  `env:"LLM_BASE_URL" envDefault:"https://openrouter.ai/api"`
	APIKey      string  `env:"LLM_API_KEY"`
	Model       string  `env:"LLM_MODEL" envDefault:"meta-llama/llama-3.3-70b-instruct"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.3"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}
