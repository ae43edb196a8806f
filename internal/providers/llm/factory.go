package llm

import (
	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
)

// NewGenerator builds the text-generation collaborator from config.
func NewGenerator(cfg *config.LLMConfig) core.Generator {
	return NewOpenAICompatible(cfg)
}
