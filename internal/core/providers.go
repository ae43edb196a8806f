package core

import "context"

// GenConstraints bounds a single generation call.
type GenConstraints struct {
	MaxOutputChars int
	Temperature    float64
}

// Generator is the text-generation collaborator. Implementations may fail;
// callers in this module must stay correct without a generated result.
type Generator interface {
	Generate(ctx context.Context, turns []Turn, constraints GenConstraints) (string, error)
}
