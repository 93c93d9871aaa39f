package services

import (
	"context"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
)

// GenerationService defines the interface for the text-generation backend.
type GenerationService interface {
	// InitModel initializes the generation model on startup.
	InitModel(ctx context.Context, modelName string) error

	// Generate produces a completion for a structured prompt.
	Generate(ctx context.Context, prompt string) (*dialogue.GenerationResult, error)

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error
}
