package ai

import "context"

// CompletionRequest asks the model for a single chat completion.
type CompletionRequest struct {
	System string
	Prompt string
	// JSONMode forces the model to return a single JSON object.
	JSONMode bool
}

// Generator describes a model capable of producing text completions.
// Quiz generation, grading judgments and chat answers all flow through it.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder describes a model capable of turning text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every vector Embed returns.
	Dimension() int
}
