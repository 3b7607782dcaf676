package domain

import "context"

// LLMProvider is the interface for chat model backends.
type LLMProvider interface {
	// Chat sends a chat request and returns the model's response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's configured name.
	Name() string
}
