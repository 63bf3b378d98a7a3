package llm

import "context"

// Client is the interface the agent driver speaks. The concrete
// transport (AI gateway, test fake) is chosen at composition time.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable and the credential works.
	Ping(ctx context.Context) error
}
