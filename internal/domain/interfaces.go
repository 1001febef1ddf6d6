package domain

import "context"

// Provider represents a remote completion service.
type Provider interface {
	// Complete sends a single-shot request and returns the full response text.
	Complete(ctx context.Context, req *CompletionRequest) (string, error)

	// OpenStream opens the push-protocol connection for a streaming request.
	// Connection failures and non-success responses are reported as *TransportError.
	OpenStream(ctx context.Context, req *CompletionRequest) (FrameStream, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns the models this provider serves.
	SupportedModels(ctx context.Context) []string
}

// FrameStream iterates over the raw frames of an open push-protocol connection.
type FrameStream interface {
	// Next advances to the next frame. It returns false at end of stream or on error.
	Next() bool

	// Frame returns the current frame. Only valid after Next returns true.
	Frame() Frame

	// Err returns the read error that stopped iteration, nil on clean end of stream.
	Err() error

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves the provider serving the given model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// HistoryTrimmer enforces a token budget over a curated message sequence.
// The result is an order-preserving subsequence of the input.
type HistoryTrimmer interface {
	Trim(ctx context.Context, messages []Message, opts TrimOptions) ([]Message, error)
}

// ConversationStore persists conversation turns by conversation ID.
type ConversationStore interface {
	// Load returns the stored messages in conversation order.
	Load(ctx context.Context, conversationID string) ([]Message, error)

	// Append adds messages to the end of the conversation.
	Append(ctx context.Context, conversationID string, messages ...Message) error
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
