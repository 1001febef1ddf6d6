package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/davidbz/livegpt/internal/observability"
)

// TrimmerFactory builds the history trimmer. It is invoked at most once per
// ChatService, on the first streaming request.
type TrimmerFactory func() HistoryTrimmer

// ChatService runs completion exchanges against the registered providers.
type ChatService struct {
	registry  ProviderRegistry
	curator   *HistoryCurator
	trimmer   func() HistoryTrimmer
	publisher EventPublisher
	settings  ChatSettings
}

// NewChatService creates a new chat service (DI constructor).
func NewChatService(
	registry ProviderRegistry,
	curator *HistoryCurator,
	trimmerFactory TrimmerFactory,
	publisher EventPublisher,
	settings *ChatSettings,
) *ChatService {
	if curator == nil {
		curator = NewHistoryCurator(nil)
	}

	var cfg ChatSettings
	if settings != nil {
		cfg = *settings
	}

	resolve := func() HistoryTrimmer {
		if trimmerFactory == nil {
			return nil
		}
		return trimmerFactory()
	}

	return &ChatService{
		registry:  registry,
		curator:   curator,
		trimmer:   sync.OnceValue(resolve),
		publisher: publisher,
		settings:  cfg,
	}
}

// CreateChatCompletion performs a single-shot completion and returns the trimmed
// response text. A missing API key fails before any network activity.
func (c *ChatService) CreateChatCompletion(
	ctx context.Context,
	messages []Message,
	params ParameterSet,
) (string, error) {
	if params.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	params = c.withDefaults(params)
	ctx = observability.WithModel(ctx, params.Model)

	provider, err := c.registry.GetByModel(ctx, params.Model)
	if err != nil {
		return "", fmt.Errorf("provider routing failed: %w", err)
	}

	content, err := provider.Complete(ctx, &CompletionRequest{
		Model:       params.Model,
		Messages:    messages,
		Temperature: params.Temperature,
		Stream:      false,
		APIKey:      params.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	return strings.TrimSpace(content), nil
}

// StartStreamingCompletion curates and trims the history, then starts a
// streaming session. It returns as soon as the session goroutine is running;
// results arrive through the handle. Cancelling ctx cancels the session.
func (c *ChatService) StartStreamingCompletion(
	ctx context.Context,
	messages []Message,
	params ParameterSet,
) (*SessionHandle, error) {
	if params.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	params = c.withDefaults(params)
	ctx = observability.WithModel(ctx, params.Model)
	logger := observability.FromContext(ctx)

	provider, err := c.registry.GetByModel(ctx, params.Model)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	toSend, err := c.PrepareMessages(ctx, messages, params)
	if err != nil {
		return nil, err
	}

	logger.Debug("prepared messages for streaming",
		observability.Int("input_messages", len(messages)),
		observability.Int("sent_messages", len(toSend)))

	session, err := NewStreamingSession(ctx, provider, &CompletionRequest{
		Model:       params.Model,
		Messages:    toSend,
		Temperature: params.Temperature,
		Stream:      true,
		APIKey:      params.APIKey,
	}, SessionOptions{
		DoneOnPartialError: c.settings.DoneOnPartialError,
		Publisher:          c.publisher,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session.Start(), nil
}

// PrepareMessages returns the curated and trimmed sequence that would be sent upstream.
func (c *ChatService) PrepareMessages(
	ctx context.Context,
	messages []Message,
	params ParameterSet,
) ([]Message, error) {
	prompt := params.InitialSystemPrompt
	if prompt == "" {
		prompt = c.settings.SystemPrompt
	}

	curated := c.curator.Curate(messages, prompt)

	trimmer := c.trimmer()
	if trimmer == nil {
		return nil, errors.New("history trimmer is not configured")
	}

	trimmed, err := trimmer.Trim(ctx, curated, c.settings.TrimOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to trim history: %w", err)
	}

	return trimmed, nil
}

func (c *ChatService) withDefaults(params ParameterSet) ParameterSet {
	if params.Model == "" {
		params.Model = c.settings.DefaultModel
	}
	return params
}
