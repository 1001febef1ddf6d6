// Package openai provides the OpenAI completion provider. Single-shot calls go
// through the official SDK; streaming calls open the Server-Sent Events endpoint
// directly and hand raw frames to the domain chunk parser.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
)

const (
	providerName = "openai"

	// maxErrorBodyBytes bounds how much of a failed response is kept as error payload.
	maxErrorBodyBytes = 64 << 10
)

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client     openai.Client
	httpClient *http.Client
	baseURL    string
	name       string
	models     map[string]bool
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("OpenAI base URL is required")
	}
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid OpenAI base URL %q", config.BaseURL)
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL + "/"),
		option.WithMaxRetries(config.MaxRetries),
	}

	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		// No client timeout: a stream lives as long as its context.
		httpClient: &http.Client{},
		baseURL:    baseURL,
		name:       providerName,
		models:     buildModelSet(SupportedModels()),
	}, nil
}

// Complete sends a single-shot completion request and returns the response text.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	if req == nil {
		return "", errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, toSDKParams(req), option.WithAPIKey(req.APIKey))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenStream posts a streaming request and returns the raw frame stream.
func (p *Provider) OpenStream(ctx context.Context, req *domain.CompletionRequest) (domain.FrameStream, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("opening OpenAI stream", observability.Int("messages", len(req.Messages)))

	//nolint:bodyclose // Body is owned by the returned frame stream.
	resp, err := p.executeStreamRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	return newFrameStream(resp), nil
}

// executeStreamRequest creates and executes the HTTP request for streaming.
func (p *Provider) executeStreamRequest(ctx context.Context, req *domain.CompletionRequest) (*http.Response, error) {
	body := streamRequestBody{
		Model:       req.Model,
		Messages:    outboundMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      true,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/chat/completions",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Payload:    string(payload),
		}
	}

	return resp, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return isChatModel(p.models, model)
}

// SupportedModels returns the models this provider registers for routing.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return SupportedModels()
}

// streamRequestBody is the wire body of a streaming request.
type streamRequestBody struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	Stream      bool             `json:"stream"`
}

// outboundMessages drops app annotations, which the API would reject.
func outboundMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != domain.RoleApp {
			out = append(out, m)
		}
	}
	return out
}

// toSDKParams converts domain request to SDK ChatCompletionNewParams.
func toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	outbound := outboundMessages(req.Messages)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(outbound))
	for _, msg := range outbound {
		switch msg.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	//nolint:exhaustruct // OpenAI SDK struct has many optional fields
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
}
