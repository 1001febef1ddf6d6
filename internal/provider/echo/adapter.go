// Package echo provides an offline provider that echoes the last user message.
// Its stream emits genuine chat-completion wire frames, one word per frame,
// terminated by the [DONE] sentinel, so the full streaming pipeline runs
// without network access.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
)

// Provider implements the domain.Provider interface for offline testing.
type Provider struct {
	name            string
	supportedModels map[string]bool
	frameDelay      time.Duration
}

// Option customises the echo provider.
type Option func(*Provider)

// WithFrameDelay pauses between streamed frames.
func WithFrameDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.frameDelay = d
	}
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		name: providerName,
		supportedModels: map[string]bool{
			modelName: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete returns the echoed reply in one piece.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	if err := p.validate(req); err != nil {
		return "", err
	}

	observability.FromContext(ctx).Debug("echoing request")

	return buildEchoContent(req.Messages), nil
}

// OpenStream returns an in-memory frame stream for the echoed reply.
func (p *Provider) OpenStream(ctx context.Context, req *domain.CompletionRequest) (domain.FrameStream, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Debug("streaming echo request")

	frames, err := buildFrames(req.Model, buildEchoContent(req.Messages))
	if err != nil {
		return nil, err
	}

	return NewFrameStream(ctx, frames, p.frameDelay), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// SupportedModels returns a list of all models this provider supports.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.supportedModels))
	for model := range p.supportedModels {
		models = append(models, model)
	}
	return models
}

func (p *Provider) validate(req *domain.CompletionRequest) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if !p.supportedModels[req.Model] {
		return fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}
	return nil
}

// buildEchoContent replies with the last user message.
func buildEchoContent(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return "You said: " + messages[i].Content
		}
	}
	return ""
}

type wireDelta struct {
	Content string `json:"content"`
}

type wireChoice struct {
	Delta        wireDelta `json:"delta"`
	Index        int       `json:"index"`
	FinishReason *string   `json:"finish_reason"`
}

type wireChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
}

// buildFrames splits content into one data frame per word plus the sentinel.
func buildFrames(model, content string) ([]domain.Frame, error) {
	id := fmt.Sprintf("echo-%d", time.Now().UnixNano())
	words := strings.Fields(content)
	frames := make([]domain.Frame, 0, len(words)+2)

	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		frame, err := encodeChunk(wireChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []wireChoice{{Delta: wireDelta{Content: delta}}},
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	stop := "stop"
	final, err := encodeChunk(wireChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []wireChoice{{FinishReason: &stop}},
	})
	if err != nil {
		return nil, err
	}

	return append(frames, final, domain.Frame{Data: domain.DoneSentinel}), nil
}

func encodeChunk(chunk wireChunk) (domain.Frame, error) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("failed to encode echo chunk: %w", err)
	}
	return domain.Frame{Data: string(data)}, nil
}

// FrameStream replays a fixed list of frames. It stops early when its context
// is cancelled or Close is called.
type FrameStream struct {
	ctx     context.Context
	frames  []domain.Frame
	delay   time.Duration
	pos     int
	current domain.Frame
	err     error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFrameStream creates a stream over frames.
func NewFrameStream(ctx context.Context, frames []domain.Frame, delay time.Duration) *FrameStream {
	return &FrameStream{
		ctx:    ctx,
		frames: frames,
		delay:  delay,
		closed: make(chan struct{}),
	}
}

// Next advances to the next frame.
func (s *FrameStream) Next() bool {
	if s.err != nil || s.pos >= len(s.frames) {
		return false
	}

	if s.pos > 0 && s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		case <-s.closed:
			return false
		}
	}

	select {
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	case <-s.closed:
		return false
	default:
	}

	s.current = s.frames[s.pos]
	s.pos++
	return true
}

// Frame returns the current frame.
func (s *FrameStream) Frame() domain.Frame {
	return s.current
}

// Err returns the context error that stopped the stream, if any.
func (s *FrameStream) Err() error {
	return s.err
}

// Close stops the stream.
func (s *FrameStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
