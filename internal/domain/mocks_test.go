package domain_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidbz/livegpt/internal/domain"
)

// mockRegistry is a mock implementation of ProviderRegistry for testing.
type mockRegistry struct {
	providers map[string]domain.Provider
	getError  error
}

func newMockRegistry(providers ...domain.Provider) *mockRegistry {
	m := &mockRegistry{
		providers: make(map[string]domain.Provider),
	}
	for _, p := range providers {
		m.providers[p.Name()] = p
	}
	return m
}

func (m *mockRegistry) Register(_ context.Context, provider domain.Provider) error {
	m.providers[provider.Name()] = provider
	return nil
}

func (m *mockRegistry) Get(_ context.Context, providerName string) (domain.Provider, error) {
	if m.getError != nil {
		return nil, m.getError
	}

	provider, exists := m.providers[providerName]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", providerName)
	}
	return provider, nil
}

func (m *mockRegistry) List(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names, nil
}

func (m *mockRegistry) GetByModel(ctx context.Context, model string) (domain.Provider, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	for _, provider := range m.providers {
		if provider.IsModelSupported(ctx, model) {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("no provider found for model: %s", model)
}

// mockProvider is a mock implementation of Provider for testing.
type mockProvider struct {
	name            string
	completeFunc    func(ctx context.Context, req *domain.CompletionRequest) (string, error)
	openStreamFunc  func(ctx context.Context, req *domain.CompletionRequest) (domain.FrameStream, error)
	supportedModels map[string]struct{}

	mu       sync.Mutex
	calls    int
	requests []*domain.CompletionRequest
}

func (m *mockProvider) record(req *domain.CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) lastRequest() *domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (m *mockProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	m.record(req)
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return "test response", nil
}

func (m *mockProvider) OpenStream(ctx context.Context, req *domain.CompletionRequest) (domain.FrameStream, error) {
	m.record(req)
	if m.openStreamFunc != nil {
		return m.openStreamFunc(ctx, req)
	}
	return newScriptedStream(ctx, dataFrame("test"), domain.Frame{Data: domain.DoneSentinel}), nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) IsModelSupported(_ context.Context, model string) bool {
	if m.supportedModels == nil {
		return true
	}
	_, supported := m.supportedModels[model]
	return supported
}

func (m *mockProvider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(m.supportedModels))
	for model := range m.supportedModels {
		models = append(models, model)
	}
	return models
}

// scriptedStream replays a fixed frame list, then ends with err (nil for a clean EOF).
type scriptedStream struct {
	ctx    context.Context
	frames []domain.Frame
	err    error
	pos    int
	cur    domain.Frame

	// gate, when set, is received from before each frame is delivered.
	gate chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedStream(ctx context.Context, frames ...domain.Frame) *scriptedStream {
	return &scriptedStream{
		ctx:    ctx,
		frames: frames,
		closed: make(chan struct{}),
	}
}

func (s *scriptedStream) withError(err error) *scriptedStream {
	s.err = err
	return s
}

func (s *scriptedStream) Next() bool {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			return false
		case <-s.closed:
			return false
		}
	}
	if s.ctx.Err() != nil || s.pos >= len(s.frames) {
		return false
	}
	s.cur = s.frames[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Frame() domain.Frame {
	return s.cur
}

func (s *scriptedStream) Err() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.pos < len(s.frames) {
		return nil
	}
	return s.err
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// dataFrame builds the wire frame for one content delta.
func dataFrame(delta string) domain.Frame {
	return domain.Frame{
		Data: fmt.Sprintf(`{"id":"chatcmpl-1","model":"gpt-4","choices":[{"index":0,"delta":{"content":%q}}]}`, delta),
	}
}

// streamingProvider returns a provider whose OpenStream replays stream bound
// to the session context, the way a real connection would be.
func streamingProvider(stream *scriptedStream) *mockProvider {
	return &mockProvider{
		name: "mock",
		openStreamFunc: func(ctx context.Context, _ *domain.CompletionRequest) (domain.FrameStream, error) {
			stream.ctx = ctx
			return stream, nil
		},
	}
}

// recordingPublisher captures published event types.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// passthroughTrimmer returns its input unchanged, or err when set.
type passthroughTrimmer struct {
	err error
}

func (t *passthroughTrimmer) Trim(_ context.Context, messages []domain.Message, _ domain.TrimOptions) ([]domain.Message, error) {
	if t.err != nil {
		return nil, t.err
	}
	return messages, nil
}

// collect drains a handle into a slice.
func collect(handle *domain.SessionHandle) []domain.SessionEvent {
	var events []domain.SessionEvent
	for event := range handle.Events() {
		events = append(events, event)
	}
	return events
}
