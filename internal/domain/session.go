package domain

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidbz/livegpt/internal/observability"
)

// SessionState is the lifecycle state of a StreamingSession.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionStreaming
	SessionCompleted
	SessionErrored
	SessionCancelled
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionStreaming:
		return "streaming"
	case SessionCompleted:
		return "completed"
	case SessionErrored:
		return "errored"
	case SessionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is absorbing.
func (s SessionState) Terminal() bool {
	return s >= SessionCompleted
}

// SessionEventType identifies the kind of a session event.
type SessionEventType string

const (
	// EventData carries the full accumulated text so far.
	EventData SessionEventType = "data"
	// EventError is terminal and carries a human-readable message.
	EventError SessionEventType = "error"
	// EventDone is terminal and marks a completed stream.
	EventDone SessionEventType = "done"
)

// SessionEvent is one event emitted by a StreamingSession.
type SessionEvent struct {
	Type    SessionEventType
	Text    string
	Message string
}

// Terminal reports whether the event ends the session.
func (e SessionEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// StreamingSession drives one streaming completion from connection to terminal
// state. Sessions are single use.
type StreamingSession struct {
	id        string
	provider  Provider
	req       *CompletionRequest
	publisher EventPublisher

	doneOnPartialError bool

	ctx        context.Context
	cancel     context.CancelFunc
	startOnce  sync.Once
	cancelOnce sync.Once
	cancelled  atomic.Bool

	mu    sync.Mutex
	state SessionState

	// text is only touched by the run goroutine.
	text strings.Builder

	events  chan SessionEvent
	started time.Time
	frames  int
	skipped int
}

// SessionOptions configures a StreamingSession.
type SessionOptions struct {
	// DoneOnPartialError emits done when a transport error follows streamed content.
	DoneOnPartialError bool
	// Publisher receives lifecycle events. Optional.
	Publisher EventPublisher
}

// NewStreamingSession creates an idle session. Call Start to begin streaming.
func NewStreamingSession(
	ctx context.Context,
	provider Provider,
	req *CompletionRequest,
	opts SessionOptions,
) (*StreamingSession, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	id := observability.GenerateSessionID()
	sessionCtx, cancel := context.WithCancel(observability.WithSessionID(ctx, id))

	return &StreamingSession{
		id:                 id,
		provider:           provider,
		req:                req,
		publisher:          opts.Publisher,
		doneOnPartialError: opts.DoneOnPartialError,
		ctx:                sessionCtx,
		cancel:             cancel,
		state:              SessionIdle,
		events:             make(chan SessionEvent),
	}, nil
}

// ID returns the session identifier.
func (s *StreamingSession) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *StreamingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves the session out of Idle and returns its handle. The session runs
// on its own goroutine; Start itself does not block. The caller must drain the
// handle or cancel it, otherwise the producer stays parked on the next event
// with the upstream connection open.
func (s *StreamingSession) Start() *SessionHandle {
	s.startOnce.Do(func() {
		s.started = time.Now()
		if !s.transition(SessionConnecting) {
			close(s.events)
			return
		}
		s.publish("session.started", map[string]interface{}{
			"model":    s.req.Model,
			"provider": s.provider.Name(),
			"messages": len(s.req.Messages),
		})

		go s.run()
	})

	return &SessionHandle{session: s}
}

// Cancel closes the connection. It is idempotent and safe after completion.
func (s *StreamingSession) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelled.Store(true)
		s.transition(SessionCancelled)
		s.cancel()
	})
}

func (s *StreamingSession) run() {
	defer close(s.events)
	defer s.cancel()
	defer func() {
		if s.State() == SessionCancelled {
			s.publish("session.cancelled", s.summary())
		}
	}()

	logger := observability.FromContext(s.ctx)

	stream, err := s.provider.OpenStream(s.ctx, s.req)
	if err != nil {
		s.transportError(transportPayload(err))
		return
	}
	defer stream.Close()

	if !s.transition(SessionStreaming) {
		return
	}

	for stream.Next() {
		if s.handleFrame(stream.Frame()) {
			return
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		logger.Debug("stream read failed", observability.Error(streamErr))
		s.transportError(transportPayload(streamErr))
		return
	}

	s.transportError(ErrStreamClosed.Error())
}

// handleFrame processes one frame and reports whether the session has ended.
func (s *StreamingSession) handleFrame(frame Frame) bool {
	s.frames++

	if frame.Event == FrameEventError {
		s.transportError(frame.Data)
		return true
	}

	chunk, err := ParseChunk(frame.Data)
	if err != nil {
		s.skipped++
		observability.FromContext(s.ctx).Debug("skipping malformed frame",
			observability.Error(err),
			observability.Int("frame", s.frames))
		return false
	}

	if chunk.Done {
		if s.transition(SessionCompleted) {
			s.publish("session.completed", s.summary())
			s.emit(SessionEvent{Type: EventDone})
		}
		return true
	}

	if len(chunk.Choices) == 0 {
		return false
	}

	s.text.WriteString(chunk.Choices[0].Delta.Content)
	return !s.emit(SessionEvent{Type: EventData, Text: s.text.String()})
}

// transportError applies the error policy: surface the message when nothing was
// streamed yet, otherwise let the partial text stand.
func (s *StreamingSession) transportError(payload string) {
	if s.aborted() {
		s.transition(SessionCancelled)
		return
	}

	logger := observability.FromContext(s.ctx)

	if s.text.Len() == 0 {
		message := ErrorMessage(payload)
		if s.transition(SessionErrored) {
			logger.Warn("stream failed before any content", observability.String("error", message))
			s.publish("session.errored", s.summary())
			s.emit(SessionEvent{Type: EventError, Message: message})
		}
		return
	}

	logger.Info("suppressing transport error after partial content",
		observability.Int("text_length", s.text.Len()),
		observability.String("payload", payload))

	if s.doneOnPartialError {
		if s.transition(SessionCompleted) {
			s.publish("session.completed", s.summary())
			s.emit(SessionEvent{Type: EventDone})
		}
		return
	}

	if s.transition(SessionErrored) {
		s.publish("session.errored", s.summary())
	}
}

// emit delivers an event unless the session was cancelled. It reports whether
// the event was handed to the consumer.
func (s *StreamingSession) emit(event SessionEvent) bool {
	if s.aborted() {
		s.transition(SessionCancelled)
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	case s.events <- event:
		return true
	}
}

// aborted reports whether Cancel was called or the caller's context ended.
func (s *StreamingSession) aborted() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

// transition moves to next unless the session is already terminal.
func (s *StreamingSession) transition(next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = next
	return true
}

func (s *StreamingSession) summary() map[string]interface{} {
	return map[string]interface{}{
		"model":          s.req.Model,
		"frames":         s.frames,
		"skipped_frames": s.skipped,
		"text_length":    s.text.Len(),
		"duration_ms":    time.Since(s.started).Milliseconds(),
	}
}

func (s *StreamingSession) publish(eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(s.ctx, eventType, data)
}

func transportPayload(err error) string {
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Payload != "" {
		return transportErr.Payload
	}
	return err.Error()
}

// SessionHandle is the caller's view of a running session.
//
// Events are delivered over an unbuffered channel, so the producer advances
// only as fast as the caller reads. Every handle must either be read until
// Next reports false (or Events finishes) or be released with Cancel.
// Breaking out of Events cancels the session.
type SessionHandle struct {
	session *StreamingSession
}

// ID returns the session identifier.
func (h *SessionHandle) ID() string {
	return h.session.ID()
}

// Next blocks until the next event. It returns false once the session has
// ended or has been cancelled; no event is returned after Cancel.
func (h *SessionHandle) Next() (SessionEvent, bool) {
	event, ok := <-h.session.events
	if !ok || h.session.cancelled.Load() {
		return SessionEvent{}, false
	}
	return event, true
}

// Events returns an iterator over the remaining events. Stopping the
// iteration early cancels the session.
func (h *SessionHandle) Events() iter.Seq[SessionEvent] {
	return func(yield func(SessionEvent) bool) {
		for {
			event, ok := h.Next()
			if !ok {
				return
			}
			if !yield(event) {
				h.Cancel()
				return
			}
		}
	}
}

// Cancel stops the session. Calling it more than once has no further effect.
func (h *SessionHandle) Cancel() {
	h.session.Cancel()
}

// State returns the session's current lifecycle state.
func (h *SessionHandle) State() SessionState {
	return h.session.State()
}
