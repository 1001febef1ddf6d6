package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
	"github.com/davidbz/livegpt/internal/provider/openai"
)

const maxRequestBodyBytes = 1 << 20

// Handler handles HTTP requests.
type Handler struct {
	chat          *domain.ChatService
	conversations *domain.ConversationService
	defaultAPIKey string
	settings      domain.ChatSettings
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	chat *domain.ChatService,
	conversations *domain.ConversationService,
	openAIConfig *openai.Config,
	settings *domain.ChatSettings,
) *Handler {
	h := &Handler{
		chat:          chat,
		conversations: conversations,
	}
	if openAIConfig != nil {
		h.defaultAPIKey = openAIConfig.APIKey
	}
	if settings != nil {
		h.settings = *settings
	}
	return h
}

// chatRequest is the body accepted by both chat endpoints.
type chatRequest struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	Model          string           `json:"model,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	SystemPrompt   string           `json:"system_prompt,omitempty"`
	Messages       []domain.Message `json:"messages"`
}

type completionResponse struct {
	Content string `json:"content"`
}

type dataPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// HandleStream relays a streaming session to the client as Server-Sent Events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, params, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	ctx = observability.WithModel(ctx, params.Model)
	logger := observability.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	history, err := h.conversations.History(ctx, req.ConversationID, req.Messages)
	if err != nil {
		logger.Error("failed to load conversation", observability.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	handle, err := h.chat.StartStreamingCompletion(ctx, history, params)
	if err != nil {
		logger.Error("stream failed to start", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	ctx = observability.WithSessionID(ctx, handle.ID())
	logger = observability.FromContext(ctx)
	logger.Info("stream started", observability.Int("messages", len(history)))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", handle.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var text string
	for event := range handle.Events() {
		var writeErr error
		switch event.Type {
		case domain.EventData:
			text = event.Text
			writeErr = writeEvent(w, string(event.Type), dataPayload{Text: event.Text})
		case domain.EventError:
			logger.Warn("stream ended with error", observability.String("error", event.Message))
			writeErr = writeEvent(w, string(event.Type), errorPayload{Message: event.Message})
		case domain.EventDone:
			writeErr = writeEvent(w, string(event.Type), struct{}{})
		}

		if writeErr != nil {
			logger.Info("client went away", observability.Error(writeErr))
			handle.Cancel()
			break
		}
		flusher.Flush()
	}

	state := handle.State()
	logger.Info("stream finished",
		observability.String("state", state.String()),
		observability.Int("text_length", len(text)))

	if state != domain.SessionCancelled && text != "" {
		h.record(ctx, req, text)
	}
}

// HandleCompletion processes single-shot completion requests.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, params, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	ctx = observability.WithModel(ctx, params.Model)
	logger := observability.FromContext(ctx)

	history, err := h.conversations.History(ctx, req.ConversationID, req.Messages)
	if err != nil {
		logger.Error("failed to load conversation", observability.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	content, err := h.chat.CreateChatCompletion(ctx, history, params)
	if err != nil {
		logger.Error("completion failed", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	logger.Info("completion succeeded", observability.Int("content_length", len(content)))
	h.record(ctx, req, content)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(completionResponse{Content: content}); encodeErr != nil {
		logger.Error("failed to encode response", observability.Error(encodeErr))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it.
		return
	}
}

// decodeRequest parses the body and resolves the parameter set. It writes the
// error response itself and reports whether the caller should continue.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, domain.ParameterSet, bool) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return nil, domain.ParameterSet{}, false
	}

	if len(req.Messages) == 0 && req.ConversationID == "" {
		http.Error(w, "messages are required", http.StatusBadRequest)
		return nil, domain.ParameterSet{}, false
	}

	params := domain.ParameterSet{
		APIKey:              h.apiKey(r),
		Model:               req.Model,
		Temperature:         h.settings.DefaultTemperature,
		InitialSystemPrompt: req.SystemPrompt,
	}
	if params.Model == "" {
		params.Model = h.settings.DefaultModel
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}

	return &req, params, true
}

func (h *Handler) apiKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return strings.TrimSpace(token)
	}
	return h.defaultAPIKey
}

// record persists the exchange after the response, even if the client is gone.
func (h *Handler) record(ctx context.Context, req *chatRequest, reply string) {
	ctx = context.WithoutCancel(ctx)
	if err := h.conversations.Record(ctx, req.ConversationID, req.Messages, reply); err != nil {
		observability.FromContext(ctx).Warn("failed to record conversation", observability.Error(err))
	}
}

func writeEvent(w http.ResponseWriter, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrBudgetExceeded):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadGateway
	}
}
