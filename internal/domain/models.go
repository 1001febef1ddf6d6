package domain

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleApp marks presentation-only annotations that are never sent upstream.
	RoleApp = "app"
)

// Message represents a chat message. Order within a conversation is significant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParameterSet holds the per-session call parameters. It is treated as immutable
// once a session starts.
type ParameterSet struct {
	APIKey              string
	Model               string
	Temperature         float64
	InitialSystemPrompt string
}

// CompletionRequest is the outbound request body sent to the remote service.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`

	// APIKey is the bearer credential; it never appears in the body.
	APIKey string `json:"-"`
}

// StreamChunk is the typed form of one push-protocol frame.
// Done chunks carry no choices.
type StreamChunk struct {
	ID      string        `json:"id,omitempty"`
	Done    bool          `json:"done"`
	Choices []ChunkChoice `json:"choices,omitempty"`
	Model   string        `json:"model,omitempty"`
}

// ChunkChoice is one entry of a chunk's choices array.
type ChunkChoice struct {
	Delta        ChunkDelta `json:"delta"`
	Index        int        `json:"index"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental content of a choice.
type ChunkDelta struct {
	Content string `json:"content"`
}

// Frame is one raw unit of the push-protocol stream.
type Frame struct {
	// Event is the SSE event type; empty for ordinary messages.
	Event string
	// Data is the frame payload as received.
	Data string
}

// FrameEventError is the SSE event type a transport uses to deliver error payloads.
const FrameEventError = "error"

// TrimOptions configures a HistoryTrimmer run.
type TrimOptions struct {
	MaxTokens                int
	PreserveFirstUserMessage bool
	PreserveSystemPrompt     bool
}

// ChatSettings contains process-wide chat defaults.
type ChatSettings struct {
	DefaultModel             string  `env:"CHAT_DEFAULT_MODEL"               envDefault:"gpt-4"`
	DefaultTemperature       float64 `env:"CHAT_TEMPERATURE"                 envDefault:"0.7"`
	MaxContextTokens         int     `env:"CHAT_MAX_CONTEXT_TOKENS"          envDefault:"2048"`
	PreserveFirstUserMessage bool    `env:"CHAT_PRESERVE_FIRST_USER_MESSAGE" envDefault:"true"`
	PreserveSystemPrompt     bool    `env:"CHAT_PRESERVE_SYSTEM_PROMPT"      envDefault:"true"`
	SystemPrompt             string  `env:"CHAT_SYSTEM_PROMPT"`
	// DoneOnPartialError emits done instead of staying silent when a transport
	// error arrives after some content has been streamed.
	DoneOnPartialError bool `env:"CHAT_DONE_ON_PARTIAL_ERROR" envDefault:"false"`
}

// TrimOptions derives the trimmer configuration from the settings.
func (s ChatSettings) TrimOptions() TrimOptions {
	return TrimOptions{
		MaxTokens:                s.MaxContextTokens,
		PreserveFirstUserMessage: s.PreserveFirstUserMessage,
		PreserveSystemPrompt:     s.PreserveSystemPrompt,
	}
}
