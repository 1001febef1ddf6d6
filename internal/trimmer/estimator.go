package trimmer

import (
	"unicode/utf8"

	"github.com/davidbz/livegpt/internal/domain"
)

const (
	charsPerToken      = 4
	tokensPerMessage   = 4 // role and framing tokens around each message
	replyPrimingTokens = 3 // every reply is primed with <|start|>assistant<|message|>
)

// Estimator predicts token costs.
type Estimator interface {
	// Message returns the estimated cost of one message.
	Message(m domain.Message) int
	// ReplyOverhead returns the fixed cost added once per request.
	ReplyOverhead() int
}

// DefaultEstimator approximates tokens as one per four characters plus fixed
// per-message framing, which tracks cl100k-style tokenizers for English text.
type DefaultEstimator struct{}

// Message returns the estimated cost of one message.
func (DefaultEstimator) Message(m domain.Message) int {
	return tokensPerMessage + textTokens(m.Role) + textTokens(m.Content)
}

// ReplyOverhead returns the fixed reply priming cost.
func (DefaultEstimator) ReplyOverhead() int {
	return replyPrimingTokens
}

func textTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}
