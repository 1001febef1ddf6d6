// Package trimmer enforces a token budget over a curated chat history.
// Token costs are estimated in memory; no tokenizer files are loaded.
package trimmer

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
)

// Trimmer implements domain.HistoryTrimmer. It keeps the mandatory messages
// and then the most recent contiguous run of turns that fits the budget.
type Trimmer struct {
	estimator Estimator
}

// New creates a trimmer. A nil estimator uses the default heuristic.
func New(estimator Estimator) *Trimmer {
	if estimator == nil {
		estimator = DefaultEstimator{}
	}
	return &Trimmer{estimator: estimator}
}

// Factory adapts New to the lazily resolved domain.TrimmerFactory.
func Factory() domain.HistoryTrimmer {
	return New(nil)
}

// Trim returns an order-preserving subsequence of messages whose estimated cost
// fits opts.MaxTokens. A non-positive budget disables trimming. A leading system
// message is always kept. Without opts.PreserveSystemPrompt its content may be
// shortened to fit; otherwise, and whenever the mandatory messages still do not
// fit, it returns domain.ErrBudgetExceeded.
func (t *Trimmer) Trim(ctx context.Context, messages []domain.Message, opts domain.TrimOptions) ([]domain.Message, error) {
	if opts.MaxTokens <= 0 || len(messages) == 0 {
		return messages, nil
	}

	messages = append([]domain.Message(nil), messages...)
	keep := make([]bool, len(messages))
	used := t.estimator.ReplyOverhead()

	if opts.PreserveFirstUserMessage {
		for i, m := range messages {
			if m.Role == domain.RoleUser {
				keep[i] = true
				used += t.estimator.Message(m)
				break
			}
		}
	}

	if messages[0].Role == domain.RoleSystem {
		cost := t.estimator.Message(messages[0])
		if !opts.PreserveSystemPrompt && used+cost > opts.MaxTokens {
			shortened, ok := t.shorten(messages[0], opts.MaxTokens-used)
			if ok {
				observability.FromContext(ctx).Debug("shortened system prompt to fit budget",
					observability.Int("original_runes", utf8.RuneCountInString(messages[0].Content)),
					observability.Int("kept_runes", utf8.RuneCountInString(shortened.Content)))
				messages[0] = shortened
				cost = t.estimator.Message(shortened)
			}
		}
		keep[0] = true
		used += cost
	}

	if used > opts.MaxTokens {
		return nil, fmt.Errorf("%w: need %d tokens, budget is %d", domain.ErrBudgetExceeded, used, opts.MaxTokens)
	}

	// Walk back from the newest turn; stop at the first one that does not fit
	// so the kept history has no gaps.
	for i := len(messages) - 1; i >= 0; i-- {
		if keep[i] {
			continue
		}
		cost := t.estimator.Message(messages[i])
		if used+cost > opts.MaxTokens {
			break
		}
		keep[i] = true
		used += cost
	}

	trimmed := make([]domain.Message, 0, len(messages))
	for i, m := range messages {
		if keep[i] {
			trimmed = append(trimmed, m)
		}
	}

	if dropped := len(messages) - len(trimmed); dropped > 0 {
		observability.FromContext(ctx).Debug("trimmed chat history",
			observability.Int("dropped", dropped),
			observability.Int("estimated_tokens", used),
			observability.Int("max_tokens", opts.MaxTokens))
	}

	return trimmed, nil
}

// shorten returns m with the longest content prefix whose cost fits allowance.
// It reports false when even empty content does not fit.
func (t *Trimmer) shorten(m domain.Message, allowance int) (domain.Message, bool) {
	runes := []rune(m.Content)
	fits := func(n int) bool {
		return t.estimator.Message(domain.Message{Role: m.Role, Content: string(runes[:n])}) <= allowance
	}
	if !fits(0) {
		return m, false
	}

	// Largest n in [0, len(runes)] with fits(n); cost grows with n.
	n := sort.Search(len(runes)+1, func(i int) bool { return !fits(i) }) - 1
	return domain.Message{Role: m.Role, Content: string(runes[:n])}, true
}

// Estimate returns the estimated cost of sending messages, including reply priming.
func (t *Trimmer) Estimate(messages []domain.Message) int {
	total := t.estimator.ReplyOverhead()
	for _, m := range messages {
		total += t.estimator.Message(m)
	}
	return total
}
