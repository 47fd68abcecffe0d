// Package truncation fits a conversation transcript into a model's context
// window by evicting the oldest turns.
package truncation

import (
	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
)

const (
	// DefaultCeiling applies to models missing from the ceiling table
	DefaultCeiling = 4096

	// DefaultReserved is held back from every ceiling for the response
	DefaultReserved = 1000
)

// DefaultCeilings is the built-in per-model context window table
func DefaultCeilings() map[string]int {
	return map[string]int{
		"gpt-3.5-turbo": 4096,
		"gpt-4":         8192,
		"claude-2":      100000,
	}
}

// TokenCounter counts tokens the way one model family does. Counts from
// different counters are not comparable.
type TokenCounter interface {
	CountTokens(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) CountTokens(text string) int { return f(text) }

// Limits configures the token budget
type Limits struct {
	Ceilings       map[string]int
	DefaultCeiling int
	Reserved       int
}

// Validate rejects any ceiling that leaves no room after the reservation
func (l Limits) Validate() error {
	if l.DefaultCeiling <= l.Reserved {
		return services.BudgetUnsatisfiable("default", l.DefaultCeiling, l.Reserved)
	}
	for model, ceiling := range l.Ceilings {
		if ceiling <= l.Reserved {
			return services.BudgetUnsatisfiable(model, ceiling, l.Reserved)
		}
	}
	return nil
}

// Truncator applies Limits to transcripts
type Truncator struct {
	limits Limits
	logger *zap.Logger
}

// Result describes one truncation
type Result struct {
	Transcript models.Transcript
	Evicted    int
	Tokens     int
	Available  int
}

// New creates a truncator. It fails with BudgetUnsatisfiable when the
// reservation does not fit inside some ceiling.
func New(limits Limits, logger *zap.Logger) (*Truncator, error) {
	if limits.DefaultCeiling == 0 {
		limits.DefaultCeiling = DefaultCeiling
	}
	if limits.Ceilings == nil {
		limits.Ceilings = DefaultCeilings()
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Truncator{limits: limits, logger: logger}, nil
}

// Ceiling returns the context window for model
func (t *Truncator) Ceiling(model string) int {
	if c, ok := t.limits.Ceilings[model]; ok {
		return c
	}
	return t.limits.DefaultCeiling
}

// Truncate fits transcript into model's ceiling minus the reserved response
// tokens. A leading system message is always kept and its cost is charged
// against the budget first. The oldest remaining turns are evicted,
// regardless of role, until the rest fits or a single turn remains. The
// input slice is not modified.
func (t *Truncator) Truncate(transcript models.Transcript, model string, counter TokenCounter) Result {
	return truncate(transcript, t.Ceiling(model)-t.limits.Reserved, counter, t.logger)
}

func truncate(transcript models.Transcript, available int, counter TokenCounter, logger *zap.Logger) Result {
	var system *models.Message
	rest := transcript
	if transcript.HasSystem() {
		sys := transcript[0]
		system = &sys
		available -= counter.CountTokens(sys.Content)
		rest = transcript[1:]
	}

	costs := make([]int, len(rest))
	total := 0
	for i, m := range rest {
		costs[i] = counter.CountTokens(m.Content)
		total += costs[i]
	}

	start := 0
	for total > available && len(rest)-start > 1 {
		total -= costs[start]
		start++
	}

	out := make(models.Transcript, 0, len(rest)-start+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest[start:]...)

	if start > 0 {
		logger.Debug("transcript truncated",
			zap.Int("evicted", start),
			zap.Int("remaining_tokens", total),
			zap.Int("available_tokens", available),
		)
	}

	return Result{
		Transcript: out,
		Evicted:    start,
		Tokens:     total,
		Available:  available,
	}
}
