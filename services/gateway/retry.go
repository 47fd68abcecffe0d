package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/upb/llm-chat-gateway/services/providers"
)

// ErrorKind classifies a failed generation attempt
type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindTimeout    ErrorKind = "timeout"
	KindStructural ErrorKind = "structural"
	KindCanceled   ErrorKind = "canceled"
)

// Retryable reports whether attempts failing with k may be repeated
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindTimeout
}

// RetryPolicy bounds attempts and shapes exponential backoff. The delay
// after attempt n is BaseDelay * 2^(n-1), clamped to [MinDelay, MaxDelay].
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 2s..10s backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MinDelay:    2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Decision is the outcome of consulting a RetryPolicy
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the terminal decision
var GiveUp = Decision{}

// Decide returns what to do after attempt (1-based) failed with kind.
// It has no side effects.
func (p RetryPolicy) Decide(attempt int, kind ErrorKind) Decision {
	if !kind.Retryable() || attempt >= p.MaxAttempts {
		return GiveUp
	}
	return Decision{Retry: true, Delay: p.Backoff(attempt)}
}

// Backoff returns the delay after attempt; it never decreases as attempt grows
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
	}
	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Classify maps an attempt error to an ErrorKind. parent is the caller's
// context: once it is done, nothing is retryable.
func Classify(parent context.Context, err error) ErrorKind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if providers.IsRetryable(err) {
		return KindTransient
	}
	return KindStructural
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
