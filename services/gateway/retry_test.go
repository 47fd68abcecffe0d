package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/upb/llm-chat-gateway/services/providers"
)

func TestRetryPolicy_Decide(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		name    string
		attempt int
		kind    ErrorKind
		want    Decision
	}{
		{"transient first attempt", 1, KindTransient, Decision{Retry: true, Delay: 2 * time.Second}},
		{"timeout second attempt", 2, KindTimeout, Decision{Retry: true, Delay: 2 * time.Second}},
		{"transient at max attempts", 3, KindTransient, GiveUp},
		{"structural never retried", 1, KindStructural, GiveUp},
		{"canceled never retried", 1, KindCanceled, GiveUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.attempt, tt.kind))
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MinDelay: 2 * time.Second, MaxDelay: 10 * time.Second}

	want := []time.Duration{
		2 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Backoff(i+1), "attempt %d", i+1)
	}

	prev := time.Duration(0)
	for attempt := 1; attempt < 80; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestClassify(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   ErrorKind
	}{
		{"retryable provider error", context.Background(), providers.NewProviderError("openai", "x", "5xx", 503, true, nil), KindTransient},
		{"structural provider error", context.Background(), providers.NewProviderError("openai", "x", "bad", 400, false, nil), KindStructural},
		{"attempt deadline", context.Background(), fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"deadline inside provider error", context.Background(), providers.NewProviderError("openai", "HTTP_ERROR", "x", 0, true, context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Background(), context.Canceled, KindCanceled},
		{"parent done wins", canceled, providers.NewProviderError("openai", "x", "5xx", 503, true, nil), KindCanceled},
		{"unknown error", context.Background(), errors.New("weird"), KindStructural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.parent, tt.err))
		})
	}
}
