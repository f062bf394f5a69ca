package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailoverReason
	}{
		{"rate limit", errors.New("429 too many requests"), FailoverRateLimit},
		{"auth", errors.New("401 unauthorized"), FailoverAuth},
		{"timeout", errors.New("context deadline exceeded"), FailoverTimeout},
		{"server error", errors.New("502 bad gateway"), FailoverServerError},
		{"billing", errors.New("insufficient quota"), FailoverBilling},
		{"unknown", errors.New("something strange"), FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailoverReason_IsRetryable(t *testing.T) {
	if !FailoverRateLimit.IsRetryable() {
		t.Error("rate limit should be retryable")
	}
	if FailoverAuth.IsRetryable() {
		t.Error("auth errors should not be retryable")
	}
}

func TestFailoverReason_ShouldFailover(t *testing.T) {
	if !FailoverAuth.ShouldFailover() {
		t.Error("auth errors should trigger failover to another provider")
	}
	if FailoverInvalidRequest.ShouldFailover() {
		t.Error("invalid requests fail identically on every provider, should not failover")
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("network reset")
	pe := NewProviderError("anthropic", "claude-sonnet-4", cause)
	if !errors.Is(pe, cause) {
		t.Error("ProviderError should unwrap to its cause")
	}
}

func TestGetProviderError(t *testing.T) {
	pe := NewProviderError("openai", "gpt-4o", errors.New("rate limited"))
	wrapped := fmt.Errorf("dispatch failed: %w", pe)

	got, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("expected to extract ProviderError")
	}
	if got.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", got.Provider)
	}
}
