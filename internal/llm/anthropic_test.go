package llm

import "testing"

func TestNewAnthropicProvider(t *testing.T) {
	tests := []struct {
		name        string
		cfg         AnthropicConfig
		expectError bool
	}{
		{"valid config", AnthropicConfig{APIKey: "test-key"}, false},
		{"missing API key", AnthropicConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAnthropicProvider(tt.cfg)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.defaultModel == "" {
				t.Error("defaultModel should have a default value")
			}
			if p.maxRetries <= 0 {
				t.Error("maxRetries should have a default value")
			}
		})
	}
}

func TestAnthropicProvider_Name(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}
}

func TestAnthropicProvider_ModelDefaulting(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", DefaultModel: "claude-opus-4-20250514"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if got := p.model(""); got != "claude-opus-4-20250514" {
		t.Errorf("model(\"\") = %q, want claude-opus-4-20250514", got)
	}
	if got := p.model("claude-3-5-sonnet-20241022"); got != "claude-3-5-sonnet-20241022" {
		t.Errorf("model(explicit) = %q, want explicit value preserved", got)
	}
}
