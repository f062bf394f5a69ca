package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/annacore/internal/models"
)

// FallbackChain tries a primary provider/model, falling back through a
// configured chain of alternates when a call fails in a way that warrants
// failover (rate limits, billing, auth, server errors — never malformed
// requests, which would fail identically everywhere).
type FallbackChain struct {
	providers map[string]Provider
	cfg       *models.FallbackConfig
	logger    *slog.Logger
}

// NewFallbackChain builds a chain from named providers and a fallback
// configuration (primary provider/model plus ordered "provider/model"
// fallback strings).
func NewFallbackChain(providers map[string]Provider, cfg *models.FallbackConfig, logger *slog.Logger) *FallbackChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChain{providers: providers, cfg: cfg, logger: logger}
}

// Generate runs req against the chain, returning the first successful
// response along with which provider and model produced it.
func (f *FallbackChain) Generate(ctx context.Context, req *Request) (resp *Response, provider, model string, err error) {
	run := func(ctx context.Context, provider, model string) (*Response, error) {
		p, ok := f.providers[provider]
		if !ok {
			return nil, fmt.Errorf("llm: unknown provider %q", provider)
		}
		r := *req
		r.Model = model
		return p.Generate(ctx, &r)
	}

	onError := func(provider, model string, err error, attempt, total int) {
		f.logger.Warn("llm: fallback attempt failed",
			"provider", provider, "model", model, "attempt", attempt, "total", total, "error", err)
	}

	result, err := models.RunWithModelFallback(ctx, f.cfg, run, onError)
	if err != nil {
		return nil, "", "", err
	}
	return result.Result, result.Provider, result.Model, nil
}

// Name identifies the chain for logging; it is not itself a provider name.
func (f *FallbackChain) Name() string { return "fallback" }

// AsProvider adapts the chain to the narrow Provider interface the
// scheduler depends on, discarding the provider/model that ultimately
// served the request.
func (f *FallbackChain) AsProvider() Provider {
	return &fallbackProvider{chain: f}
}

type fallbackProvider struct {
	chain *FallbackChain
}

func (p *fallbackProvider) Name() string { return p.chain.Name() }

func (p *fallbackProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, _, _, err := p.chain.Generate(ctx, req)
	return resp, err
}
