// Package memoryadapter defines the cognitive core's narrow view onto
// long-term memory: a single Retrieve call the scheduler's context
// assembly step uses to pull relevant snippets. Concrete vector-store
// backends are out of scope here; VectorAdapter wraps whichever backend
// internal/memory.Manager was configured with.
package memoryadapter

import (
	"context"

	"github.com/haasonsaas/annacore/internal/memory"
	"github.com/haasonsaas/annacore/pkg/models"
)

// Snippet is a single piece of retrieved context.
type Snippet struct {
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Adapter is the only surface the scheduler sees for long-term memory.
type Adapter interface {
	// Retrieve returns up to k relevant snippets for query.
	Retrieve(ctx context.Context, query string, k int) ([]Snippet, error)
}

// VectorAdapter implements Adapter over a memory.Manager, scoped to a
// single agent's global memory.
type VectorAdapter struct {
	manager *memory.Manager
	agentID string
}

// NewVectorAdapter wraps manager, scoping retrieval to agentID.
func NewVectorAdapter(manager *memory.Manager, agentID string) *VectorAdapter {
	return &VectorAdapter{manager: manager, agentID: agentID}
}

// Retrieve runs a semantic search and flattens the results into Snippets.
func (a *VectorAdapter) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 5
	}
	resp, err := a.manager.Search(ctx, &models.SearchRequest{
		Query:   query,
		Scope:   models.ScopeAgent,
		ScopeID: a.agentID,
		Limit:   k,
	})
	if err != nil {
		return nil, err
	}
	snippets := make([]Snippet, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		snippets = append(snippets, Snippet{Content: r.Entry.Content, Score: r.Score})
	}
	return snippets, nil
}

// NullAdapter always returns no snippets, for deployments without a
// configured memory backend.
type NullAdapter struct{}

// Retrieve implements Adapter by returning nothing.
func (NullAdapter) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	return nil, nil
}
