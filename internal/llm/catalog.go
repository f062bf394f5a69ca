package llm

import "github.com/haasonsaas/annacore/internal/models"

// catalogModels projects the shared model catalog's entries for provider
// into this package's narrower Model view.
func catalogModels(provider models.Provider) []Model {
	entries := models.ListByProvider(provider)
	out := make([]Model, 0, len(entries))
	for _, m := range entries {
		out = append(out, Model{
			ID:             m.ID,
			Name:           m.Name,
			ContextSize:    m.ContextWindow,
			SupportsVision: m.SupportsVision(),
		})
	}
	return out
}
