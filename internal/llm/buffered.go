package llm

import "context"

// buffered adapts a StreamingProvider to the Provider interface by draining
// its chunk channel into a single Response.
type buffered struct {
	sp StreamingProvider
}

// Buffer wraps sp so it satisfies Provider.
func Buffer(sp StreamingProvider) Provider {
	return &buffered{sp: sp}
}

func (b *buffered) Name() string { return b.sp.Name() }

func (b *buffered) Generate(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := b.sp.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp Response
	var text, thinking []byte
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			text = append(text, chunk.Text...)
		}
		if chunk.Thinking != "" {
			thinking = append(thinking, chunk.Thinking...)
		}
		if chunk.Done {
			resp.InputTokens = chunk.InputTokens
			resp.OutputTokens = chunk.OutputTokens
		}
	}
	resp.Text = string(text)
	resp.Thinking = string(thinking)
	return &resp, nil
}
