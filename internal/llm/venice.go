package llm

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// VeniceBaseURL is Venice AI's OpenAI-compatible API endpoint.
const VeniceBaseURL = "https://api.venice.ai/api/v1"

// VeniceDefaultModel is used when a request doesn't specify one.
const VeniceDefaultModel = "llama-3.3-70b"

// VeniceProvider implements StreamingProvider against Venice AI's
// OpenAI-compatible completions API.
type VeniceProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// VeniceConfig configures a VeniceProvider.
type VeniceConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewVeniceProvider creates a provider from cfg, applying defaults for
// unset optional fields.
func NewVeniceProvider(cfg VeniceConfig) (*VeniceProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("venice: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = VeniceBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = VeniceDefaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &VeniceProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *VeniceProvider) Name() string { return "venice" }

// Models returns Venice's static catalog, privacy-focused open models plus
// anonymized access to Claude and GPT via Venice's proxy.
func (p *VeniceProvider) Models() []Model {
	return []Model{
		{ID: "llama-3.3-70b", Name: "Llama 3.3 70B", ContextSize: 131072},
		{ID: "llama-3.2-3b", Name: "Llama 3.2 3B", ContextSize: 131072},
		{ID: "qwen3-235b-a22b-thinking-2507", Name: "Qwen3 235B Thinking", ContextSize: 131072},
		{ID: "deepseek-v3.2", Name: "DeepSeek V3.2", ContextSize: 163840},
		{ID: "claude-opus-45", Name: "Claude Opus 4.5 (via Venice)", ContextSize: 202752, SupportsVision: true},
		{ID: "openai-gpt-52", Name: "GPT-5.2 (via Venice)", ContextSize: 262144},
	}
}

// Stream sends req to Venice and streams the response as Chunks.
func (p *VeniceProvider) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	var stream *openai.ChatCompletionStream
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !IsRetryable(NewProviderError("venice", chatReq.Model, lastErr)) {
			return nil, NewProviderError("venice", chatReq.Model, lastErr)
		}
	}
	if lastErr != nil {
		return nil, NewProviderError("venice", chatReq.Model, lastErr)
	}

	chunks := make(chan *Chunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *VeniceProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	defer close(chunks)
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			chunks <- &Chunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				chunks <- &Chunk{Done: true}
				return
			}
			chunks <- &Chunk{Error: err, Done: true}
			return
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			chunks <- &Chunk{Text: delta}
		}
	}
}

func (p *VeniceProvider) convertMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		result = append(result, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return result
}

func (p *VeniceProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}
