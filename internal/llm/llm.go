// Package llm is the cognitive core's view onto language model backends: a
// single-shot Generate call the scheduler uses to turn an assembled context
// into reply text plus an action block. Streaming is not part of the
// contract consumers see; it is retained only as an internal optimization
// for talking to provider SDKs that are streaming-first, with the tokens
// buffered into one string before Generate returns.
package llm

import "context"

// Message is one turn of conversation handed to a provider.
type Message struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

// Request describes a single completion call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int

	// EnableThinking requests extended reasoning on models that support it.
	EnableThinking      bool
	ThinkingBudgetTokens int
}

// Response is the buffered result of a completion call.
type Response struct {
	Text         string
	Thinking     string
	InputTokens  int
	OutputTokens int
}

// Model describes a model a provider can serve.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// Chunk is a single piece of a streaming response, used internally between
// a StreamingProvider and the buffering Provider built on top of it.
type Chunk struct {
	Text     string
	Thinking string
	Done     bool
	Error    error

	InputTokens  int
	OutputTokens int
}

// Provider is the narrow, non-streaming surface the scheduler depends on.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// StreamingProvider is implemented by concrete provider backends. Generate
// is synthesized from Stream by buffering every chunk.
type StreamingProvider interface {
	Name() string
	Models() []Model
	Stream(ctx context.Context, req *Request) (<-chan *Chunk, error)
}
