// Package providers abstracts the LLM backends. The Anthropic provider is
// primary; any OpenAI-compatible endpoint can serve as fallback.
package providers

import "context"

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Chat sends a conversation and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// SupportsTools reports whether tool definitions may be attached.
	SupportsTools() bool
}

// SystemBlock is one segment of the system prompt. Blocks marked Cache are
// rendered with a cache checkpoint on providers that support prompt caching,
// so the stable persona block is cached while the dynamic state block is not.
type SystemBlock struct {
	Text  string
	Cache bool
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	System      []SystemBlock
	Messages    []Message
	Tools       []ToolDefinition
	Model       string // overrides the provider default when set
	MaxTokens   int
	Temperature *float64
}

// Message is one conversation message.
type Message struct {
	Role       string // "user", "assistant", "tool"
	Content    string
	Images     []ImageContent
	ToolCalls  []ToolCall // assistant tool invocations
	ToolCallID string     // set on role "tool" results
}

// ImageContent is a base64-encoded image for vision-capable models.
type ImageContent struct {
	MimeType string // e.g. "image/jpeg"
	Data     string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema
}

// ChatResponse is the result of an LLM call.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop", "tool_calls", "length"
	Usage        *Usage
}

// Usage tracks token consumption of one call.
type Usage struct {
	PromptTokens        int
	CompletionTokens    int
	TotalTokens         int
	CacheCreationTokens int
	CacheReadTokens     int
}

// Finish reasons.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)
