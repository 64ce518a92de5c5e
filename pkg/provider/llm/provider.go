// Package llm defines the Provider interface for the reasoning service backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI o4-mini, Anthropic
// Claude, or a local Ollama instance) and exposes a uniform interface so the
// scoring agent can run completions with tool definitions attached without
// coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must not keep conversation
// state between calls: everything the model needs is passed in the request.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history, including any system
	// message.
	Messages []Message

	// Tools is the set of function/tool definitions offered to the model. The model
	// may choose to call one or more of them in its response.
	Tools []ToolDefinition

	// Temperature controls output randomness. Zero leaves the provider default,
	// which matters for reasoning models that reject explicit temperatures.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model. The caller is
	// responsible for executing them and appending the results to the conversation.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports.
	Capabilities() ModelCapabilities
}
