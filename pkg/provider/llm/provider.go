// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote or local model API and exposes a uniform
// interface for the voice pipeline to stream completions without coupling
// to any specific SDK. Tool calls arrive as incremental deltas inside
// streaming chunks; the caller accumulates and parses them.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream
// ends or when the supplied context is cancelled.
package llm

import "context"

// Message is one entry in the conversation history sent to the model.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string

	// Content is the message text.
	Content string
}

// ToolDefinition describes one function/tool offered to the model.
type ToolDefinition struct {
	// Name is the tool identifier the model uses to invoke it.
	Name string

	// Description tells the model when to call the tool.
	Description string

	// Parameters is the JSON Schema for the tool's arguments, as a
	// JSON-serialisable map.
	Parameters map[string]any
}

// ToolCallDelta is one incremental fragment of a tool invocation emitted
// by a streaming model. A call's argument text typically arrives split
// across many deltas sharing the same ID.
type ToolCallDelta struct {
	// ID identifies which in-flight tool call this fragment belongs to.
	// Providers that stream by index should synthesise a stable ID.
	ID string

	// Name is the tool name. Usually present only on the first fragment
	// of a call; empty on continuation fragments.
	Name string

	// ArgumentsFragment is the next piece of the JSON argument text.
	ArgumentsFragment string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk
// may carry text, tool call deltas, a finish signal, or any combination.
type Chunk struct {
	// Text is the incremental text content of this chunk. May be empty
	// when the chunk carries only tool deltas or a FinishReason.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped. Common values are "stop", "length", "tool_calls", "error",
	// and "" for non-final chunks.
	FinishReason string

	// ToolCalls contains incremental tool invocation fragments. The
	// caller accumulates fragments by ID across chunks.
	ToolCalls []ToolCallDelta
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a
// response. At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected
	// before the conversation history. Implementations that lack a
	// dedicated system field should prepend it as a "system" message.
	SystemPrompt string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple
// goroutines and must propagate context cancellation promptly.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only
	// channel that emits Chunk values as they arrive. The channel is
	// closed by the implementation when generation finishes or when ctx
	// is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors
	// that occur after the channel is opened surface as a Chunk with
	// FinishReason "error"; the initial error return is non-nil only for
	// failures that prevent the stream from starting.
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	// A convenience wrapper for callers that do not need incremental
	// output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens the given
	// messages would consume. Used by conversation memory to enforce its
	// budget before sending a request. The result need not be exact but
	// should not undercount.
	CountTokens(messages []Message) (int, error)
}
