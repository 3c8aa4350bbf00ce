// Package llmprovider abstracts over vendor LLM/VLM backends behind one
// capability-set interface (spec.md §4.C4, §9 "LLM provider dispatch"):
// sendStateful, sendOnce, stream, supportsTools, supportsImages. Provider
// variants implement it instead of an inheritance hierarchy, the way the
// teacher's internal/llm/client.go is itself one concrete backend among
// several the orchestrator could route to.
package llmprovider

import (
	"context"
	"log/slog"
)

// Role identifies the speaker of a Message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image attachment, PNG bytes base64-encoded.
type Image struct {
	PNGBase64 string
}

// Content is the body of a Message: text plus zero or more images.
type Content struct {
	Text   string
	Images []Image
}

// Message is one turn in a stateless sendOnce call.
type Message struct {
	Role    Role
	Content Content
}

// Tool is a function the model may call, in provider-agnostic shape.
type Tool struct {
	Name        string
	Description string
	InputSchema any
}

// ToolCall is one invocation the model requested.
type ToolCall struct {
	Id    string
	Name  string
	Input string // raw JSON
}

// StopReason enumerates why generation stopped (spec.md §4.C4 Response shape).
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopToolUse      StopReason = "tool_use"
	StopSequence     StopReason = "stop_sequence"
)

// Usage carries token accounting, when the provider reports it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the provider-agnostic shape every Provider call returns.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      *Usage
}

// Chunk is one piece of a streamed Response.
type Chunk struct {
	Delta string
	Done  bool
}

// Provider is the capability-set interface every vendor backend
// implements. Not every provider supports every capability; callers MUST
// consult SupportsTools/SupportsImages/SupportsStreaming rather than
// assume, per spec.md §4.C4's capability matrix.
type Provider interface {
	Name() string
	SupportsTools() bool
	SupportsImages() bool
	SupportsStreaming() bool

	// Stateful verbs: maintain a per-instance conversation history in the
	// provider's own native shape (spec.md §9 "History as native format").
	AddUserMessage(content Content)
	AddAssistantMessage(text string)
	AddToolResult(toolUseId, text string)
	ClearHistory()
	Send(ctx context.Context, tools []Tool) (Response, error)
	Stream(ctx context.Context, tools []Tool) (<-chan Chunk, error)

	// SendOnce is the stateless one-shot entry point used by fast/vision
	// modes; it never touches the stateful history above.
	SendOnce(ctx context.Context, messages []Message, tools []Tool) (Response, error)
}

// warnIfToolsRequested logs the capability-mismatch warning spec.md §4.C4
// requires: "A provider that does not support tool calling MUST log a
// warning and return text-only responses." Callers invoke this before
// silently dropping a non-empty tools argument.
func warnIfToolsRequested(p Provider, tools []Tool) {
	if len(tools) == 0 || p.SupportsTools() {
		return
	}
	slog.Warn("provider does not support tool calling; ignoring tools",
		"component", "llmprovider", "provider", p.Name(), "toolCount", len(tools))
}
