package agentshell

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation. Assistant messages may carry tool
// call requests; user messages may carry the results of those calls.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolRequest
	ToolResults []ToolReturn
}

// ToolDescriptor describes one callable tool offered to the engine.
// InputSchema is a JSON Schema object.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolRequest is a tool call the engine asks the agent to perform. Required
// marks calls whose failure must fail the whole message rather than degrade
// into response text.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Required  bool
}

// ToolReturn carries one executed tool call's outcome back to the engine.
type ToolReturn struct {
	ID      string
	Content string
	IsError bool
}

// CompletionRequest is a single engine invocation: the system prompt, the
// conversation so far, and the tools the engine may request.
type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDescriptor
}

// Completion is the engine's answer: response text plus zero or more tool
// call requests. An empty ToolCalls slice means the turn is finished.
type Completion struct {
	Text      string
	ToolCalls []ToolRequest
}

// Engine is the reasoning boundary the agent core calls into. The core never
// implements reasoning itself; implementations live outside this package
// (see package engine for the Anthropic-backed one). Engines that also
// implement io.Closer are closed by Agent.Cleanup.
type Engine interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
