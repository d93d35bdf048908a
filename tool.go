package agentshell

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashframe/agentshell/internal/schema"
)

// Tool is the generic interface for locally-registered tools. The type
// parameter T defines the input struct that will be automatically
// deserialized from JSON.
type Tool[T any] interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input T) (*ToolResult, error)
}

// ToolResult is the output of a tool execution.
type ToolResult struct {
	Content string
	IsError bool
}

// TextResult is a convenience constructor for a successful tool result.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: text}
}

// ErrorResult is a convenience constructor for an error tool result.
func ErrorResult(text string) *ToolResult {
	return &ToolResult{Content: text, IsError: true}
}

// toolEntry is the type-erased wrapper stored in the registry.
type toolEntry struct {
	name        string
	description string
	schema      json.RawMessage
	execute     func(ctx context.Context, raw json.RawMessage) (*ToolResult, error)
}

// ToolRegistry manages registered local tools. It is concurrent-safe.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*toolEntry
	order []string // preserve registration order
}

// NewToolRegistry creates a new empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*toolEntry),
	}
}

// RegisterTool registers a generic tool into the registry.
// The input type T is used to auto-generate a JSON Schema.
func RegisterTool[T any](r *ToolRegistry, tool Tool[T]) {
	entry := &toolEntry{
		name:        tool.Name(),
		description: tool.Description(),
		schema:      schema.Generate[T](),
		execute: func(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
			var input T
			if err := json.Unmarshal(raw, &input); err != nil {
				return ErrorResult(fmt.Sprintf("invalid input: %s", err.Error())), nil
			}
			return tool.Execute(ctx, input)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[entry.name]; !exists {
		r.order = append(r.order, entry.name)
	}
	r.tools[entry.name] = entry
}

// RegisterRaw registers a tool with a pre-built schema and execute function.
// This is used by dynamic tool sources that don't use the generic Tool[T]
// interface.
func (r *ToolRegistry) RegisterRaw(
	name, description string,
	inputSchema json.RawMessage,
	execute func(ctx context.Context, raw json.RawMessage) (*ToolResult, error),
) {
	entry := &toolEntry{
		name:        name,
		description: description,
		schema:      inputSchema,
		execute:     execute,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = entry
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute runs a tool by name with the given raw JSON input.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (*ToolResult, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return entry.execute(ctx, input)
}

// Descriptors returns the registered tools as engine tool descriptors in
// registration order.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ToolDescriptor, 0, len(r.tools))
	for _, name := range r.order {
		entry := r.tools[name]
		result = append(result, ToolDescriptor{
			Name:        entry.name,
			Description: entry.description,
			InputSchema: entry.schema,
		})
	}
	return result
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
