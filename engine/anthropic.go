// Package engine provides reasoning engine implementations for the agent
// core. The core stays engine-agnostic; this package maps its completion
// contract onto concrete model APIs.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/hashframe/agentshell"
)

// DefaultMaxTokens bounds each completion's output.
const DefaultMaxTokens = 4096

// AnthropicOption configures the Anthropic engine.
type AnthropicOption func(*Anthropic)

// WithModel sets the model. Defaults to Claude Sonnet.
func WithModel(model anthropic.Model) AnthropicOption {
	return func(a *Anthropic) { a.model = model }
}

// WithMaxTokens sets the per-completion output token limit.
func WithMaxTokens(n int64) AnthropicOption {
	return func(a *Anthropic) { a.maxTokens = n }
}

// WithClient overrides the API client, for custom auth or testing.
func WithClient(client *anthropic.Client) AnthropicOption {
	return func(a *Anthropic) { a.client = client }
}

// Anthropic implements agentshell.Engine on the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ agentshell.Engine = (*Anthropic)(nil)

// NewAnthropic creates an engine using ANTHROPIC_API_KEY from the
// environment unless WithClient overrides the client.
func NewAnthropic(opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		model:     anthropic.ModelClaudeSonnet4_5,
		maxTokens: DefaultMaxTokens,
	}
	for _, fn := range opts {
		fn(a)
	}
	if a.client == nil {
		client := anthropic.NewClient()
		a.client = &client
	}
	return a
}

// Complete runs one Messages API call and maps the response back to the
// agent's completion contract.
func (a *Anthropic) Complete(ctx context.Context, req agentshell.CompletionRequest) (*agentshell.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("engine: completion failed: %w", err)
	}
	return parseCompletion(msg), nil
}

// buildMessages converts the agent's conversation into API message params.
func buildMessages(messages []agentshell.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion

		if len(m.ToolResults) > 0 {
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ID, tr.Content, tr.IsError))
			}
		}
		if m.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Arguments,
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}

		if m.Role == agentshell.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		} else {
			params = append(params, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

// buildTools converts tool descriptors into API tool params. The descriptor
// schema is a full JSON Schema object; the API wants its properties and
// required list unwrapped.
func buildTools(tools []agentshell.ToolDescriptor) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var s struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		_ = json.Unmarshal(t.InputSchema, &s)

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: s.Properties,
					Required:   s.Required,
				},
			},
		})
	}
	return result
}

// parseCompletion extracts response text and tool call requests.
func parseCompletion(msg *anthropic.Message) *agentshell.Completion {
	completion := &agentshell.Completion{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			completion.Text += block.Text
		case "tool_use":
			toolUse := block.AsToolUse()
			completion.ToolCalls = append(completion.ToolCalls, agentshell.ToolRequest{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: json.RawMessage(toolUse.Input),
			})
		}
	}
	return completion
}
