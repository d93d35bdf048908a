package agentshell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/hashframe/agentshell/internal/config"
	"github.com/hashframe/agentshell/mcp"
	"github.com/hashframe/agentshell/overflow"
	"github.com/hashframe/agentshell/txparse"
)

// modeReturnBytesPrompt steers the engine when the agent must not execute
// value-moving actions itself.
const modeReturnBytesPrompt = "Do not execute transactions yourself. When a transaction is " +
	"requested, respond with a JSON document containing \"transactionBytes\" (the base64-encoded " +
	"unsigned transaction) and \"transfers\" (the transfer legs in tinybars) for external signing."

// Agent is the operational surface exposed to the surrounding application.
// It composes the reasoning engine, the tool server manager, the attachment
// overflow pipeline, and the capability provider per request.
type Agent struct {
	opts  agentOptions
	log   *zap.Logger
	tools *ToolRegistry

	// msgMu serializes ProcessMessage: one message runs to completion
	// before the next is accepted.
	msgMu sync.Mutex

	mu          sync.Mutex
	mode        OperationalMode
	initialized bool
	closed      bool
	servers     *mcp.Manager
	pipeline    *overflow.Pipeline
	watcher     *mcp.ConfigWatcher
}

// New creates an Agent with the given options. Nothing connects until
// Initialize.
func New(opts ...AgentOption) *Agent {
	// Capture user-set values before applying defaults
	var userSet agentOptions
	for _, fn := range opts {
		fn(&userSet)
	}

	resolved := resolveOptions(opts)

	// Apply settings overrides from config files.
	// User-explicit options take precedence over file-based settings.
	if len(resolved.settingPaths) > 0 {
		settings, err := config.LoadSettings(resolved.settingPaths...)
		if err == nil {
			applySettings(&resolved, settings, &userSet)
		}
	}

	return &Agent{
		opts:  resolved,
		log:   resolved.caps.Logger().Named("agentshell"),
		tools: NewToolRegistry(),
		mode:  resolved.mode,
	}
}

// applySettings merges loaded settings into resolved options.
// Options set explicitly via WithXxx take precedence over settings files.
func applySettings(o *agentOptions, s *config.Settings, userSet *agentOptions) {
	if userSet.systemPrompt == "" && s.SystemPrompt != "" {
		o.systemPrompt = s.SystemPrompt
	}
	if userSet.mode == "" && s.Mode != "" {
		if mode, err := ParseMode(s.Mode); err == nil {
			o.mode = mode
		}
	}
	if userSet.maxToolRounds == 0 && s.MaxToolRounds > 0 {
		o.maxToolRounds = s.MaxToolRounds
	}
	if userSet.serversFile == "" && s.ServersFile != "" {
		o.serversFile = s.ServersFile
	}
}

// Tools returns the agent's local tool registry for registering custom tools.
func (a *Agent) Tools() *ToolRegistry {
	return a.tools
}

// Initialize prepares the reasoning engine and establishes auto-connect tool
// servers. Per-server connect failures degrade tool availability and are
// logged, not fatal; a missing engine or an invalid server registry aborts
// startup. Idempotent, but a cleaned-up agent cannot be reinitialized:
// Cleanup releases the engine and store.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if a.closed {
		return fmt.Errorf("%w: agent already cleaned up", ErrInitialization)
	}
	if a.opts.engine == nil {
		return fmt.Errorf("%w: %w", ErrInitialization, ErrNoEngine)
	}

	configs := make([]mcp.ServerConfig, len(a.opts.servers))
	copy(configs, a.opts.servers)
	if a.opts.serversFile != "" {
		loaded, err := mcp.LoadServers(a.opts.serversFile)
		if err != nil {
			return fmt.Errorf("%w: loading %s: %w", ErrInitialization, a.opts.serversFile, err)
		}
		configs = append(configs, loaded...)
	}

	mgr, err := mcp.NewManager(configs, mcp.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	for _, result := range mgr.ConnectAll(ctx) {
		if result.Err != nil {
			a.log.Warn("tool server unavailable",
				zap.String("server", result.Server), zap.Error(result.Err))
		}
	}

	if a.opts.watchServers && a.opts.serversFile != "" {
		watcher, err := mcp.WatchConfig(a.opts.serversFile, mgr, a.log)
		if err != nil {
			a.log.Warn("server config watch unavailable", zap.Error(err))
		} else {
			a.watcher = watcher
		}
	}

	a.servers = mgr
	a.pipeline = overflow.NewPipeline(a.opts.store, a.log)
	a.initialized = true
	return nil
}

// UserMessage is one inbound message to process: the text, optional prior
// conversation, and optional attachments.
type UserMessage struct {
	Content     string
	History     []Message
	Attachments []overflow.Attachment
}

// Response is the agent's answer to one message. TransactionBytes and
// Summary are populated only in returnBytes mode, when the engine produced a
// parseable unsigned transaction.
type Response struct {
	ID               string
	Text             string
	TransactionBytes string
	Summary          *txparse.TransferSummary
}

// ProcessMessage runs one message through the overflow pipeline, the
// reasoning engine, and any tool calls the engine emits. Messages are
// processed one at a time per agent; the operational mode is snapshotted at
// message start. An unresolvable tool call degrades into the engine's view of
// the conversation unless the engine flagged it required, in which case the
// whole message fails.
func (a *Agent) ProcessMessage(ctx context.Context, msg UserMessage) (*Response, error) {
	a.msgMu.Lock()
	defer a.msgMu.Unlock()

	a.mu.Lock()
	if !a.initialized || a.closed {
		a.mu.Unlock()
		return nil, ErrNotInitialized
	}
	mode := a.mode
	servers := a.servers
	pipeline := a.pipeline
	a.mu.Unlock()

	expanded, err := pipeline.Process(ctx, msg.Content, msg.Attachments)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(msg.History)+1)
	messages = append(messages, msg.History...)
	messages = append(messages, Message{Role: RoleUser, Text: expanded})

	system := a.opts.systemPrompt
	if mode == ModeReturnBytes {
		if system != "" {
			system += "\n\n"
		}
		system += modeReturnBytesPrompt
	}
	tools := a.availableTools(servers)

	for round := 0; round < a.opts.maxToolRounds; round++ {
		completion, err := a.opts.engine.Complete(ctx, CompletionRequest{
			System:   system,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, err
		}
		if len(completion.ToolCalls) == 0 {
			return a.finish(mode, completion.Text), nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Text:      completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		returns := make([]ToolReturn, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			content, isError, callErr := a.executeCall(ctx, servers, call.Name, call.Arguments)
			if callErr != nil {
				if call.Required {
					return nil, fmt.Errorf("required tool call %s failed: %w", call.Name, callErr)
				}
				a.log.Warn("tool call degraded",
					zap.String("tool", call.Name), zap.Error(callErr))
				content = fmt.Sprintf("tool %s is unavailable: %s", call.Name, callErr)
				isError = true
			}
			returns = append(returns, ToolReturn{ID: call.ID, Content: content, IsError: isError})
		}
		messages = append(messages, Message{Role: RoleUser, ToolResults: returns})
	}

	return nil, fmt.Errorf("%w: %d rounds", ErrMaxToolRounds, a.opts.maxToolRounds)
}

// finish builds the response, extracting the unsigned transaction in
// returnBytes mode when the engine produced one.
func (a *Agent) finish(mode OperationalMode, text string) *Response {
	resp := &Response{ID: generateID(PrefixMessage), Text: text}
	if mode == ModeReturnBytes {
		summary, err := txparse.ExtractSummary(text)
		if err != nil {
			a.log.Debug("no transaction payload in response", zap.Error(err))
			return resp
		}
		resp.TransactionBytes = summary.TransactionBytes
		resp.Summary = summary
	}
	return resp
}

// executeCall routes one tool call: local registry first, then bridged tool
// servers.
func (a *Agent) executeCall(ctx context.Context, servers *mcp.Manager, name string, args json.RawMessage) (string, bool, error) {
	if a.tools.Has(name) {
		result, err := a.tools.Execute(ctx, name, args)
		if err != nil {
			return "", false, err
		}
		return result.Content, result.IsError, nil
	}
	if mcp.IsBridgedName(name) {
		out, err := servers.CallTool(ctx, name, args)
		if err != nil {
			return "", false, err
		}
		return out, false, nil
	}
	return "", false, fmt.Errorf("unknown tool %q", name)
}

// SwitchMode changes the operational mode. Synchronous: messages started
// after the switch see the new mode, in-flight messages keep the mode they
// started with.
func (a *Agent) SwitchMode(mode OperationalMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
	return nil
}

// Mode returns the currently active operational mode.
func (a *Agent) Mode() OperationalMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// ExecuteToolCall runs a single named tool outside of message processing.
// Bridged names (mcp__{server}__{tool}) route to tool servers, everything
// else to the local registry. A tool-reported error is returned as an error.
func (a *Agent) ExecuteToolCall(ctx context.Context, name string, args json.RawMessage) (string, error) {
	a.mu.Lock()
	servers := a.servers
	initialized := a.initialized && !a.closed
	a.mu.Unlock()
	if !initialized {
		return "", ErrNotInitialized
	}

	content, isError, err := a.executeCall(ctx, servers, name, args)
	if err != nil {
		return "", err
	}
	if isError {
		return "", fmt.Errorf("tool %s failed: %s", name, content)
	}
	return content, nil
}

// ConnectMCPServers connects the named tool servers, or every enabled
// auto-connect server when no names are given. Failures are reported
// per-server, never aborting the batch.
func (a *Agent) ConnectMCPServers(ctx context.Context, names ...string) ([]mcp.ConnectResult, error) {
	a.mu.Lock()
	servers := a.servers
	initialized := a.initialized && !a.closed
	a.mu.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	return servers.ConnectAll(ctx, names...), nil
}

// GetAvailableTools returns every tool the engine may call right now: the
// local registry plus the bridged tools of connected servers.
func (a *Agent) GetAvailableTools() []ToolDescriptor {
	a.mu.Lock()
	servers := a.servers
	a.mu.Unlock()
	return a.availableTools(servers)
}

func (a *Agent) availableTools(servers *mcp.Manager) []ToolDescriptor {
	descriptors := a.tools.Descriptors()
	if servers == nil {
		return descriptors
	}
	for _, bridged := range servers.Tools() {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        bridged.FullName,
			Description: bridged.Description,
			InputSchema: bridged.InputSchema,
		})
	}
	return descriptors
}

// Disconnect tears down live tool server connections. Idempotent; the agent
// stays initialized and servers reconnect lazily on the next dispatch.
func (a *Agent) Disconnect() error {
	a.mu.Lock()
	servers := a.servers
	a.mu.Unlock()
	if servers == nil {
		return nil
	}
	return errors.Join(servers.DisconnectAll()...)
}

// Cleanup disconnects tool servers and additionally releases the reasoning
// engine and content store, when they hold resources. Idempotent.
func (a *Agent) Cleanup() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.initialized = false
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	errs := []error{a.Disconnect()}
	if watcher != nil {
		errs = append(errs, watcher.Close())
	}
	if closer, ok := a.opts.engine.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := a.opts.store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
