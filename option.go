package agentshell

import (
	"github.com/hashframe/agentshell/capability"
	"github.com/hashframe/agentshell/mcp"
	"github.com/hashframe/agentshell/overflow"
)

// AgentOption configures an Agent via the functional options pattern.
type AgentOption func(*agentOptions)

// agentOptions holds all configurable fields set via AgentOption functions.
type agentOptions struct {
	engine        Engine
	store         overflow.ContentStore
	caps          capability.Provider
	servers       []mcp.ServerConfig
	serversFile   string
	watchServers  bool
	mode          OperationalMode
	systemPrompt  string
	maxToolRounds int
	settingPaths  []string
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *agentOptions) applyDefaults() {
	if o.caps == nil {
		// Restricted is the safe default; privileged hosts opt in.
		o.caps = capability.Restricted()
	}
	if o.mode == "" {
		o.mode = DefaultMode
	}
	if o.maxToolRounds == 0 {
		o.maxToolRounds = DefaultMaxToolRounds
	}
}

// resolveOptions applies all option functions and fills defaults.
func resolveOptions(opts []AgentOption) agentOptions {
	var o agentOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()
	return o
}

// WithEngine sets the reasoning engine. Required for Initialize to succeed.
func WithEngine(e Engine) AgentOption {
	return func(o *agentOptions) { o.engine = e }
}

// WithContentStore sets the external content store the overflow pipeline
// offers oversized attachments to. Nil means all attachments inline.
func WithContentStore(store overflow.ContentStore) AgentOption {
	return func(o *agentOptions) { o.store = store }
}

// WithCapabilities sets the runtime capability provider. Defaults to
// capability.Restricted().
func WithCapabilities(p capability.Provider) AgentOption {
	return func(o *agentOptions) { o.caps = p }
}

// WithServers supplies the tool server configurations directly.
func WithServers(configs ...mcp.ServerConfig) AgentOption {
	return func(o *agentOptions) { o.servers = append(o.servers, configs...) }
}

// WithServersFile loads tool server configurations from an ordered JSON file
// at Initialize time. Takes effect in addition to WithServers entries.
func WithServersFile(path string) AgentOption {
	return func(o *agentOptions) { o.serversFile = path }
}

// WithServerWatch reloads the servers file on change, reconciling live
// connections. Only meaningful together with WithServersFile.
func WithServerWatch() AgentOption {
	return func(o *agentOptions) { o.watchServers = true }
}

// WithMode sets the initial operational mode. Defaults to ModeAutonomous.
func WithMode(mode OperationalMode) AgentOption {
	return func(o *agentOptions) { o.mode = mode }
}

// WithSystemPrompt sets the system prompt prepended to every engine call.
func WithSystemPrompt(prompt string) AgentOption {
	return func(o *agentOptions) { o.systemPrompt = prompt }
}

// WithMaxToolRounds bounds engine round trips spent on tool calls per
// message.
func WithMaxToolRounds(n int) AgentOption {
	return func(o *agentOptions) { o.maxToolRounds = n }
}

// WithSettings merges settings files (JSON or YAML) into the options.
// Explicit WithXxx options take precedence over file values.
func WithSettings(paths ...string) AgentOption {
	return func(o *agentOptions) { o.settingPaths = append(o.settingPaths, paths...) }
}
