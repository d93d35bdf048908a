package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ServerState is the lifecycle state of one server's connection.
type ServerState int

const (
	// StateUnconfigured means the name is unknown to the Manager.
	StateUnconfigured ServerState = iota

	// StateDisconnected means the server is configured but has no live
	// connection.
	StateDisconnected

	// StateConnecting means a connection attempt is in progress.
	StateConnecting

	// StateConnected means the connection is live and accepting dispatches.
	StateConnected

	// StateFailed means the connection attempt or connection died. Failed
	// is terminal for that connection instance; a retry starts fresh from
	// Disconnected.
	StateFailed
)

func (s ServerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unconfigured"
	}
}

const defaultCallTimeout = 120 * time.Second

// TransportFactory builds a Transport for a config. Overridable for tests.
type TransportFactory func(ServerConfig) (Transport, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithTransportFactory overrides transport construction.
func WithTransportFactory(f TransportFactory) ManagerOption {
	return func(m *Manager) { m.newTransport = f }
}

// WithCallTimeout bounds each in-flight tool call.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.callTimeout = d }
}

// Manager owns the registry of configured tool servers and the supervised
// lifecycle of each live connection. The registry is mutated only by the
// Manager; state transitions are serialized per server so a double-connect
// or use-after-close race cannot occur.
type Manager struct {
	mu      sync.Mutex
	order   []string
	configs map[string]ServerConfig
	conns   map[string]*serverConn
	locks   map[string]*sync.Mutex

	newTransport TransportFactory
	log          *zap.Logger
	callTimeout  time.Duration
}

// NewManager creates a Manager from an ordered list of server configs.
// Configs are validated and duplicate names rejected.
func NewManager(configs []ServerConfig, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		configs:      make(map[string]ServerConfig, len(configs)),
		conns:        make(map[string]*serverConn),
		locks:        make(map[string]*sync.Mutex),
		newTransport: NewTransport,
		log:          zap.NewNop(),
		callTimeout:  defaultCallTimeout,
	}
	for _, fn := range opts {
		fn(m)
	}
	m.log = m.log.Named("mcp")

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate server name %q", ErrInvalidConfig, cfg.Name)
		}
		m.configs[cfg.Name] = cfg
		m.order = append(m.order, cfg.Name)
		m.locks[cfg.Name] = &sync.Mutex{}
	}
	return m, nil
}

// ServerNames returns all configured server names in configuration order.
func (m *Manager) ServerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// State returns the connection state for a server name.
func (m *Manager) State(name string) ServerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[name]; !ok {
		return StateUnconfigured
	}
	if c, ok := m.conns[name]; ok {
		return c.currentState()
	}
	return StateDisconnected
}

// ConnectResult reports the outcome of one server's connection attempt.
type ConnectResult struct {
	Server string
	Err    error
}

// ConnectAll connects every eligible server in the given set, continuing
// past individual failures and reporting each per-server. With no names it
// targets all enabled, auto-connect servers; with explicit names it targets
// exactly those.
func (m *Manager) ConnectAll(ctx context.Context, names ...string) []ConnectResult {
	targets := m.eligible(names)

	results := make([]ConnectResult, len(targets))
	var g errgroup.Group
	for i, name := range targets {
		g.Go(func() error {
			err := m.Connect(ctx, name)
			results[i] = ConnectResult{Server: name, Err: err}
			if err != nil {
				m.log.Warn("server connect failed", zap.String("server", name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) eligible(names []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(names) > 0 {
		return names
	}
	var targets []string
	for _, name := range m.order {
		cfg := m.configs[name]
		if cfg.Enabled && cfg.AutoConnect {
			targets = append(targets, name)
		}
	}
	return targets
}

// Connect establishes a connection to one named server. Connecting an
// already-connected server is a no-op.
func (m *Manager) Connect(ctx context.Context, name string) error {
	_, err := m.connection(ctx, name)
	return err
}

// connection returns the live connection for name, establishing one if
// needed. Transitions for a single server are serialized on its lock.
func (m *Manager) connection(ctx context.Context, name string) (*serverConn, error) {
	m.mu.Lock()
	cfg, ok := m.configs[name]
	lock := m.locks[name]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServerNotFound, name)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %q", ErrServerDisabled, name)
	}

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	existing := m.conns[name]
	m.mu.Unlock()
	if existing != nil && existing.currentState() == StateConnected {
		return existing, nil
	}

	// A failed connection instance is never resurrected; the retry is a
	// fresh attempt from Disconnected.
	transport, err := m.newTransport(cfg)
	if err != nil {
		return nil, err
	}
	conn := newServerConn(cfg, transport, m.callTimeout, m.log)

	m.mu.Lock()
	m.conns[name] = conn
	m.mu.Unlock()

	if err := conn.connect(ctx); err != nil {
		return nil, err
	}
	m.log.Info("server connected", zap.String("server", name),
		zap.Int("tools", len(conn.toolList())))
	return conn, nil
}

// ToolCall is a single tool invocation routed to a named server. It is
// created per call, resolved exactly once, then discarded.
type ToolCall struct {
	ID        string
	Server    string
	Name      string
	Arguments map[string]any

	once   sync.Once
	result string
	err    error
}

// NewToolCall creates a ToolCall with a fresh unique ID.
func NewToolCall(server, tool string, args map[string]any) *ToolCall {
	return &ToolCall{ID: newCallID(), Server: server, Name: tool, Arguments: args}
}

func (c *ToolCall) resolve(result string, err error) {
	c.once.Do(func() {
		c.result = result
		c.err = err
	})
}

// Outcome returns the call's resolved result or error.
func (c *ToolCall) Outcome() (string, error) { return c.result, c.err }

// Dispatch routes a tool call to the named server's live connection,
// attempting a lazy connect for enabled servers that are not connected yet.
// It fails with ErrServerNotConnected when no connection can be produced.
// Dispatches to the same server reach the transport in submission order;
// dispatches to different servers are independent.
func (m *Manager) Dispatch(ctx context.Context, call *ToolCall) (string, error) {
	m.mu.Lock()
	cfg, ok := m.configs[call.Server]
	m.mu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: %q", ErrServerNotFound, call.Server)
		call.resolve("", err)
		return "", err
	}
	if !cfg.AllowsTool(call.Name) {
		err := fmt.Errorf("%w: %s is filtered on server %s", ErrToolNotFound, call.Name, call.Server)
		call.resolve("", err)
		return "", err
	}

	conn, err := m.connection(ctx, call.Server)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrServerNotConnected, call.Server, err)
		call.resolve("", err)
		return "", err
	}

	result, err := conn.callTool(ctx, call.Name, call.Arguments)
	call.resolve(result, err)
	return result, err
}

// Disable marks a server disabled and closes its live connection, if any.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	cfg, ok := m.configs[name]
	if ok {
		cfg.Enabled = false
		m.configs[name] = cfg
	}
	conn := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrServerNotFound, name)
	}
	if conn != nil {
		conn.close()
	}
	return nil
}

// Reconcile replaces the configuration set. Servers that disappeared or
// became disabled have their connections closed; new servers are registered
// but not connected (ConnectAll or a lazy dispatch connects them).
func (m *Manager) Reconcile(configs []ServerConfig) error {
	next := make(map[string]ServerConfig, len(configs))
	var order []string
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, dup := next[cfg.Name]; dup {
			return fmt.Errorf("%w: duplicate server name %q", ErrInvalidConfig, cfg.Name)
		}
		next[cfg.Name] = cfg
		order = append(order, cfg.Name)
	}

	m.mu.Lock()
	var stale []*serverConn
	for name, conn := range m.conns {
		cfg, keep := next[name]
		if !keep || !cfg.Enabled {
			stale = append(stale, conn)
			delete(m.conns, name)
		}
	}
	m.configs = next
	m.order = order
	for name := range next {
		if _, ok := m.locks[name]; !ok {
			m.locks[name] = &sync.Mutex{}
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		conn.close()
	}
	return nil
}

// DisconnectAll closes every live connection, best-effort: per-connection
// close errors are collected, not raised. Idempotent.
func (m *Manager) DisconnectAll() []error {
	m.mu.Lock()
	conns := make([]*serverConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*serverConn)
	m.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.closeErr(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Tools returns the bridged tools of every connected server, each namespaced
// as mcp__{server}__{tool} and filtered by the server's ToolFilter.
func (m *Manager) Tools() []BridgedTool {
	m.mu.Lock()
	conns := make(map[string]*serverConn, len(m.conns))
	for name, c := range m.conns {
		conns[name] = c
	}
	order := make([]string, len(m.order))
	copy(order, m.order)
	configs := make(map[string]ServerConfig, len(m.configs))
	for name, cfg := range m.configs {
		configs[name] = cfg
	}
	m.mu.Unlock()

	var bridged []BridgedTool
	for _, name := range order {
		conn, ok := conns[name]
		if !ok || conn.currentState() != StateConnected {
			continue
		}
		cfg := configs[name]
		for _, ti := range conn.toolList() {
			if !cfg.AllowsTool(ti.Name) {
				continue
			}
			bridged = append(bridged, BridgedTool{
				ServerName:  name,
				ToolName:    ti.Name,
				FullName:    BridgeToolName(name, ti.Name),
				Description: ti.Description,
				InputSchema: ti.InputSchema,
			})
		}
	}
	return bridged
}

// CallTool dispatches a bridged tool by its namespaced name with raw JSON
// arguments.
func (m *Manager) CallTool(ctx context.Context, fullName string, raw json.RawMessage) (string, error) {
	server, tool, err := ParseBridgedName(fullName)
	if err != nil {
		return "", err
	}
	var args map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("%w: invalid arguments: %v", ErrToolNotFound, err)
		}
	}
	return m.Dispatch(ctx, NewToolCall(server, tool, args))
}
