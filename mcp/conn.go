package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	clientName    = "agentshell"
	clientVersion = "0.1.0"
)

func newCallID() string { return "call-" + uuid.NewString() }

// serverConn is the runtime object bound 1:1 to an enabled server while
// connected. It owns request/response correlation on top of the raw
// transport and dies with the first unrecoverable transport error.
type serverConn struct {
	name        string
	cfg         ServerConfig
	transport   Transport
	log         *zap.Logger
	callTimeout time.Duration

	// sendMu serializes ID assignment and transport writes so calls reach
	// the transport in submission order.
	sendMu sync.Mutex
	nextID int64

	mu      sync.Mutex
	state   ServerState
	pending map[int64]chan *Response
	tools   []ToolInfo

	done      chan struct{}
	closeOnce sync.Once
}

func newServerConn(cfg ServerConfig, transport Transport, callTimeout time.Duration, log *zap.Logger) *serverConn {
	return &serverConn{
		name:        cfg.Name,
		cfg:         cfg,
		transport:   transport,
		log:         log.Named(cfg.Name),
		callTimeout: callTimeout,
		state:       StateDisconnected,
		pending:     make(map[int64]chan *Response),
		done:        make(chan struct{}),
	}
}

func (c *serverConn) currentState() ServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *serverConn) setState(s ServerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *serverConn) toolList() []ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	tools := make([]ToolInfo, len(c.tools))
	copy(tools, c.tools)
	return tools
}

// connect runs transport establishment plus the MCP handshake: initialize,
// the initialized notification, then tool discovery.
func (c *serverConn) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.transport.Connect(ctx); err != nil {
		c.fail(err)
		return err
	}
	go c.readLoop()

	if _, err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	}); err != nil {
		c.fail(err)
		return err
	}

	if err := c.transport.Send(ctx, newNotification("notifications/initialized", nil)); err != nil {
		c.fail(err)
		return err
	}

	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		c.fail(err)
		return err
	}
	var list toolListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		err = fmt.Errorf("%w: malformed tools/list result: %v", ErrTransport, err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.tools = list.Tools
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

// callTool invokes one remote tool. A result flagged isError by the server
// is returned as an error carrying the server's message.
func (c *serverConn) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: malformed tools/call result: %v", ErrTransport, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s on server %s failed: %s", name, c.name, result.text())
	}
	return result.text(), nil
}

// call performs one correlated request/response round trip.
func (c *serverConn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	c.sendMu.Lock()
	c.nextID++
	id := c.nextID
	waiter := make(chan *Response, 1)

	c.mu.Lock()
	c.pending[id] = waiter
	c.mu.Unlock()

	err := c.transport.Send(ctx, newRequest(id, method, params))
	c.sendMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return nil, c.transportErr()
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrTransport, method, resp.Error.Message)
		}
		return resp.Result, nil
	case <-c.done:
		return nil, c.transportErr()
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, method, ctx.Err())
	}
}

func (c *serverConn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *serverConn) transportErr() error {
	if err := c.transport.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s: connection closed", ErrTransport, c.name)
}

// readLoop delivers inbound responses to their waiters until the transport
// dies or the connection closes. Pending dispatches fail rather than hang.
func (c *serverConn) readLoop() {
	for {
		select {
		case resp, ok := <-c.transport.Receive():
			if !ok {
				c.failPending()
				c.mu.Lock()
				if c.state != StateDisconnected {
					c.state = StateFailed
				}
				c.mu.Unlock()
				return
			}
			c.deliver(resp)
		case <-c.done:
			c.failPending()
			return
		}
	}
}

func (c *serverConn) deliver(resp *Response) {
	c.mu.Lock()
	waiter, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		// Unsolicited or already timed out; skip, matching the framing
		// tolerance of Send side.
		c.log.Debug("dropping uncorrelated response", zap.Int64("id", resp.ID))
		return
	}
	waiter <- resp
}

// failPending closes every waiter so blocked calls observe the closure.
func (c *serverConn) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan *Response)
	c.mu.Unlock()
	for _, waiter := range pending {
		close(waiter)
	}
}

// fail marks the connection Failed and tears the transport down.
func (c *serverConn) fail(err error) {
	c.log.Warn("connection failed", zap.Error(err))
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
	c.setState(StateFailed)
}

// close is the deliberate teardown: Disconnected, not Failed.
func (c *serverConn) close() { _ = c.closeErr() }

func (c *serverConn) closeErr() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
		err = c.transport.Close()
	})
	return err
}
