package mcp

import "context"

// Transport is the uniform four-operation contract every driver implements.
// It moves raw JSON-RPC messages; request/response correlation and the MCP
// handshake live in the connection layer so new transports can be added
// without touching lifecycle logic.
type Transport interface {
	// Connect establishes the connection. Fails with an error wrapping
	// ErrConnection.
	Connect(ctx context.Context) error

	// Send writes one outbound message. Fails with an error wrapping
	// ErrTransport once the connection is broken.
	Send(ctx context.Context, req *Request) error

	// Receive returns the lazy sequence of inbound messages. The channel
	// is closed on terminal transport failure or Close; it is restartable
	// only via reconnect (a fresh Transport).
	Receive() <-chan *Response

	// Err reports the terminal transport error after Receive closes, if
	// the closure was not a clean Close.
	Err() error

	// Close tears down the connection. Idempotent, safe on an
	// already-closed handle.
	Close() error
}

// NewTransport creates the Transport matching the config's transport type.
func NewTransport(cfg ServerConfig) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportStdio:
		return newStdioTransport(cfg), nil
	case TransportHTTP, TransportHTTPS:
		return newHTTPTransport(cfg)
	default:
		// Validate rejects unknown transports already.
		panic("unreachable")
	}
}
