package mcp

import "errors"

// Sentinel errors for the MCP package.
var (
	// ErrConnection is returned when a connection to a server cannot be
	// established (spawn failure, unreachable host, TLS validation).
	ErrConnection = errors.New("mcp: connection error")

	// ErrTransport is returned when an established connection breaks
	// (protocol violation, unexpected process exit, closed mid-dispatch).
	ErrTransport = errors.New("mcp: transport error")

	// ErrServerNotConnected is returned by Dispatch when the target server
	// has no live connection and lazy connect also failed.
	ErrServerNotConnected = errors.New("mcp: server not connected")

	// ErrServerNotFound is returned when referencing a server name that
	// does not exist in the Manager.
	ErrServerNotFound = errors.New("mcp: server not found")

	// ErrServerDisabled is returned when a dispatch targets a disabled
	// server. A disabled server never has a live connection.
	ErrServerDisabled = errors.New("mcp: server disabled")

	// ErrToolNotFound is returned when a bridged tool name cannot be
	// resolved to a known server/tool pair.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrInvalidConfig is returned when a ServerConfig has an unknown
	// transport or is missing required fields for its transport type.
	ErrInvalidConfig = errors.New("mcp: invalid server config")
)
