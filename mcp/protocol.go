package mcp

import (
	"encoding/json"
	"strings"
)

// JSON-RPC 2.0 wire types shared by all transports.

const jsonrpcVersion = "2.0"

// protocolVersion is the MCP revision announced during the initialize
// handshake.
const protocolVersion = "2024-11-05"

// Request is an outbound JSON-RPC message. A zero ID marks a notification,
// which expects no response.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound JSON-RPC message correlated to a Request by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a failed JSON-RPC call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

func newRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

func newNotification(method string, params any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// initializeParams is sent as the first request on every connection.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolInfo describes a tool discovered from a server.
type ToolInfo struct {
	// Name is the tool's name as reported by the server.
	Name string `json:"name"`

	// Description is a human-readable description of the tool.
	Description string `json:"description,omitempty"`

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// toolListResult is the payload of a tools/list response.
type toolListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// callToolParams is the payload of a tools/call request.
type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// callToolResult is the payload of a tools/call response.
type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// text flattens the textual content blocks of a tool result.
func (r callToolResult) text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
