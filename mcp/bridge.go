package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bridge naming convention: mcp__{server}__{tool}. Namespacing keeps remote
// tool names from colliding with each other and with local tools.

const bridgePrefix = "mcp__"

// BridgedTool is a remote tool adapted for registration with the agent.
type BridgedTool struct {
	// ServerName is the server this tool belongs to.
	ServerName string

	// ToolName is the original tool name from the server.
	ToolName string

	// FullName is the namespaced name: mcp__{server}__{tool}.
	FullName string

	// Description is the tool's description from the server.
	Description string

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage
}

// BridgeToolName returns the namespaced tool name for a server/tool pair.
func BridgeToolName(serverName, toolName string) string {
	return bridgePrefix + serverName + "__" + toolName
}

// IsBridgedName reports whether a tool name uses the bridge namespace.
func IsBridgedName(name string) bool {
	return strings.HasPrefix(name, bridgePrefix)
}

// ParseBridgedName splits a namespaced tool name into server and tool.
func ParseBridgedName(fullName string) (server, tool string, err error) {
	rest, ok := strings.CutPrefix(fullName, bridgePrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a bridged tool name", ErrToolNotFound, fullName)
	}
	server, tool, ok = strings.Cut(rest, "__")
	if !ok || server == "" || tool == "" {
		return "", "", fmt.Errorf("%w: malformed bridged tool name %q", ErrToolNotFound, fullName)
	}
	return server, tool, nil
}
