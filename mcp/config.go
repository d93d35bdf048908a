// Package mcp manages connections to external MCP (Model Context Protocol)
// tool servers over heterogeneous transports: a standard-stream subprocess,
// plain HTTP, or HTTPS. The Manager supervises one connection per enabled
// server and bridges remote tools into the agent under namespaced names.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// TransportType identifies the wire mechanism used to reach a server.
type TransportType string

const (
	// TransportStdio spawns a subprocess and frames messages over its
	// standard input/output.
	TransportStdio TransportType = "stdio"

	// TransportHTTP issues one plain HTTP request per outbound message.
	TransportHTTP TransportType = "http"

	// TransportHTTPS is TransportHTTP plus transport-level encryption and
	// certificate validation. Never downgraded to plain HTTP.
	TransportHTTPS TransportType = "https"
)

// ServerConfig describes one configured tool server.
type ServerConfig struct {
	// Name is the unique, stable key identifying the server.
	Name string `json:"name"`

	// Transport selects the wire mechanism.
	Transport TransportType `json:"transport"`

	// Command is the executable to spawn (stdio only).
	Command string `json:"command,omitempty"`

	// Args are command-line arguments for the subprocess.
	Args []string `json:"args,omitempty"`

	// Env are extra environment variables for the subprocess.
	Env map[string]string `json:"env,omitempty"`

	// URL is the server address (http and https).
	URL string `json:"url,omitempty"`

	// Enabled controls whether the server participates at all.
	Enabled bool `json:"enabled"`

	// AutoConnect connects the server at initialization rather than on
	// first use.
	AutoConnect bool `json:"autoConnect"`

	// ToolFilter is an optional include list of doublestar patterns
	// matched against tool names. Empty means all tools are exposed.
	ToolFilter []string `json:"toolFilter,omitempty"`

	// Extra carries unvalidated extension data. Recognized fields above
	// are fixed; anything else belongs here explicitly.
	Extra map[string]any `json:"extra,omitempty"`
}

// Validate checks that the config names a known transport and carries the
// parameters that transport requires. Unknown transports are rejected, not
// silently ignored.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("%w: %s: stdio transport requires command", ErrInvalidConfig, c.Name)
		}
	case TransportHTTP, TransportHTTPS:
		if c.URL == "" {
			return fmt.Errorf("%w: %s: %s transport requires url", ErrInvalidConfig, c.Name, c.Transport)
		}
	default:
		return fmt.Errorf("%w: %s: unknown transport %q", ErrInvalidConfig, c.Name, c.Transport)
	}
	return nil
}

// AllowsTool reports whether the server exposes the given (unqualified) tool
// name under its ToolFilter.
func (c ServerConfig) AllowsTool(name string) bool {
	if len(c.ToolFilter) == 0 {
		return true
	}
	for _, pattern := range c.ToolFilter {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// LoadServers reads an ordered list of server configs from a JSON file.
// Every config is validated and duplicate names are rejected.
func LoadServers(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseServers(data)
}

// ParseServers decodes and validates an ordered JSON list of server configs.
func ParseServers(data []byte) ([]ServerConfig, error) {
	var configs []ServerConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate server name %q", ErrInvalidConfig, cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
	}
	return configs, nil
}
