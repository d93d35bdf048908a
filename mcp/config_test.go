package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio ok", ServerConfig{Name: "fs", Transport: TransportStdio, Command: "npx"}, false},
		{"http ok", ServerConfig{Name: "api", Transport: TransportHTTP, URL: "http://localhost:8080"}, false},
		{"https ok", ServerConfig{Name: "api", Transport: TransportHTTPS, URL: "https://example.com"}, false},
		{"missing name", ServerConfig{Transport: TransportStdio, Command: "npx"}, true},
		{"stdio without command", ServerConfig{Name: "fs", Transport: TransportStdio}, true},
		{"http without url", ServerConfig{Name: "api", Transport: TransportHTTP}, true},
		{"unknown transport", ServerConfig{Name: "x", Transport: "websocket", URL: "ws://x"}, true},
		{"empty transport", ServerConfig{Name: "x", Command: "npx"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestServerConfig_AllowsTool(t *testing.T) {
	open := ServerConfig{Name: "s"}
	assert.True(t, open.AllowsTool("anything"), "empty filter allows all tools")

	filtered := ServerConfig{Name: "s", ToolFilter: []string{"search_*", "read"}}
	assert.True(t, filtered.AllowsTool("search_files"))
	assert.True(t, filtered.AllowsTool("read"))
	assert.False(t, filtered.AllowsTool("write"))
	assert.False(t, filtered.AllowsTool("readme"))
}

func TestParseServers(t *testing.T) {
	data := []byte(`[
		{"name": "files", "transport": "stdio", "command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem"], "enabled": true, "autoConnect": true},
		{"name": "graph", "transport": "https", "url": "https://mcp.example.com", "enabled": true, "autoConnect": false}
	]`)
	configs, err := ParseServers(data)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "files", configs[0].Name)
	assert.True(t, configs[0].AutoConnect)
	assert.Equal(t, TransportHTTPS, configs[1].Transport)
}

func TestParseServers_DuplicateNames(t *testing.T) {
	data := []byte(`[
		{"name": "dup", "transport": "stdio", "command": "a", "enabled": true},
		{"name": "dup", "transport": "stdio", "command": "b", "enabled": true}
	]`)
	_, err := ParseServers(data)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseServers_UnknownTransportRejected(t *testing.T) {
	data := []byte(`[{"name": "x", "transport": "carrier-pigeon", "url": "coop://x", "enabled": true}]`)
	_, err := ParseServers(data)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseServers_ExtraIsPreserved(t *testing.T) {
	data := []byte(`[{"name": "x", "transport": "stdio", "command": "npx", "enabled": true,
		"extra": {"vendor": "acme", "retries": 3}}]`)
	configs, err := ParseServers(data)
	require.NoError(t, err)
	assert.Equal(t, "acme", configs[0].Extra["vendor"])
}

func TestLoadServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "s", "transport": "http", "url": "http://h", "enabled": true}]`), 0o644))

	configs, err := LoadServers(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	_, err = LoadServers(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
