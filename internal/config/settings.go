// Package config handles settings loading for the agent core.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds merged configuration from multiple sources.
// Later sources override earlier ones (user < project < local).
type Settings struct {
	SystemPrompt  string         `json:"systemPrompt,omitempty" yaml:"systemPrompt"`
	Mode          string         `json:"mode,omitempty" yaml:"mode"`
	MaxToolRounds int            `json:"maxToolRounds,omitempty" yaml:"maxToolRounds"`
	ServersFile   string         `json:"serversFile,omitempty" yaml:"serversFile"`
	Custom        map[string]any `json:"custom,omitempty" yaml:"custom"`
}

// LoadSettings merges settings from multiple file paths. JSON and YAML are
// both accepted, decided by extension. Later paths override earlier ones.
// Missing files are silently skipped.
func LoadSettings(paths ...string) (*Settings, error) {
	merged := &Settings{
		Custom: make(map[string]any),
	}

	for _, path := range paths {
		s, err := loadSettingsFile(path)
		if err != nil {
			continue // Skip missing or invalid files
		}
		mergeSettings(merged, s)
	}

	return merged, nil
}

func loadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func mergeSettings(dst, src *Settings) {
	if src.SystemPrompt != "" {
		dst.SystemPrompt = src.SystemPrompt
	}
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
	if src.MaxToolRounds > 0 {
		dst.MaxToolRounds = src.MaxToolRounds
	}
	if src.ServersFile != "" {
		dst.ServersFile = src.ServersFile
	}
	for k, v := range src.Custom {
		if dst.Custom == nil {
			dst.Custom = make(map[string]any)
		}
		dst.Custom[k] = v
	}
}
