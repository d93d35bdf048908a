package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.json",
		`{"systemPrompt":"be helpful","mode":"autonomous","maxToolRounds":4,"custom":{"theme":"dark"}}`)

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "be helpful", s.SystemPrompt)
	assert.Equal(t, "autonomous", s.Mode)
	assert.Equal(t, 4, s.MaxToolRounds)
	assert.Equal(t, "dark", s.Custom["theme"])
}

func TestLoadSettings_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", `
systemPrompt: from yaml
mode: returnBytes
serversFile: servers.json
custom:
  region: eu-west-1
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "from yaml", s.SystemPrompt)
	assert.Equal(t, "returnBytes", s.Mode)
	assert.Equal(t, "servers.json", s.ServersFile)
	assert.Equal(t, "eu-west-1", s.Custom["region"])
}

func TestLoadSettings_LaterPathsOverride(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.json", `{"systemPrompt":"user","maxToolRounds":2,"custom":{"a":1,"b":1}}`)
	project := writeFile(t, dir, "project.yml", `
systemPrompt: project
custom:
  b: 2
`)

	s, err := LoadSettings(user, project)
	require.NoError(t, err)
	assert.Equal(t, "project", s.SystemPrompt)
	assert.Equal(t, 2, s.MaxToolRounds, "fields absent from later files keep earlier values")
	assert.Equal(t, float64(1), s.Custom["a"])
	assert.Equal(t, 2, s.Custom["b"])
}

func TestLoadSettings_MissingAndInvalidFilesSkipped(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.json", `{`)
	good := writeFile(t, dir, "good.json", `{"mode":"autonomous"}`)

	s, err := LoadSettings(filepath.Join(dir, "absent.json"), broken, good)
	require.NoError(t, err)
	assert.Equal(t, "autonomous", s.Mode)
}
