package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
poll-seconds = 2.5

[game-ports]
start = 40000
end = 40002

[defaults]
image = "r2northstar/northstar-dedicated:latest"
game-dir = "titanfall2"

[servers.a]
name = "Server A"

[servers.b]
name = "Server B"
game-port = 40010
mode = "tdm"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "supervisor.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadResolvesPathsRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	filled := cfg.FilledServers()
	require.Len(t, filled, 2)
	assert.True(t, filepath.IsAbs(filled[0].GameConfig.GameDir))
	assert.Equal(t, filepath.Join(cfg.Dir, "titanfall2"), filled[0].GameConfig.GameDir)
}

func TestLoadAppliesPortRangeAndPollSeconds(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(40000), cfg.GamePorts.Start)
	assert.Equal(t, uint16(40002), cfg.GamePorts.End)
	assert.Equal(t, 2.5, cfg.PollSeconds)
}

func TestLoadHonorsPinnedPortAndInheritsDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	byID := map[string]FilledInstanceConfig{}
	for _, s := range cfg.FilledServers() {
		byID[s.ID] = s
	}

	require.Nil(t, byID["a"].GamePort)
	require.NotNil(t, byID["b"].GamePort)
	assert.Equal(t, uint16(40010), *byID["b"].GamePort)

	// Both servers inherit the image from defaults.
	assert.Equal(t, "r2northstar/northstar-dedicated:latest", byID["a"].GameConfig.Image)
	assert.Equal(t, "r2northstar/northstar-dedicated:latest", byID["b"].GameConfig.Image)
}

func TestLoadResolvesDefaultLogsDirRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, "[servers.a]\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	filled := cfg.FilledServers()
	require.Len(t, filled, 1)
	assert.True(t, filepath.IsAbs(filled[0].GameConfig.LogsDir))
	assert.Equal(t, filepath.Join(cfg.Dir, "logs", "a"), filled[0].GameConfig.LogsDir)
}

func TestLoadDefaultsPollSecondsAndPortRangeWhenUnset(t *testing.T) {
	path := writeConfig(t, "[servers.a]\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.PollSeconds)
	assert.Equal(t, uint16(37015), cfg.GamePorts.Start)
	assert.Equal(t, uint16(37020), cfg.GamePorts.End)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownEnumValue(t *testing.T) {
	path := writeConfig(t, "[servers.a]\nplayer-permissions = \"everyone\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestPortRangeContains(t *testing.T) {
	r := PortRange{Start: 100, End: 200}
	assert.True(t, r.Contains(100))
	assert.True(t, r.Contains(200))
	assert.True(t, r.Contains(150))
	assert.False(t, r.Contains(99))
	assert.False(t, r.Contains(201))
}
