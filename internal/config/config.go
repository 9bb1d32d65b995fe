package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// PortRange is an inclusive range of UDP ports the pool allocator draws
// from for servers that don't pin a port.
type PortRange struct {
	Start uint16 `toml:"start"`
	End   uint16 `toml:"end"`
}

func (r PortRange) Contains(port uint16) bool {
	return port >= r.Start && port <= r.End
}

// InstanceConfig is a single declared server: the user-chosen id (the
// mapping key in the TOML servers table), a display name, an optional
// pinned port, and its game configuration.
type InstanceConfig struct {
	Name     string  `toml:"name"`
	GamePort *uint16 `toml:"game-port"`
	GameConfig
}

// FilledInstanceConfig is an InstanceConfig combined with the global
// defaults and resolved against the defaults table.
type FilledInstanceConfig struct {
	ID         string
	Name       string
	GamePort   *uint16
	GameConfig FilledGameConfig
}

// MakeFilled combines ic with the global defaults and fills every optional
// scalar.
func (ic InstanceConfig) MakeFilled(id string, defaults GameConfig) FilledInstanceConfig {
	name := ic.Name
	if name == "" {
		name = id
	}
	return FilledInstanceConfig{
		ID:         id,
		Name:       name,
		GamePort:   ic.GamePort,
		GameConfig: ic.GameConfig.Or(defaults).Fill(id),
	}
}

// Config is the top-level parsed configuration file.
type Config struct {
	PollSeconds float64                    `toml:"poll-seconds"`
	GamePorts   PortRange                  `toml:"game-ports"`
	Defaults    GameConfig                 `toml:"defaults"`
	Servers     map[string]InstanceConfig  `toml:"servers"`

	// Dir is the directory the config file lives in; path-valued fields
	// (game-dir, logs-dir, mods) are resolved relative to it.
	Dir string `toml:"-"`
}

func defaultConfig() Config {
	return Config{
		PollSeconds: 5.0,
		GamePorts:   PortRange{Start: 37015, End: 37020},
		Servers:     map[string]InstanceConfig{},
	}
}

// Load reads and parses the TOML configuration file at path, resolving
// every enum and path-valued field.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}

	if err := cfg.Defaults.resolveEnums(); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	cfg.resolvePaths(&cfg.Defaults)

	for id, server := range cfg.Servers {
		if err := server.GameConfig.resolveEnums(); err != nil {
			return nil, fmt.Errorf("server %q: %w", id, err)
		}
		cfg.resolvePaths(&server.GameConfig)
		cfg.Servers[id] = server
	}

	return &cfg, nil
}

// resolvePaths rewrites path-valued fields relative to the config file's
// directory, in place.
func (c *Config) resolvePaths(g *GameConfig) {
	if g.GameDir != nil && !filepath.IsAbs(*g.GameDir) {
		abs := filepath.Join(c.Dir, *g.GameDir)
		g.GameDir = &abs
	}
	if g.LogsDir != nil && !filepath.IsAbs(*g.LogsDir) {
		abs := filepath.Join(c.Dir, *g.LogsDir)
		g.LogsDir = &abs
	}
	for i, mod := range g.Mods {
		if !filepath.IsAbs(mod) {
			g.Mods[i] = filepath.Join(c.Dir, mod)
		}
	}
}

// resolveFilledPaths re-applies the config-directory-relative resolution to
// a FilledGameConfig's path fields. resolvePaths already handled every
// user-supplied value before Fill ran, but Fill's documented fallback
// default for logs-dir ("logs/{id}") is itself a relative path that was
// never seen by resolvePaths, so it's resolved here, once, after filling.
// Already-absolute paths (the common case) pass through unchanged.
func (c *Config) resolveFilledPaths(g *FilledGameConfig) {
	if g.LogsDir != "" && !filepath.IsAbs(g.LogsDir) {
		g.LogsDir = filepath.Join(c.Dir, g.LogsDir)
	}
	if g.GameDir != "" && !filepath.IsAbs(g.GameDir) {
		g.GameDir = filepath.Join(c.Dir, g.GameDir)
	}
}

// FilledServers returns every declared server combined with the global
// defaults, filled, and sorted by id so callers get a deterministic
// iteration order on first load.
func (c *Config) FilledServers() []FilledInstanceConfig {
	ids := make([]string, 0, len(c.Servers))
	for id := range c.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]FilledInstanceConfig, 0, len(ids))
	for _, id := range ids {
		fic := c.Servers[id].MakeFilled(id, c.Defaults)
		c.resolveFilledPaths(&fic.GameConfig)
		out = append(out, fic)
	}
	return out
}
