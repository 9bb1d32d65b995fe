package config

// ResourceLimits caps how much of the host a single instance may consume.
type ResourceLimits struct {
	MemoryBytes   *int64   `toml:"memory-bytes"`
	VMemoryBytes  *int64   `toml:"virtual-memory-bytes"`
	CPUFraction   *float64 `toml:"cpu-fraction"`
	CPUSet        *string  `toml:"cpu-set"`
}

func (r ResourceLimits) or(other ResourceLimits) ResourceLimits {
	return ResourceLimits{
		MemoryBytes:  int64Or(r.MemoryBytes, other.MemoryBytes),
		VMemoryBytes: int64Or(r.VMemoryBytes, other.VMemoryBytes),
		CPUFraction:  float64Or(r.CPUFraction, other.CPUFraction),
		CPUSet:       stringOr(r.CPUSet, other.CPUSet),
	}
}

func int64Or(a, b *int64) *int64 {
	if a != nil {
		return a
	}
	return b
}

func stringOr(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}

// GameConfig is the optional-field shape of a server's full configuration.
// Every field inherits from defaults when unset; list/set fields
// concatenate with left-side priority.
type GameConfig struct {
	Image       *string `toml:"image"`
	GameDir     *string `toml:"game-dir"`
	Description *string `toml:"description"`
	Password    *string `toml:"password"`

	TickRate      *uint32 `toml:"tick-rate"`
	UpdateRate    *uint32 `toml:"update-rate"`
	MinUpdateRate *uint32 `toml:"min-update-rate"`

	ReportToMaster *bool   `toml:"report-to-master"`
	MasterURL      *string `toml:"master-url"`
	AllowInsecure  *bool   `toml:"allow-insecure"`

	UseSocketsForLoopback *bool `toml:"use-sockets-for-loopback"`
	EverythingUnlocked    *bool `toml:"everything-unlocked"`
	ShouldReturnToLobby   *bool `toml:"should-return-to-lobby"`

	PlayerPermissionsRaw *string                        `toml:"player-permissions"`
	PlayerPermissions    *PrivateLobbyPlayerPermissions `toml:"-"`

	OnlyHostCanStart        *bool   `toml:"only-host-can-start"`
	CountdownLengthSeconds  *uint32 `toml:"countdown-length-seconds"`

	GraphicsModeRaw *string       `toml:"graphics-mode"`
	GraphicsMode    *GraphicsMode `toml:"-"`

	Playlist    *string `toml:"playlist"`
	Mode        *string `toml:"mode"`
	Map         *string `toml:"map"`
	DefaultMode *string `toml:"default-mode"`
	DefaultMap  *string `toml:"default-map"`

	Limits ResourceLimits `toml:"limits"`

	CronSchedule *string `toml:"cron-schedule"`

	Mods []string `toml:"mods"`

	ExtraEnv          map[string]string `toml:"extra-env"`
	ExtraArgs         []string          `toml:"extra-args"`
	ExtraPlaylistVars map[string]string `toml:"extra-playlist-vars"`
	ExtraMounts       []BindMount       `toml:"extra-mounts"`

	PlaylistOverrides PlaylistOverrides `toml:"overrides"`
	LogsDir           *string           `toml:"logs-dir"`
}

// BindMount is a user-supplied bind mount, host path to container path.
type BindMount struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`
	ReadOnly    bool   `toml:"read-only"`
}

func (g *GameConfig) resolveEnums() error {
	if err := g.PlaylistOverrides.resolveEnums(); err != nil {
		return err
	}
	if g.PlayerPermissionsRaw != nil {
		v, err := parsePermissions(*g.PlayerPermissionsRaw)
		if err != nil {
			return err
		}
		g.PlayerPermissions = &v
	}
	if g.GraphicsModeRaw != nil {
		v, err := parseGraphicsMode(*g.GraphicsModeRaw)
		if err != nil {
			return err
		}
		g.GraphicsMode = &v
	}
	return nil
}

func uint32Or(a, b *uint32) *uint32 {
	if a != nil {
		return a
	}
	return b
}

func permissionsOr(a, b *PrivateLobbyPlayerPermissions) *PrivateLobbyPlayerPermissions {
	if a != nil {
		return a
	}
	return b
}

func graphicsModeOr(a, b *GraphicsMode) *GraphicsMode {
	if a != nil {
		return a
	}
	return b
}

func mergeStringMap(left, right map[string]string) map[string]string {
	out := make(map[string]string, len(left)+len(right))
	for k, v := range right {
		out[k] = v
	}
	for k, v := range left {
		out[k] = v
	}
	return out
}

// Or combines g with other: scalars are left-biased, list/set fields
// concatenate with g's entries first, and PlaylistOverrides recurses.
func (g GameConfig) Or(other GameConfig) GameConfig {
	return GameConfig{
		Image:       stringOr(g.Image, other.Image),
		GameDir:     stringOr(g.GameDir, other.GameDir),
		Description: stringOr(g.Description, other.Description),
		Password:    stringOr(g.Password, other.Password),

		TickRate:      uint32Or(g.TickRate, other.TickRate),
		UpdateRate:    uint32Or(g.UpdateRate, other.UpdateRate),
		MinUpdateRate: uint32Or(g.MinUpdateRate, other.MinUpdateRate),

		ReportToMaster: boolOr(g.ReportToMaster, other.ReportToMaster),
		MasterURL:      stringOr(g.MasterURL, other.MasterURL),
		AllowInsecure:  boolOr(g.AllowInsecure, other.AllowInsecure),

		UseSocketsForLoopback: boolOr(g.UseSocketsForLoopback, other.UseSocketsForLoopback),
		EverythingUnlocked:    boolOr(g.EverythingUnlocked, other.EverythingUnlocked),
		ShouldReturnToLobby:   boolOr(g.ShouldReturnToLobby, other.ShouldReturnToLobby),

		PlayerPermissions: permissionsOr(g.PlayerPermissions, other.PlayerPermissions),

		OnlyHostCanStart:       boolOr(g.OnlyHostCanStart, other.OnlyHostCanStart),
		CountdownLengthSeconds: uint32Or(g.CountdownLengthSeconds, other.CountdownLengthSeconds),

		GraphicsMode: graphicsModeOr(g.GraphicsMode, other.GraphicsMode),

		Playlist:    stringOr(g.Playlist, other.Playlist),
		Mode:        stringOr(g.Mode, other.Mode),
		Map:         stringOr(g.Map, other.Map),
		DefaultMode: stringOr(g.DefaultMode, other.DefaultMode),
		DefaultMap:  stringOr(g.DefaultMap, other.DefaultMap),

		Limits: g.Limits.or(other.Limits),

		CronSchedule: stringOr(g.CronSchedule, other.CronSchedule),

		Mods: append(append([]string{}, g.Mods...), other.Mods...),

		ExtraEnv:          mergeStringMap(g.ExtraEnv, other.ExtraEnv),
		ExtraArgs:         append(append([]string{}, g.ExtraArgs...), other.ExtraArgs...),
		ExtraPlaylistVars: mergeStringMap(g.ExtraPlaylistVars, other.ExtraPlaylistVars),
		ExtraMounts:       append(append([]BindMount{}, g.ExtraMounts...), other.ExtraMounts...),

		PlaylistOverrides: g.PlaylistOverrides.Or(other.PlaylistOverrides),
		LogsDir:           stringOr(g.LogsDir, other.LogsDir),
	}
}

// FilledGameConfig has every optional scalar resolved against the defaults
// table. It is the only type the argument builder and server start path
// accept.
type FilledGameConfig struct {
	Image       string
	GameDir     string
	Description string
	Password    string

	TickRate      uint32
	UpdateRate    uint32
	MinUpdateRate uint32

	ReportToMaster bool
	MasterURL      string
	AllowInsecure  bool

	UseSocketsForLoopback bool
	EverythingUnlocked    bool
	ShouldReturnToLobby   bool

	PlayerPermissions PrivateLobbyPlayerPermissions

	OnlyHostCanStart       bool
	CountdownLengthSeconds uint32

	GraphicsMode GraphicsMode

	Playlist    string
	Mode        *string
	Map         *string
	DefaultMode *string
	DefaultMap  *string

	Limits ResourceLimits

	CronSchedule *string

	Mods []string

	ExtraEnv          map[string]string
	ExtraArgs         []string
	ExtraPlaylistVars map[string]string
	ExtraMounts       []BindMount

	PlaylistOverrides PlaylistOverrides
	LogsDir           string
}

// Fill resolves g (already merged with defaults via Or) against the
// documented fallback values in the config defaults table, and expands
// "{id}" in the logs directory.
func (g GameConfig) Fill(id string) FilledGameConfig {
	f := FilledGameConfig{
		Image:       derefString(g.Image, ""),
		GameDir:     derefString(g.GameDir, ""),
		Description: derefString(g.Description, "Your favourite wraith server"),
		Password:    derefString(g.Password, ""),

		TickRate:      derefUint32(g.TickRate, 60),
		UpdateRate:    derefUint32(g.UpdateRate, 20),
		MinUpdateRate: derefUint32(g.MinUpdateRate, 20),

		ReportToMaster: derefBool(g.ReportToMaster, true),
		MasterURL:      derefString(g.MasterURL, "https://northstar.tf"),
		AllowInsecure:  derefBool(g.AllowInsecure, false),

		UseSocketsForLoopback: derefBool(g.UseSocketsForLoopback, true),
		EverythingUnlocked:    derefBool(g.EverythingUnlocked, true),
		ShouldReturnToLobby:   derefBool(g.ShouldReturnToLobby, true),

		PlayerPermissions: derefPermissions(g.PlayerPermissions, PermissionAll),

		OnlyHostCanStart:       derefBool(g.OnlyHostCanStart, false),
		CountdownLengthSeconds: derefUint32(g.CountdownLengthSeconds, 15),

		GraphicsMode: derefGraphicsMode(g.GraphicsMode, GraphicsDefault),

		Playlist:    derefString(g.Playlist, "private_match"),
		Mode:        g.Mode,
		Map:         g.Map,
		DefaultMode: g.DefaultMode,
		DefaultMap:  g.DefaultMap,

		Limits: g.Limits,

		CronSchedule: g.CronSchedule,

		Mods: g.Mods,

		ExtraEnv:          g.ExtraEnv,
		ExtraArgs:         g.ExtraArgs,
		ExtraPlaylistVars: g.ExtraPlaylistVars,
		ExtraMounts:       g.ExtraMounts,

		PlaylistOverrides: g.PlaylistOverrides,
		LogsDir:           expandID(derefString(g.LogsDir, "logs/{id}"), id),
	}
	return f
}

func expandID(template, id string) string {
	out := make([]byte, 0, len(template))
	for i := 0; i < len(template); i++ {
		if template[i] == '{' && i+3 < len(template) && template[i+1:i+4] == "id}" {
			out = append(out, id...)
			i += 3
			continue
		}
		out = append(out, template[i])
	}
	return string(out)
}

func derefString(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func derefBool(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func derefUint32(p *uint32, def uint32) uint32 {
	if p != nil {
		return *p
	}
	return def
}

func derefPermissions(p *PrivateLobbyPlayerPermissions, def PrivateLobbyPlayerPermissions) PrivateLobbyPlayerPermissions {
	if p != nil {
		return *p
	}
	return def
}

func derefGraphicsMode(p *GraphicsMode, def GraphicsMode) GraphicsMode {
	if p != nil {
		return *p
	}
	return def
}
