// Package argbuilder deterministically flattens a filled instance config
// plus a runtime-assigned port into the environment-variable list passed to
// a server's container. It is pure: no I/O, no global state.
package argbuilder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nstack/wraith-supervisor/internal/config"
)

// Builder accumulates four buckets: env vars, flag args, kv args, and
// playlist vars. Bucket mutation methods return the receiver so call
// sites in Build (below) read as a flat list of settings.
type Builder struct {
	kvEnv        *orderedMap
	flagArgs     map[string]bool
	kvArgs       *orderedMap
	playlistVars *orderedMap
}

// orderedMap preserves insertion order for string keys, since kv buckets
// and playlist vars must emit in the order they were set.
type orderedMap struct {
	keys   []string
	values map[string]string
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: map[string]string{}}
}

func (m *orderedMap) set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *orderedMap) unset(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// New returns an empty Builder. The original arg builder always starts by
// disabling spew logging; we carry that one fixed default forward.
func New() *Builder {
	b := &Builder{
		kvEnv:        newOrderedMap(),
		flagArgs:     map[string]bool{},
		kvArgs:       newOrderedMap(),
		playlistVars: newOrderedMap(),
	}
	b.setKV("+spewlog_enable", "0")
	return b
}

func (b *Builder) setFlag(key string, enabled bool) {
	b.flagArgs[key] = enabled
}

func (b *Builder) setKVEnv(key, value string) {
	b.kvEnv.set(key, value)
}

func (b *Builder) setKV(key, value string) {
	b.kvArgs.set(key, value)
}

func (b *Builder) setPlaylistVar(key, value string) {
	b.playlistVars.set(key, value)
}

func (b *Builder) setPlaylistVarOptBool(key string, value *bool) {
	if value == nil {
		b.playlistVars.unset(key)
		return
	}
	b.setPlaylistVar(key, boolVar(*value))
}

func (b *Builder) setPlaylistVarOptFloat(key string, value *float64) {
	if value == nil {
		b.playlistVars.unset(key)
		return
	}
	b.setPlaylistVar(key, floatVar(*value))
}

func (b *Builder) setPlaylistVarOptInt(key string, value *int) {
	if value == nil {
		b.playlistVars.unset(key)
		return
	}
	b.setPlaylistVar(key, strconv.Itoa(*value))
}

func boolVar(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func floatVar(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetName sets NS_SERVER_NAME.
func (b *Builder) SetName(name string) *Builder {
	b.setKVEnv("NS_SERVER_NAME", name)
	return b
}

// SetGamePort sets NS_PORT.
func (b *Builder) SetGamePort(port uint16) *Builder {
	b.setKVEnv("NS_PORT", strconv.Itoa(int(port)))
	return b
}

// SetGameConfig applies every field of a filled game config to the builder,
// in a fixed, documented order.
func (b *Builder) SetGameConfig(g config.FilledGameConfig) *Builder {
	b.setKVEnv("NS_SERVER_DESC", g.Description)
	b.setKVEnv("NS_SERVER_PASSWORD", g.Password)

	b.setKV("+base_tickinterval_mp", floatVar(1/float64(g.TickRate)))
	b.setKV("+sv_updaterate_mp", strconv.Itoa(int(g.UpdateRate)))
	b.setKV("+sv_max_snapshots_multiplayer", strconv.Itoa(int(g.UpdateRate)*15))
	b.setKV("+sv_minupdaterate", strconv.Itoa(int(g.MinUpdateRate)))

	b.setKVEnv("NS_MASTERSERVER_REGISTER", boolVar(g.ReportToMaster))
	b.setKVEnv("NS_MASTERSERVER_URL", g.MasterURL)
	b.setKVEnv("NS_INSECURE", boolVar(g.AllowInsecure))

	b.setKV("+net_usesocketsforloopback", boolVar(g.UseSocketsForLoopback))
	b.setKV("+everything_unlocked", boolVar(g.EverythingUnlocked))
	b.setKV("+ns_should_return_to_lobby", boolVar(g.ShouldReturnToLobby))

	b.setKV("+ns_private_match_only_host_can_change_settings", strconv.Itoa(int(g.PlayerPermissions)))
	b.setKV("+ns_private_match_only_host_can_start", boolVar(g.OnlyHostCanStart))
	b.setKV("+ns_private_match_countdown_length", strconv.Itoa(int(g.CountdownLengthSeconds)))

	b.setFlag("-softwared3d11", g.GraphicsMode == config.GraphicsSoftware)

	b.setKV("+setplaylist", g.Playlist)
	if g.Mode != nil {
		b.setKV("+mp_gamemode", *g.Mode)
	}
	if g.Map != nil {
		b.setKV("+map", *g.Map)
	}
	if g.DefaultMode != nil {
		b.setKV("+ns_private_match_last_mode", *g.DefaultMode)
	}
	if g.DefaultMap != nil {
		b.setKV("+ns_private_match_last_map", *g.DefaultMap)
	}

	b.setPlaylistOverrides(g.PlaylistOverrides)
	b.addExtraPlaylistVars(g.ExtraPlaylistVars)
	b.addExtraVars(g.ExtraEnv)

	return b
}

func (b *Builder) setPlaylistOverrides(p config.PlaylistOverrides) {
	riffs := map[config.Riff]bool{}
	for _, r := range p.Riffs {
		riffs[r] = true
	}
	for _, r := range []config.Riff{
		config.RiffFloorIsLava, config.RiffAllHolopilot, config.RiffAllGrapple,
		config.RiffAllPhase, config.RiffAllTicks, config.RiffTactikill,
		config.RiffAmpedTacticals, config.RiffRocketArena, config.RiffShotgunsSnipers,
		config.RiffIronRules, config.RiffFirstPersonEmbark, config.RiffInstagib,
	} {
		if riffs[r] {
			b.setPlaylistVar(string(r), "1")
		} else {
			b.playlistVars.unset(string(r))
		}
	}

	b.setPlaylistVarOptBool("classic_mp", p.MatchClassicMPEnabled)
	b.setPlaylistVarOptBool("run_epilogue", p.MatchEpilogueEnabled)
	b.setPlaylistVarOptFloat("scorelimit", p.MatchScoreLimit)
	b.setPlaylistVarOptFloat("roundscorelimit", p.MatchRoundScoreLimit)
	b.setPlaylistVarOptFloat("timelimit", p.MatchTimeLimit)
	b.setPlaylistVarOptFloat("roundtimelimit", p.MatchRoundTimeLimit)
	b.setPlaylistVarOptBool("oob_timer_enabled", p.MatchOOBTimerEnabled)
	b.setPlaylistVarOptInt("max_players", p.MatchMaxPlayers)
	b.setFlag("-maxplayersplaylist", p.MatchMaxPlayers != nil)

	b.setPlaylistVarOptFloat("earn_meter_titan_multiplier", p.TitanBoostMeterMultiplier)
	b.setPlaylistVarOptBool("aegis_upgrades", p.TitanAegisUpgradesEnabled)
	b.setPlaylistVarOptBool("infinite_doomed_state", p.TitanInfiniteDoomedStateEnabled)
	b.setPlaylistVarOptBool("titan_shield_regen", p.TitanShieldRegenEnabled)
	b.setPlaylistVarOptBool("classic_rodeo", p.TitanClassicRodeoEnabled)

	if p.PilotBleedoutMode != nil {
		b.setPlaylistVar("riff_player_bleedout", strconv.Itoa(int(*p.PilotBleedoutMode)))
	} else {
		b.playlistVars.unset("riff_player_bleedout")
	}
	b.setPlaylistVarOptBool("player_bleedout_forceHolster", p.PilotBleedoutHolsterWhenDown)
	b.setPlaylistVarOptBool("player_bleedout_forceDeathOnTeamBleedout", p.PilotBleedoutDieOnTeamBleedout)
	b.setPlaylistVarOptFloat("player_bleedout_bleedoutTime", p.PilotBleedoutBleedoutTime)
	b.setPlaylistVarOptFloat("player_bleedout_firstAidTime", p.PilotBleedoutFirstaidTime)
	b.setPlaylistVarOptFloat("player_bleedout_firstAidTimeSelf", p.PilotBleedoutSelfresTime)
	b.setPlaylistVarOptFloat("player_bleedout_firstAidHealPercent", p.PilotBleedoutFirstaidHealPercent)
	b.setPlaylistVarOptFloat("player_bleedout_aiBleedingPlayerMissChance", p.PilotBleedoutDownAIMissChance)

	b.setPlaylistVarOptBool("promode_enable", p.PromodeWeaponsEnabled)

	b.setPlaylistVarOptFloat("pilot_health_multiplier", p.PilotHealthMultiplier)
	b.setPlaylistVarOptFloat("respawn_delay", p.PilotRespawnDelay)
	// pilot_boosts_enabled is semantically inverted: the game's
	// "boosts_enabled" var means the OPPOSITE of our pilot-boosts-enabled.
	if p.PilotBoostsEnabled != nil {
		negated := !*p.PilotBoostsEnabled
		b.setPlaylistVarOptBool("boosts_enabled", &negated)
	} else {
		b.playlistVars.unset("boosts_enabled")
	}
	if p.PilotBoostMeterOverdrive != nil {
		b.setPlaylistVar("earn_meter_pilot_overdrive", strconv.Itoa(int(*p.PilotBoostMeterOverdrive)))
	} else {
		b.playlistVars.unset("earn_meter_pilot_overdrive")
	}
	b.setPlaylistVarOptFloat("earn_meter_pilot_multiplier", p.PilotBoostMeterMultiplier)
	b.setPlaylistVarOptFloat("custom_air_accel_pilot", p.PilotAirAcceleration)
	// pilot_collision_enabled is also semantically inverted, onto
	// "no_pilot_collision".
	if p.PilotCollisionEnabled != nil {
		negated := !*p.PilotCollisionEnabled
		b.setPlaylistVarOptBool("no_pilot_collision", &negated)
	} else {
		b.playlistVars.unset("no_pilot_collision")
	}
}

func (b *Builder) addExtraPlaylistVars(vars map[string]string) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.setPlaylistVar(k, vars[k])
	}
}

func (b *Builder) addExtraVars(vars map[string]string) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.setKV("+"+k, vars[k])
	}
}

// Build assembles the four buckets into the final env-var list: every
// kv_env entry as its own KEY=VALUE, plus a single NS_EXTRA_ARGUMENTS whose
// value is the space-joined, double-quoted token list (flag args, then kv
// args flattened to key/value pairs, then the literal
// "+setplaylistvaroverrides" key and its flattened, space-joined value).
func (b *Builder) Build() []string {
	extraArgs := make([]string, 0, len(b.flagArgs)+2*len(b.kvArgs.keys)+2)
	flagKeys := make([]string, 0, len(b.flagArgs))
	for k, enabled := range b.flagArgs {
		if enabled {
			flagKeys = append(flagKeys, k)
		}
	}
	sort.Strings(flagKeys)
	extraArgs = append(extraArgs, flagKeys...)

	for _, k := range b.kvArgs.keys {
		extraArgs = append(extraArgs, k, b.kvArgs.values[k])
	}

	extraArgs = append(extraArgs, "+setplaylistvaroverrides")
	playlistTokens := make([]string, 0, 2*len(b.playlistVars.keys))
	for _, k := range b.playlistVars.keys {
		playlistTokens = append(playlistTokens, k, b.playlistVars.values[k])
	}
	extraArgs = append(extraArgs, strings.Join(playlistTokens, " "))

	quoted := make([]string, len(extraArgs))
	for i, a := range extraArgs {
		quoted[i] = fmt.Sprintf("%q", a)
	}

	out := make([]string, 0, len(b.kvEnv.keys)+1)
	for _, k := range b.kvEnv.keys {
		out = append(out, k+"="+b.kvEnv.values[k])
	}
	out = append(out, "NS_EXTRA_ARGUMENTS="+strings.Join(quoted, " "))
	return out
}

// BuildEnv is the entry point used by the server start path: it combines
// the instance name, runtime-assigned port, and filled game config into the
// final environment variable list for the container.
func BuildEnv(name string, gamePort uint16, g config.FilledGameConfig) []string {
	b := New().SetName(name).SetGamePort(gamePort).SetGameConfig(g)
	out := b.Build()
	if len(g.ExtraArgs) > 0 {
		// Extra bare args (not key/value) are appended verbatim inside the
		// NS_EXTRA_ARGUMENTS token list by rebuilding with them folded in.
		return buildWithExtraArgs(out, g.ExtraArgs)
	}
	return out
}

func buildWithExtraArgs(built []string, extra []string) []string {
	for i, kv := range built {
		if strings.HasPrefix(kv, "NS_EXTRA_ARGUMENTS=") {
			quoted := make([]string, len(extra))
			for j, a := range extra {
				quoted[j] = fmt.Sprintf("%q", a)
			}
			built[i] = kv + " " + strings.Join(quoted, " ")
		}
	}
	return built
}
