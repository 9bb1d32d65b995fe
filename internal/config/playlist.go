package config

// PlaylistOverrides is a bag of gameplay-tuning fields, every one optional.
// An unset field (nil pointer) means "inherit from the other side of an Or".
// Riffs are a set, unioned rather than overridden.
type PlaylistOverrides struct {
	Riffs []Riff `toml:"riffs"`

	MatchClassicMPEnabled  *bool    `toml:"match-classic-mp-enabled"`
	MatchEpilogueEnabled   *bool    `toml:"match-epilogue-enabled"`
	MatchScoreLimit        *float64 `toml:"match-scorelimit"`
	MatchRoundScoreLimit   *float64 `toml:"match-round-scorelimit"`
	MatchTimeLimit         *float64 `toml:"match-timelimit"`
	MatchRoundTimeLimit    *float64 `toml:"match-round-timelimit"`
	MatchOOBTimerEnabled   *bool    `toml:"match-oob-timer-enabled"`
	MatchMaxPlayers        *int     `toml:"match-max-players"`

	TitanBoostMeterMultiplier      *float64 `toml:"titan-boost-meter-multiplier"`
	TitanAegisUpgradesEnabled      *bool    `toml:"titan-aegis-upgrades-enabled"`
	TitanInfiniteDoomedStateEnabled *bool   `toml:"titan-infinite-doomed-state-enabled"`
	TitanShieldRegenEnabled        *bool    `toml:"titan-shield-regen-enabled"`
	TitanClassicRodeoEnabled       *bool    `toml:"titan-classic-rodeo-enabled"`

	PilotBleedoutMode             *PilotBleedout `toml:"-"`
	PilotBleedoutModeRaw          *string        `toml:"pilot-bleedout-mode"`
	PilotBleedoutHolsterWhenDown  *bool          `toml:"pilot-bleedout-holster-when-down"`
	PilotBleedoutDieOnTeamBleedout *bool         `toml:"pilot-bleedout-die-on-team-bleedout"`
	PilotBleedoutBleedoutTime     *float64       `toml:"pilot-bleedout-bleedout-time"`
	PilotBleedoutFirstaidTime     *float64       `toml:"pilot-bleedout-firstaid-time"`
	PilotBleedoutSelfresTime      *float64       `toml:"pilot-bleedout-selfres-time"`
	PilotBleedoutFirstaidHealPercent *float64    `toml:"pilot-bleedout-firstaid-heal-percent"`
	PilotBleedoutDownAIMissChance *float64       `toml:"pilot-bleedout-down-ai-miss-chance"`

	PromodeWeaponsEnabled *bool `toml:"promode-weapons-enabled"`

	PilotHealthMultiplier     *float64              `toml:"pilot-health-multiplier"`
	PilotRespawnDelay         *float64              `toml:"pilot-respawn-delay"`
	PilotBoostsEnabled        *bool                 `toml:"pilot-boosts-enabled"`
	PilotBoostMeterOverdrive        *BoostMeterOverdrive `toml:"-"`
	PilotBoostMeterOverdriveRaw     *string              `toml:"pilot-boost-meter-overdrive"`
	PilotBoostMeterMultiplier *float64              `toml:"pilot-boost-meter-multiplier"`
	PilotAirAcceleration      *float64              `toml:"pilot-air-acceleration"`
	PilotCollisionEnabled     *bool                 `toml:"pilot-collision-enabled"`
}

// resolveEnums parses the string-valued enum fields decoded from TOML into
// their typed representations. Must be called once after Decode.
func (p *PlaylistOverrides) resolveEnums() error {
	if p.PilotBleedoutModeRaw != nil {
		v, err := parseBleedout(*p.PilotBleedoutModeRaw)
		if err != nil {
			return err
		}
		p.PilotBleedoutMode = &v
	}
	if p.PilotBoostMeterOverdriveRaw != nil {
		v, err := parseOverdrive(*p.PilotBoostMeterOverdriveRaw)
		if err != nil {
			return err
		}
		p.PilotBoostMeterOverdrive = &v
	}
	return nil
}

func boolOr(a, b *bool) *bool {
	if a != nil {
		return a
	}
	return b
}

func float64Or(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func intOr(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func bleedoutOr(a, b *PilotBleedout) *PilotBleedout {
	if a != nil {
		return a
	}
	return b
}

func overdriveOr(a, b *BoostMeterOverdrive) *BoostMeterOverdrive {
	if a != nil {
		return a
	}
	return b
}

// Or returns a new PlaylistOverrides where each scalar field equals p's
// field if set, else other's. Riff sets are unioned. Or is left-biased: when
// both sides set a scalar, p wins.
func (p PlaylistOverrides) Or(other PlaylistOverrides) PlaylistOverrides {
	riffSet := make(map[Riff]bool, len(p.Riffs)+len(other.Riffs))
	for _, r := range other.Riffs {
		riffSet[r] = true
	}
	for _, r := range p.Riffs {
		riffSet[r] = true
	}
	riffs := make([]Riff, 0, len(riffSet))
	for r := range riffSet {
		riffs = append(riffs, r)
	}

	return PlaylistOverrides{
		Riffs: riffs,

		MatchClassicMPEnabled: boolOr(p.MatchClassicMPEnabled, other.MatchClassicMPEnabled),
		MatchEpilogueEnabled:  boolOr(p.MatchEpilogueEnabled, other.MatchEpilogueEnabled),
		MatchScoreLimit:       float64Or(p.MatchScoreLimit, other.MatchScoreLimit),
		MatchRoundScoreLimit:  float64Or(p.MatchRoundScoreLimit, other.MatchRoundScoreLimit),
		MatchTimeLimit:        float64Or(p.MatchTimeLimit, other.MatchTimeLimit),
		MatchRoundTimeLimit:   float64Or(p.MatchRoundTimeLimit, other.MatchRoundTimeLimit),
		MatchOOBTimerEnabled:  boolOr(p.MatchOOBTimerEnabled, other.MatchOOBTimerEnabled),
		MatchMaxPlayers:       intOr(p.MatchMaxPlayers, other.MatchMaxPlayers),

		TitanBoostMeterMultiplier:       float64Or(p.TitanBoostMeterMultiplier, other.TitanBoostMeterMultiplier),
		TitanAegisUpgradesEnabled:       boolOr(p.TitanAegisUpgradesEnabled, other.TitanAegisUpgradesEnabled),
		TitanInfiniteDoomedStateEnabled: boolOr(p.TitanInfiniteDoomedStateEnabled, other.TitanInfiniteDoomedStateEnabled),
		TitanShieldRegenEnabled:         boolOr(p.TitanShieldRegenEnabled, other.TitanShieldRegenEnabled),
		TitanClassicRodeoEnabled:        boolOr(p.TitanClassicRodeoEnabled, other.TitanClassicRodeoEnabled),

		PilotBleedoutMode:                bleedoutOr(p.PilotBleedoutMode, other.PilotBleedoutMode),
		PilotBleedoutHolsterWhenDown:     boolOr(p.PilotBleedoutHolsterWhenDown, other.PilotBleedoutHolsterWhenDown),
		PilotBleedoutDieOnTeamBleedout:   boolOr(p.PilotBleedoutDieOnTeamBleedout, other.PilotBleedoutDieOnTeamBleedout),
		PilotBleedoutBleedoutTime:        float64Or(p.PilotBleedoutBleedoutTime, other.PilotBleedoutBleedoutTime),
		PilotBleedoutFirstaidTime:        float64Or(p.PilotBleedoutFirstaidTime, other.PilotBleedoutFirstaidTime),
		PilotBleedoutSelfresTime:         float64Or(p.PilotBleedoutSelfresTime, other.PilotBleedoutSelfresTime),
		PilotBleedoutFirstaidHealPercent: float64Or(p.PilotBleedoutFirstaidHealPercent, other.PilotBleedoutFirstaidHealPercent),
		PilotBleedoutDownAIMissChance:    float64Or(p.PilotBleedoutDownAIMissChance, other.PilotBleedoutDownAIMissChance),

		PromodeWeaponsEnabled: boolOr(p.PromodeWeaponsEnabled, other.PromodeWeaponsEnabled),

		PilotHealthMultiplier:     float64Or(p.PilotHealthMultiplier, other.PilotHealthMultiplier),
		PilotRespawnDelay:         float64Or(p.PilotRespawnDelay, other.PilotRespawnDelay),
		PilotBoostsEnabled:        boolOr(p.PilotBoostsEnabled, other.PilotBoostsEnabled),
		PilotBoostMeterOverdrive:  overdriveOr(p.PilotBoostMeterOverdrive, other.PilotBoostMeterOverdrive),
		PilotBoostMeterMultiplier: float64Or(p.PilotBoostMeterMultiplier, other.PilotBoostMeterMultiplier),
		PilotAirAcceleration:      float64Or(p.PilotAirAcceleration, other.PilotAirAcceleration),
		PilotCollisionEnabled:     boolOr(p.PilotCollisionEnabled, other.PilotCollisionEnabled),
	}
}
