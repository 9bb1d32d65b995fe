// Package config holds the declarative configuration for the supervisor:
// the servers it should manage, the global defaults they inherit from, and
// the port pool and poll interval that govern the cluster.
//
// Like lazydocker's pkg/config, every user-facing field is optional and is
// merged onto a set of built-in defaults before being handed to the rest of
// the program. The merge is two-layered: a "raw" struct where every field is
// a pointer/zero-value-means-unset, and a "filled" struct where every field
// has been resolved.
package config

import "fmt"

// PrivateLobbyPlayerPermissions controls who may change settings/start a
// private match. The integer values match what the game client expects.
type PrivateLobbyPlayerPermissions int

const (
	PermissionAll PrivateLobbyPlayerPermissions = iota
	PermissionMapModeOnly
	PermissionNone
)

func (p PrivateLobbyPlayerPermissions) String() string {
	switch p {
	case PermissionAll:
		return "all"
	case PermissionMapModeOnly:
		return "map-mode-only"
	case PermissionNone:
		return "none"
	default:
		return fmt.Sprintf("permissions(%d)", int(p))
	}
}

func parsePermissions(s string) (PrivateLobbyPlayerPermissions, error) {
	switch s {
	case "all":
		return PermissionAll, nil
	case "map-mode-only":
		return PermissionMapModeOnly, nil
	case "none":
		return PermissionNone, nil
	default:
		return 0, fmt.Errorf("unknown player-permissions value %q", s)
	}
}

// PilotBleedout controls whether a downed pilot can be revived.
type PilotBleedout int

const (
	BleedoutDefault PilotBleedout = iota
	BleedoutDisabled
	BleedoutEnabled
)

func parseBleedout(s string) (PilotBleedout, error) {
	switch s {
	case "default":
		return BleedoutDefault, nil
	case "disabled":
		return BleedoutDisabled, nil
	case "enabled":
		return BleedoutEnabled, nil
	default:
		return 0, fmt.Errorf("unknown pilot-bleedout-mode value %q", s)
	}
}

// BoostMeterOverdrive controls the pilot boost-meter-overdrive behavior.
type BoostMeterOverdrive int

const (
	OverdriveEnabled BoostMeterOverdrive = iota
	OverdriveDisabled
	OverdriveOnly
)

func parseOverdrive(s string) (BoostMeterOverdrive, error) {
	switch s {
	case "enabled":
		return OverdriveEnabled, nil
	case "disabled":
		return OverdriveDisabled, nil
	case "only":
		return OverdriveOnly, nil
	default:
		return 0, fmt.Errorf("unknown pilot-boost-meter-overdrive value %q", s)
	}
}

// GraphicsMode selects between hardware and software rendering for the
// dedicated server process.
type GraphicsMode int

const (
	GraphicsDefault GraphicsMode = iota
	GraphicsSoftware
)

func parseGraphicsMode(s string) (GraphicsMode, error) {
	switch s {
	case "default":
		return GraphicsDefault, nil
	case "software":
		return GraphicsSoftware, nil
	default:
		return 0, fmt.Errorf("unknown graphics-mode value %q", s)
	}
}

// Riff is a named gameplay feature flag. The string value is the TOML key
// used in a server's riffs set and doubles as the playlist-var token name
// that the argument builder emits when the riff is present.
type Riff string

const (
	RiffFloorIsLava        Riff = "riff_floorislava"
	RiffAllHolopilot       Riff = "featured_mode_all_holopilot"
	RiffAllGrapple         Riff = "featured_mode_all_grapple"
	RiffAllPhase           Riff = "featured_mode_all_phase"
	RiffAllTicks           Riff = "featured_mode_all_ticks"
	RiffTactikill          Riff = "featured_mode_tactikill"
	RiffAmpedTacticals     Riff = "featured_mode_amped_tacticals"
	RiffRocketArena        Riff = "featured_mode_rocket_arena"
	RiffShotgunsSnipers    Riff = "featured_mode_shotguns_snipers"
	RiffIronRules          Riff = "iron_rules"
	RiffFirstPersonEmbark  Riff = "fp_embark_enabled"
	RiffInstagib           Riff = "riff_instagib"
)
