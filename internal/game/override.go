package game

import (
	"errors"
	"fmt"
	"math"
)

// Override layer constants.
const (
	TeleportDistance = 6.0
	TeleportCooldown = 3.0
	FreezeDuration   = 5.0
	SizeSmallRadius  = 0.3
	SizeBigRadius    = 0.8
	MaxSpawnCommand  = 50
	MinSpeedMult     = 0.1
	MaxSpeedMult     = 5.0
)

// ErrOverrideRejected marks a command the session refused to apply.
var ErrOverrideRejected = errors.New("override rejected")

// OverrideState is owned by one session and read by combat every frame.
type OverrideState struct {
	GodMode         bool
	InfiniteAmmo    bool
	SpeedMultiplier float64
	frozen          map[string]frozenEnemy
}

type frozenEnemy struct {
	speed float64
	until float64
}

// NewOverrideState returns the neutral state.
func NewOverrideState() *OverrideState {
	return &OverrideState{SpeedMultiplier: 1, frozen: make(map[string]frozenEnemy)}
}

// Reset clears every flag. Called when the session ends.
func (o *OverrideState) Reset() {
	o.GodMode = false
	o.InfiniteAmmo = false
	o.SpeedMultiplier = 1
	clear(o.frozen)
}

// Frozen reports whether enemy id is held by a freeze.
func (o *OverrideState) Frozen(id string) bool {
	_, ok := o.frozen[id]
	return ok
}

// FrozenCount returns how many enemies are frozen.
func (o *OverrideState) FrozenCount() int { return len(o.frozen) }

// effectiveFireRate is zero under god mode.
func (o *OverrideState) effectiveFireRate(w WeaponConfig) float64 {
	if o.GodMode {
		return 0
	}
	return w.FireRate
}

func (o *OverrideState) unlimitedAmmo() bool {
	return o.GodMode || o.InfiniteAmmo
}

// OverrideKind enumerates command-channel mutations.
type OverrideKind uint8

const (
	OverrideGodMode OverrideKind = iota + 1
	OverrideInfiniteAmmo
	OverrideSpeed
	OverrideHeal
	OverrideNuke
	OverrideSpawn
	OverrideTP
	OverrideFreeze
	OverrideTeleport
	OverrideSize
)

var overrideNames = map[OverrideKind]string{
	OverrideGodMode:      "godmode",
	OverrideInfiniteAmmo: "infiniteammo",
	OverrideSpeed:        "speed",
	OverrideHeal:         "heal",
	OverrideNuke:         "nuke",
	OverrideSpawn:        "spawn",
	OverrideTP:           "tp",
	OverrideFreeze:       "freeze",
	OverrideTeleport:     "teleport",
	OverrideSize:         "size",
}

func (k OverrideKind) String() string {
	if n, ok := overrideNames[k]; ok {
		return n
	}
	return "unknown"
}

// OverrideCommand is a parsed, authorized command ready for the session.
type OverrideCommand struct {
	Kind   OverrideKind
	Value  float64 // speed multiplier, heal amount
	Count  int     // spawn count
	X, Y   float64 // tp target
	Big    bool    // size
	Issuer string
}

// applyOverride mutates the world for one command. Rejected commands leave
// state untouched.
func (w *World) applyOverride(cmd OverrideCommand) error {
	o := w.Overrides
	p := w.Player
	now := w.Clock.SimTime

	switch cmd.Kind {
	case OverrideGodMode:
		o.GodMode = !o.GodMode
	case OverrideInfiniteAmmo:
		o.InfiniteAmmo = !o.InfiniteAmmo
	case OverrideSpeed:
		if math.IsNaN(cmd.Value) || cmd.Value <= 0 {
			return fmt.Errorf("%w: speed %v", ErrOverrideRejected, cmd.Value)
		}
		o.SpeedMultiplier = math.Min(MaxSpeedMult, math.Max(MinSpeedMult, cmd.Value))
	case OverrideHeal:
		if math.IsNaN(cmd.Value) || cmd.Value <= 0 || p.Dead {
			return fmt.Errorf("%w: heal %v", ErrOverrideRejected, cmd.Value)
		}
		p.Heal(cmd.Value)
	case OverrideNuke:
		if !w.Role.Authoritative() {
			return fmt.Errorf("%w: nuke requires enemy authority", ErrOverrideRejected)
		}
		for _, e := range w.Enemies {
			e.HP = 0
			w.killEnemy(e, p.Username)
		}
		w.compactEnemies()
		clear(o.frozen)
	case OverrideSpawn:
		if !w.Role.Authoritative() {
			return fmt.Errorf("%w: spawn requires enemy authority", ErrOverrideRejected)
		}
		if cmd.Count <= 0 {
			return fmt.Errorf("%w: spawn %d", ErrOverrideRejected, cmd.Count)
		}
		n := min(cmd.Count, MaxSpawnCommand)
		for i := 0; i < n; i++ {
			w.spawnEnemy()
		}
	case OverrideTP:
		if math.IsNaN(cmd.X) || math.IsNaN(cmd.Y) {
			return fmt.Errorf("%w: tp target", ErrOverrideRejected)
		}
		b := w.Arena.Bound()
		p.X = clamp(cmd.X, -b, b)
		p.Y = clamp(cmd.Y, -b, b)
	case OverrideFreeze:
		if !w.Role.Authoritative() {
			return fmt.Errorf("%w: freeze requires enemy authority", ErrOverrideRejected)
		}
		for _, e := range w.Enemies {
			if _, ok := o.frozen[e.ID]; ok {
				continue
			}
			o.frozen[e.ID] = frozenEnemy{speed: e.Speed, until: now + FreezeDuration}
			e.Speed = 0
		}
	case OverrideTeleport:
		if now-p.LastTeleportTime < TeleportCooldown-fireEpsilon {
			return fmt.Errorf("%w: teleport on cooldown", ErrOverrideRejected)
		}
		b := w.Arena.Bound()
		p.X = clamp(p.X+math.Cos(p.Aim)*TeleportDistance, -b, b)
		p.Y = clamp(p.Y+math.Sin(p.Aim)*TeleportDistance, -b, b)
		p.LastTeleportTime = now
	case OverrideSize:
		if cmd.Big {
			p.Radius = SizeBigRadius
		} else {
			p.Radius = SizeSmallRadius
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrOverrideRejected, cmd.Kind)
	}
	return nil
}

// updateFreezes restores speeds whose freeze window has closed and forgets
// enemies that no longer exist.
func (w *World) updateFreezes() {
	o := w.Overrides
	if len(o.frozen) == 0 {
		return
	}
	now := w.Clock.SimTime
	for id, f := range o.frozen {
		e := w.enemyByID(id)
		if e == nil {
			delete(o.frozen, id)
			continue
		}
		if now >= f.until {
			e.Speed = f.speed
			delete(o.frozen, id)
		}
	}
}
