package game

import (
	"math"
	"math/rand"
	"time"

	"arena-shooter/internal/config"
	"arena-shooter/internal/game/spatial"
	"arena-shooter/internal/protocol"
)

// Input is one frame of player intent. Movement, aim and fire are held
// until the next input replaces them; Reload and Select fire once.
type Input struct {
	MoveX    float64  `json:"moveX"`
	MoveY    float64  `json:"moveY"`
	AimX     float64  `json:"aimX"`
	AimY     float64  `json:"aimY"`
	AimAngle *float64 `json:"aimAngle,omitempty"`
	Fire     bool     `json:"fire"`
	Reload   bool     `json:"reload,omitempty"`
	Select   *int     `json:"select,omitempty"`
}

// RemotePlayer is display data published by another participant.
type RemotePlayer struct {
	protocol.PlayerState
	LastSeen time.Time
}

// KillRecord attributes one enemy death.
type KillRecord struct {
	EnemyID string
	Killer  string
}

// MeleeStrike lists the enemies hit by one local melee swing.
type MeleeStrike struct {
	EnemyIDs []string
	Damage   float64
	Stun     float64
}

// FrameOutput collects what happened during one Step, for the network and
// event sinks.
type FrameOutput struct {
	Fired      []*Bullet
	Melee      []MeleeStrike
	Kills      []KillRecord
	Spawned    []string
	Picked     int
	DamageTook float64
	Died       bool
}

func (o *FrameOutput) reset() {
	o.Fired = o.Fired[:0]
	o.Melee = o.Melee[:0]
	o.Kills = o.Kills[:0]
	o.Spawned = o.Spawned[:0]
	o.Picked = 0
	o.DamageTook = 0
	o.Died = false
}

// WorldConfig configures a World.
type WorldConfig struct {
	Username string
	Role     protocol.Role
	Sim      config.SimConfig
	Limits   config.ResourceLimits
	Seed     int64
}

// World is the entity model of one session plus the combat rules that
// mutate it. It has exactly one writer: the session loop (or a test).
type World struct {
	Role          protocol.Role
	Clock         Clock
	Player        *Player
	Enemies       []*Enemy
	Bullets       []*Bullet
	EnemyBullets  []*Bullet
	RemoteBullets []*RemoteBullet
	RemotePlayers map[string]*RemotePlayer
	Pickups       []*Pickup
	Particles     []*Particle
	Overrides     *OverrideState
	Arena         Arena
	Director      SpawnDirector

	tuning  config.SimConfig
	limits  config.ResourceLimits
	input   Input
	rng     *rand.Rand
	grid    *spatial.SpatialGrid
	removed map[*Enemy]struct{}
	out     FrameOutput
}

// NewWorld creates a world with the player at the origin under spawn immunity.
func NewWorld(cfg WorldConfig) *World {
	sim := cfg.Sim
	w := &World{
		Role:          cfg.Role,
		Clock:         NewClock(sim.MaxFrameDelta),
		Player:        NewPlayer(cfg.Username),
		RemotePlayers: make(map[string]*RemotePlayer),
		Overrides:     NewOverrideState(),
		Arena:         NewArena(sim.ArenaBase, sim.ArenaGrowth),
		Director:      NewSpawnDirector(sim.SpawnInterval, sim.SpawnDecay, sim.SpawnFloor),
		tuning:        sim,
		limits:        cfg.Limits,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		grid:          spatial.NewSpatialGrid(sim.ArenaBase, sim.GridCellSize, 256),
		removed:       make(map[*Enemy]struct{}),
	}
	w.Player.Reset(0, sim.ImmunitySeconds)
	return w
}

// Output returns what the current frame produced. Valid until BeginFrame.
func (w *World) Output() *FrameOutput { return &w.out }

// SetInput latches held intent and applies the one-shot triggers.
func (w *World) SetInput(in Input) {
	if math.IsNaN(in.MoveX) || math.IsNaN(in.MoveY) {
		in.MoveX, in.MoveY = 0, 0
	}
	if in.Select != nil {
		w.selectWeapon(*in.Select)
	}
	if in.Reload {
		w.startReload()
	}
	in.Select = nil
	in.Reload = false
	w.input = in
}

// BeginFrame clears the previous frame's output. Inbox and network messages
// applied after it contribute to the same frame.
func (w *World) BeginFrame() {
	w.out.reset()
}

// Advance moves the clock by dt (clamped) and runs one frame. Used by
// deterministic drivers; the session loop uses Clock.Tick instead.
func (w *World) Advance(dt float64, now time.Time) {
	w.BeginFrame()
	w.Step(w.Clock.Advance(dt), now.UnixMilli())
}

// Step runs one simulation frame of length dt in fixed order. While the
// local player is dead only a host keeps its enemies running, for its peers.
func (w *World) Step(dt float64, nowMs int64) {
	alive := !w.Player.Dead
	if !alive && w.Role != protocol.RoleHost {
		return
	}

	w.updateFreezes()
	if alive {
		w.updateMovement(dt)
		w.updateAim()
		w.updateReload()
		w.updateFiring()
	}
	w.rebuildGrid()
	w.updateBullets(dt)
	w.updateRemoteBullets(nowMs)
	w.compactEnemies()
	w.updateEnemies(dt)
	if alive {
		w.updateEnemyBullets(dt)
		w.updateContactDamage(dt)
		w.updatePickups(dt)
	}
	w.updateParticles(dt)
	w.updateSpawns()

	if alive && w.Player.HP <= 0 {
		w.Player.Dead = true
		w.out.Died = true
		w.input = Input{}
	}
}

// Revive resets the player and re-opens the immunity window.
func (w *World) Revive() {
	w.Player.Reset(w.Clock.SimTime, w.tuning.ImmunitySeconds)
	w.EnemyBullets = w.EnemyBullets[:0]
	w.input = Input{}
}

func (w *World) enemyByID(id string) *Enemy {
	for _, e := range w.Enemies {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// markRemoved flags an enemy for removal at the next compaction so grid
// indices stay valid for the rest of the frame.
func (w *World) markRemoved(e *Enemy) {
	w.removed[e] = struct{}{}
}

func (w *World) isRemoved(e *Enemy) bool {
	_, ok := w.removed[e]
	return ok
}

func (w *World) compactEnemies() {
	if len(w.removed) == 0 {
		return
	}
	n := 0
	for _, e := range w.Enemies {
		if _, gone := w.removed[e]; !gone {
			w.Enemies[n] = e
			n++
		}
	}
	clear(w.Enemies[n:])
	w.Enemies = w.Enemies[:n]
	clear(w.removed)
}

func (w *World) rebuildGrid() {
	w.grid.Reset(w.Arena.Bound())
	for i, e := range w.Enemies {
		if !w.isRemoved(e) {
			w.grid.Insert(uint32(i), e.X, e.Y)
		}
	}
}
