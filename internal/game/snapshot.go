package game

import (
	"sort"
	"sync/atomic"
	"time"

	"arena-shooter/internal/protocol"
)

// PlayerView is an immutable copy of the local player for rendering.
type PlayerView struct {
	Username  string  `json:"username"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Aim       float64 `json:"aim"`
	HP        float64 `json:"hp"`
	MaxHP     float64 `json:"maxHp"`
	Weapon    string  `json:"weapon"`
	Ammo      int     `json:"ammo"`
	MaxAmmo   int     `json:"maxAmmo"`
	Score     int     `json:"score"`
	Dead      bool    `json:"dead"`
	Immune    bool    `json:"immune"`
	Reloading bool    `json:"reloading"`
}

// EnemyView is an immutable enemy copy.
type EnemyView struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	HP     float64 `json:"hp"`
	MaxHP  float64 `json:"maxHp"`
	Stun   float64 `json:"stun,omitempty"`
	Frozen bool    `json:"frozen,omitempty"`
}

// BulletView covers local, enemy and dead-reckoned remote bullets.
type BulletView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
	Alpha  float64 `json:"alpha"`
}

// PickupView is an immutable pickup copy.
type PickupView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Amount int     `json:"amount"`
	TTL    float64 `json:"ttl"`
}

// ParticleView is an immutable particle copy.
type ParticleView struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Life  float64 `json:"life"`
}

// OverrideView mirrors the session's override flags.
type OverrideView struct {
	GodMode         bool    `json:"godMode"`
	InfiniteAmmo    bool    `json:"infiniteAmmo"`
	SpeedMultiplier float64 `json:"speedMultiplier"`
	Frozen          int     `json:"frozen"`
}

// SessionSnapshot is the read-only render sink view of one frame.
type SessionSnapshot struct {
	Sequence      uint64                 `json:"sequence"`
	Timestamp     time.Time              `json:"timestamp"`
	Frame         uint64                 `json:"frame"`
	SimTime       float64                `json:"simTime"`
	SessionID     string                 `json:"sessionId"`
	Room          string                 `json:"room,omitempty"`
	Role          string                 `json:"role"`
	State         string                 `json:"state"`
	Connected     bool                   `json:"connected"`
	ArenaBound    float64                `json:"arenaBound"`
	SpawnInterval float64                `json:"spawnInterval"`
	Player        PlayerView             `json:"player"`
	Enemies       []EnemyView            `json:"enemies"`
	Bullets       []BulletView           `json:"bullets"`
	EnemyBullets  []BulletView           `json:"enemyBullets"`
	RemoteBullets []BulletView           `json:"remoteBullets"`
	RemotePlayers []protocol.PlayerState `json:"remotePlayers"`
	Pickups       []PickupView           `json:"pickups"`
	Particles     []ParticleView         `json:"particles"`
	Overrides     OverrideView           `json:"overrides"`
}

// Snapshot copies the entity model into a fresh SessionSnapshot.
func (w *World) Snapshot() *SessionSnapshot {
	p := w.Player
	now := w.Clock.SimTime
	s := &SessionSnapshot{
		Frame:         w.Clock.Frames,
		SimTime:       now,
		Role:          w.Role.String(),
		ArenaBound:    w.Arena.Bound(),
		SpawnInterval: w.Director.Interval,
		Player: PlayerView{
			Username: p.Username, X: p.X, Y: p.Y, Radius: p.Radius, Aim: p.Aim,
			HP: p.HP, MaxHP: p.MaxHP, Weapon: p.Weapon.String(),
			Ammo: p.Ammo, MaxAmmo: p.MaxAmmo, Score: p.Score, Dead: p.Dead,
			Immune: p.Immune(now), Reloading: p.ReloadUntil > 0,
		},
		Enemies:       make([]EnemyView, 0, len(w.Enemies)),
		Bullets:       make([]BulletView, 0, len(w.Bullets)),
		EnemyBullets:  make([]BulletView, 0, len(w.EnemyBullets)),
		RemoteBullets: make([]BulletView, 0, len(w.RemoteBullets)),
		RemotePlayers: make([]protocol.PlayerState, 0, len(w.RemotePlayers)),
		Pickups:       make([]PickupView, 0, len(w.Pickups)),
		Particles:     make([]ParticleView, 0, len(w.Particles)),
		Overrides: OverrideView{
			GodMode:         w.Overrides.GodMode,
			InfiniteAmmo:    w.Overrides.InfiniteAmmo,
			SpeedMultiplier: w.Overrides.SpeedMultiplier,
			Frozen:          w.Overrides.FrozenCount(),
		},
	}

	for _, e := range w.Enemies {
		s.Enemies = append(s.Enemies, EnemyView{
			ID: e.ID, X: e.X, Y: e.Y, Radius: e.Radius, HP: e.HP, MaxHP: e.MaxHP,
			Stun: e.Stun, Frozen: w.Overrides.Frozen(e.ID),
		})
	}
	for _, b := range w.Bullets {
		s.Bullets = append(s.Bullets, BulletView{X: b.X, Y: b.Y, Radius: b.Radius, Color: b.Color, Alpha: 1})
	}
	for _, b := range w.EnemyBullets {
		s.EnemyBullets = append(s.EnemyBullets, BulletView{X: b.X, Y: b.Y, Radius: b.Radius, Color: b.Color, Alpha: 1})
	}
	for _, b := range w.RemoteBullets {
		s.RemoteBullets = append(s.RemoteBullets, BulletView{X: b.X, Y: b.Y, Radius: b.Radius, Color: b.Color, Alpha: b.Alpha})
	}
	for _, rp := range w.RemotePlayers {
		s.RemotePlayers = append(s.RemotePlayers, rp.PlayerState)
	}
	sort.Slice(s.RemotePlayers, func(i, j int) bool {
		return s.RemotePlayers[i].Username < s.RemotePlayers[j].Username
	})
	for _, pk := range w.Pickups {
		s.Pickups = append(s.Pickups, PickupView{X: pk.X, Y: pk.Y, Radius: pk.Radius, Amount: pk.Amount, TTL: pk.TTL})
	}
	for _, pt := range w.Particles {
		s.Particles = append(s.Particles, ParticleView{X: pt.X, Y: pt.Y, Color: pt.Color, Life: pt.Life})
	}
	return s
}

// SnapshotBuffer hands the latest complete snapshot from the session loop
// to any number of readers. Published snapshots are never mutated again.
type SnapshotBuffer struct {
	latest   atomic.Pointer[SessionSnapshot]
	sequence atomic.Uint64
}

// Publish stamps and stores snap as the latest snapshot.
func (b *SnapshotBuffer) Publish(snap *SessionSnapshot) {
	snap.Sequence = b.sequence.Add(1)
	snap.Timestamp = time.Now()
	b.latest.Store(snap)
}

// Latest returns the most recent snapshot, or nil before the first frame.
func (b *SnapshotBuffer) Latest() *SessionSnapshot {
	return b.latest.Load()
}
