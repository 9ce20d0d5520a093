package game

import (
	"math"
)

// Default entity dimensions in world units.
const (
	PlayerRadius      = 0.5
	PlayerSpeed       = 6.0
	PlayerMaxHP       = 100.0
	EnemyRadius       = 0.6
	EnemyBulletSpeed  = 12.0
	EnemyBulletDamage = 10.0
	EnemyBulletLife   = 2.0
	EnemyBulletRadius = 0.2
	PickupRadius      = 0.5
	PickupAmount      = 15
	PickupTTL         = 12.0
	StunDuration      = 0.6
	KillScore         = 10
	ReloadTime        = 1.5
)

// neverFired keeps the first shot of a session from being gated.
const neverFired = -1e9

// Player is the single locally controlled participant of a session.
type Player struct {
	Username string
	X, Y     float64
	Radius   float64
	Speed    float64
	Aim      float64 // radians
	HP       float64
	MaxHP    float64
	Weapon   WeaponKind
	Ammo     int
	MaxAmmo  int
	Score    int
	Dead     bool

	LastShotTime     float64
	LastMeleeTime    float64
	LastTeleportTime float64
	ImmuneUntil      float64
	ReloadUntil      float64

	stash [weaponCount]int // ammo held by weapons not in hand
}

// NewPlayer creates a player at the origin with the pistol equipped.
func NewPlayer(username string) *Player {
	p := &Player{Username: username}
	p.Reset(0, 0)
	return p
}

// Reset restores the player for a new life. Score survives.
func (p *Player) Reset(simTime, immunity float64) {
	w := Weapons[WeaponPistol]
	p.X, p.Y = 0, 0
	p.Radius = PlayerRadius
	p.Speed = PlayerSpeed
	p.Aim = 0
	p.HP = PlayerMaxHP
	p.MaxHP = PlayerMaxHP
	p.Weapon = WeaponPistol
	for i, cfg := range Weapons {
		p.stash[i] = cfg.Ammo
	}
	p.Ammo = w.Ammo
	p.MaxAmmo = w.MaxAmmo
	p.Dead = false
	p.LastShotTime = neverFired
	p.LastMeleeTime = neverFired
	p.LastTeleportTime = neverFired
	p.ReloadUntil = 0
	p.ImmuneUntil = simTime + immunity
}

func (p *Player) stashAmmo() {
	p.stash[p.Weapon] = p.Ammo
}

func (p *Player) loadAmmo() {
	cfg := Weapons[p.Weapon]
	p.Ammo = p.stash[p.Weapon]
	p.MaxAmmo = cfg.MaxAmmo
}

// Immune reports whether the spawn/revive window is still open.
func (p *Player) Immune(simTime float64) bool {
	return simTime < p.ImmuneUntil
}

// TakeDamage subtracts dmg, clamped at zero. Returns true when the hit is lethal.
func (p *Player) TakeDamage(dmg float64) bool {
	p.HP = math.Max(0, p.HP-dmg)
	return p.HP <= 0
}

// Heal restores hp up to MaxHP.
func (p *Player) Heal(amount float64) {
	if amount <= 0 {
		return
	}
	p.HP = math.Min(p.MaxHP, p.HP+amount)
}

// Enemy is owned by the authoritative participant of its session.
type Enemy struct {
	ID           string
	X, Y         float64
	Radius       float64
	Speed        float64
	HP           float64
	MaxHP        float64
	Stun         float64
	LastShotTime float64
}

// TakeDamage subtracts dmg, clamped at zero. Returns true when the hit is lethal.
func (e *Enemy) TakeDamage(dmg float64) bool {
	e.HP = math.Max(0, e.HP-dmg)
	return e.HP <= 0
}

// BulletOwner tags who fired a bullet.
type BulletOwner uint8

const (
	OwnerPlayer BulletOwner = iota
	OwnerEnemy
)

// Bullet is a live projectile in the local simulation.
type Bullet struct {
	ID        string
	X, Y      float64
	VX, VY    float64
	Radius    float64
	Life      float64
	Damage    float64
	Owner     BulletOwner
	OwnerName string
	Color     string
	SpawnedAt int64 // unix ms, set when the bullet is broadcast
}

// RemoteBullet is another participant's bullet, rendered by dead reckoning.
type RemoteBullet struct {
	ID         string
	Owner      string
	X0, Y0     float64
	VX, VY     float64
	Radius     float64
	Life       float64
	Damage     float64
	Color      string
	SpawnedAt  int64
	X, Y       float64 // extrapolated this frame
	Alpha      float64
	hitApplied bool
}

// Position extrapolates the bullet at wall-clock unix ms now.
func (b *RemoteBullet) Position(nowMs int64) (x, y, elapsed float64) {
	elapsed = float64(nowMs-b.SpawnedAt) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	return b.X0 + b.VX*elapsed, b.Y0 + b.VY*elapsed, elapsed
}

// Pickup restores ammo for ranged weapons.
type Pickup struct {
	X, Y   float64
	Radius float64
	Amount int
	TTL    float64
}

// Particle is cosmetic.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Life   float64
	Color  string
}

// circlesOverlap is the squared-distance circle test.
func circlesOverlap(x1, y1, r1, x2, y2, r2 float64) bool {
	dx, dy := x2-x1, y2-y1
	rr := r1 + r2
	return dx*dx+dy*dy <= rr*rr
}
