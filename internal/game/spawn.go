package game

import (
	"math/rand"

	"github.com/google/uuid"
)

// SpawnMargin pushes spawn points outside the visible edge.
const SpawnMargin = 1.5

// SpawnDirector schedules enemy spawns on a decaying interval.
type SpawnDirector struct {
	Interval  float64
	Decay     float64
	Floor     float64
	LastSpawn float64
	Spawned   int
}

// NewSpawnDirector creates a director; the first spawn is due once
// SimTime exceeds interval.
func NewSpawnDirector(interval, decay, floor float64) SpawnDirector {
	return SpawnDirector{Interval: interval, Decay: decay, Floor: floor}
}

// Due reports whether a spawn should happen at simTime.
func (d *SpawnDirector) Due(simTime float64) bool {
	return simTime-d.LastSpawn > d.Interval
}

// Record marks a spawn at simTime and ramps the interval toward the floor.
func (d *SpawnDirector) Record(simTime float64) {
	d.LastSpawn = simTime
	d.Spawned++
	if d.Interval > d.Floor {
		d.Interval *= d.Decay
		if d.Interval < d.Floor {
			d.Interval = d.Floor
		}
	}
}

// Arena is the square playfield [-Bound, Bound]² that grows on demand.
type Arena struct {
	Base       float64
	Multiplier float64
	Growth     float64
}

// NewArena creates an arena at multiplier 1.
func NewArena(base, growth float64) Arena {
	return Arena{Base: base, Multiplier: 1, Growth: growth}
}

// Bound is the current half-extent.
func (a *Arena) Bound() float64 {
	return a.Base * a.Multiplier
}

// Contains reports whether (x, y) lies inside the current bound.
func (a *Arena) Contains(x, y float64) bool {
	b := a.Bound()
	return x >= -b && x <= b && y >= -b && y <= b
}

// Confine grows the arena when (x, y) crosses the bound, then clamps into it.
func (a *Arena) Confine(x, y float64) (float64, float64) {
	if !a.Contains(x, y) {
		a.Multiplier += a.Growth
	}
	b := a.Bound()
	return clamp(x, -b, b), clamp(y, -b, b)
}

// EdgePoint picks a random point along one of the four edges, pushed
// outward by SpawnMargin.
func (a *Arena) EdgePoint(rng *rand.Rand) (float64, float64) {
	b := a.Bound()
	along := (rng.Float64()*2 - 1) * b
	out := b + SpawnMargin
	switch rng.Intn(4) {
	case 0:
		return along, -out
	case 1:
		return out, along
	case 2:
		return along, out
	default:
		return -out, along
	}
}

// spawnEnemy places a new enemy on an arena edge. Ids come from UUIDs and
// are never reused.
func (w *World) spawnEnemy() *Enemy {
	x, y := w.Arena.EdgePoint(w.rng)
	hp := 60 + float64(w.rng.Intn(5))*10
	e := &Enemy{
		ID:           uuid.NewString(),
		X:            x,
		Y:            y,
		Radius:       EnemyRadius,
		Speed:        1.5 + w.rng.Float64()*1.5,
		HP:           hp,
		MaxHP:        hp,
		LastShotTime: w.Clock.SimTime,
	}
	w.Enemies = append(w.Enemies, e)
	w.out.Spawned = append(w.out.Spawned, e.ID)
	return e
}

// updateSpawns runs the director. Only the authoritative participant spawns.
func (w *World) updateSpawns() {
	if !w.Role.Authoritative() {
		return
	}
	if w.limits.MaxEnemies > 0 && len(w.Enemies) >= w.limits.MaxEnemies {
		return
	}
	if w.Director.Due(w.Clock.SimTime) {
		w.spawnEnemy()
		w.Director.Record(w.Clock.SimTime)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
