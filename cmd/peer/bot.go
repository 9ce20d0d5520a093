package main

import (
	"math"

	"arena-shooter/internal/game"
)

// bot turns snapshots into input: it circles the arena center and shoots
// the nearest live enemy, reloading when the magazine is empty.
type bot struct {
	phase float64
}

func newBot() *bot {
	return &bot{}
}

func (b *bot) next(snap *game.SessionSnapshot) game.Input {
	b.phase += 0.05
	p := snap.Player

	in := game.Input{
		MoveX: math.Cos(b.phase),
		MoveY: math.Sin(b.phase),
		AimX:  p.X + math.Cos(p.Aim),
		AimY:  p.Y + math.Sin(p.Aim),
	}

	if target, ok := nearestEnemy(snap); ok {
		in.AimX, in.AimY = target.X, target.Y
		in.Fire = true
	}
	if p.MaxAmmo > 0 && p.Ammo == 0 && !p.Reloading {
		in.Reload = true
	}
	return in
}

func nearestEnemy(snap *game.SessionSnapshot) (game.EnemyView, bool) {
	var best game.EnemyView
	bestD := math.Inf(1)
	for _, e := range snap.Enemies {
		if e.HP <= 0 {
			continue
		}
		if d := math.Hypot(e.X-snap.Player.X, e.Y-snap.Player.Y); d < bestD {
			best, bestD = e, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}
