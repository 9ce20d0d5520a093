package game

import (
	"math"
	"strconv"

	"arena-shooter/internal/protocol"
)

// fireEpsilon absorbs float drift in accumulated SimTime so a shot exactly
// one interval later is never rejected.
const fireEpsilon = 1e-9

// meleeCone is the half-angle of the melee hit cone.
const meleeCone = 0.5

func (w *World) updateMovement(dt float64) {
	p := w.Player
	mx, my := w.input.MoveX, w.input.MoveY
	l := math.Hypot(mx, my)
	if l == 0 {
		return
	}
	step := p.Speed * w.Overrides.SpeedMultiplier * dt
	p.X, p.Y = w.Arena.Confine(p.X+mx/l*step, p.Y+my/l*step)
}

func (w *World) updateAim() {
	p := w.Player
	if w.input.AimAngle != nil {
		if a := *w.input.AimAngle; !math.IsNaN(a) && !math.IsInf(a, 0) {
			p.Aim = a
		}
		return
	}
	dx, dy := w.input.AimX-p.X, w.input.AimY-p.Y
	if dx != 0 || dy != 0 {
		p.Aim = math.Atan2(dy, dx)
	}
}

// selectWeapon switches by catalog index. Unknown or locked weapons are ignored.
func (w *World) selectWeapon(i int) bool {
	cfg, ok := WeaponByIndex(i)
	if !ok || cfg.UnlockScore > w.Player.Score {
		return false
	}
	p := w.Player
	if cfg.Kind == p.Weapon {
		return true
	}
	p.stashAmmo()
	p.Weapon = cfg.Kind
	p.loadAmmo()
	p.ReloadUntil = 0
	return true
}

func (w *World) startReload() {
	p := w.Player
	cfg := Weapons[p.Weapon]
	if cfg.Class != ClassRanged || p.ReloadUntil > 0 || p.Ammo >= cfg.Ammo {
		return
	}
	p.ReloadUntil = w.Clock.SimTime + ReloadTime
}

func (w *World) updateReload() {
	p := w.Player
	if p.ReloadUntil == 0 || w.Clock.SimTime < p.ReloadUntil {
		return
	}
	cfg := Weapons[p.Weapon]
	p.Ammo = min(max(p.Ammo, cfg.Ammo), p.MaxAmmo)
	p.ReloadUntil = 0
}

func (w *World) updateFiring() {
	if !w.input.Fire {
		return
	}
	cfg := Weapons[w.Player.Weapon]
	switch cfg.Class {
	case ClassMelee:
		w.fireMelee(cfg)
	case ClassRanged:
		w.fireRanged(cfg)
	}
}

// canFire reports whether an action last taken at last may repeat now.
func canFire(now, last, rate float64) bool {
	return now-last >= rate-fireEpsilon
}

func (w *World) fireRanged(cfg WeaponConfig) {
	p := w.Player
	o := w.Overrides
	now := w.Clock.SimTime

	if p.ReloadUntil > 0 {
		return
	}
	if !canFire(now, p.LastShotTime, o.effectiveFireRate(cfg)) {
		return
	}
	// A full bullet pool holds the trigger without spending a round.
	if w.limits.MaxBullets > 0 && len(w.Bullets) >= w.limits.MaxBullets {
		return
	}
	if !o.unlimitedAmmo() {
		if p.Ammo <= 0 {
			return
		}
		p.Ammo--
	}

	for i := 0; i < max(1, cfg.Pellets); i++ {
		if w.limits.MaxBullets > 0 && len(w.Bullets) >= w.limits.MaxBullets {
			break
		}
		angle := p.Aim + (w.rng.Float64()-0.5)*cfg.Spread
		b := &Bullet{
			ID:        p.Username + "-" + strconv.FormatUint(w.Clock.Frames, 36) + "-" + strconv.Itoa(i),
			X:         p.X,
			Y:         p.Y,
			VX:        math.Cos(angle) * cfg.BulletSpeed,
			VY:        math.Sin(angle) * cfg.BulletSpeed,
			Radius:    cfg.BulletRadius,
			Life:      cfg.BulletLife,
			Damage:    cfg.Damage,
			Owner:     OwnerPlayer,
			OwnerName: p.Username,
			Color:     cfg.Color,
		}
		w.Bullets = append(w.Bullets, b)
		w.out.Fired = append(w.out.Fired, b)
	}
	p.LastShotTime = now
}

func (w *World) fireMelee(cfg WeaponConfig) {
	p := w.Player
	now := w.Clock.SimTime
	if !canFire(now, p.LastMeleeTime, w.Overrides.effectiveFireRate(cfg)) {
		return
	}
	p.LastMeleeTime = now

	var hit []string
	reach := cfg.MeleeRange * cfg.MeleeRange
	for _, e := range w.Enemies {
		if w.isRemoved(e) {
			continue
		}
		dx, dy := e.X-p.X, e.Y-p.Y
		if dx*dx+dy*dy > reach {
			continue
		}
		if math.Abs(angleDiff(math.Atan2(dy, dx), p.Aim)) > meleeCone {
			continue
		}
		hit = append(hit, e.ID)
		w.damageEnemy(e, cfg.Damage, p.Username)
	}
	if len(hit) > 0 {
		w.out.Melee = append(w.out.Melee, MeleeStrike{EnemyIDs: hit, Damage: cfg.Damage, Stun: StunDuration})
	}
}

// damageEnemy applies a hit with stun and resolves death.
func (w *World) damageEnemy(e *Enemy, dmg float64, attacker string) {
	e.Stun = StunDuration
	w.spark(e.X, e.Y, "#ffffff", 3)
	if e.TakeDamage(dmg) {
		w.killEnemy(e, attacker)
	}
}

// killEnemy removes e and resolves credit. Score and kill events are only
// produced by the enemy authority; peers wait for the host's kill event.
func (w *World) killEnemy(e *Enemy, killer string) {
	w.markRemoved(e)
	w.spark(e.X, e.Y, "#ff5252", 10)

	if w.Role.Authoritative() {
		if killer == w.Player.Username {
			w.Player.Score += KillScore
		}
		w.out.Kills = append(w.out.Kills, KillRecord{EnemyID: e.ID, Killer: killer})
	}
	if killer == w.Player.Username && w.rng.Float64() < w.tuning.PickupChance {
		w.Pickups = append(w.Pickups, &Pickup{
			X: e.X, Y: e.Y, Radius: PickupRadius, Amount: PickupAmount, TTL: PickupTTL,
		})
	}
}

// updateBullets moves player bullets, expires them, then resolves hits.
// A bullet is removed in the same step it deals damage.
func (w *World) updateBullets(dt float64) {
	n := 0
	for _, b := range w.Bullets {
		b.X += b.VX * dt
		b.Y += b.VY * dt
		b.Life -= dt
		if b.Life <= 0 || !w.Arena.Contains(b.X, b.Y) {
			continue
		}
		if e := w.firstEnemyHit(b.X, b.Y, b.Radius); e != nil {
			w.damageEnemy(e, b.Damage, b.OwnerName)
			continue
		}
		w.Bullets[n] = b
		n++
	}
	clear(w.Bullets[n:])
	w.Bullets = w.Bullets[:n]
}

// firstEnemyHit returns the first live enemy overlapping the circle.
func (w *World) firstEnemyHit(x, y, r float64) *Enemy {
	for _, idx := range w.grid.QueryRadius(x, y, r+EnemyRadius) {
		e := w.Enemies[idx]
		if w.isRemoved(e) {
			continue
		}
		if circlesOverlap(x, y, r, e.X, e.Y, e.Radius) {
			return e
		}
	}
	return nil
}

// updateRemoteBullets dead-reckons other participants' bullets. Only the
// host evaluates them against enemies.
func (w *World) updateRemoteBullets(nowMs int64) {
	n := 0
	for _, b := range w.RemoteBullets {
		x, y, elapsed := b.Position(nowMs)
		if elapsed >= b.Life || !w.Arena.Contains(x, y) {
			continue
		}
		b.X, b.Y = x, y
		b.Alpha = 1 - elapsed/b.Life
		if w.Role == protocol.RoleHost && !b.hitApplied {
			if e := w.firstEnemyHit(x, y, b.Radius); e != nil {
				b.hitApplied = true
				w.damageEnemy(e, b.Damage, b.Owner)
				continue
			}
		}
		w.RemoteBullets[n] = b
		n++
	}
	clear(w.RemoteBullets[n:])
	w.RemoteBullets = w.RemoteBullets[:n]
}

// updateEnemies runs stun, chase and enemy fire. Peers never move enemies;
// their positions come from the host.
func (w *World) updateEnemies(dt float64) {
	p := w.Player
	now := w.Clock.SimTime
	moves := w.Role.Authoritative()

	for _, e := range w.Enemies {
		if e.Stun > 0 {
			e.Stun = math.Max(0, e.Stun-dt)
			continue
		}
		if moves {
			tx, ty := w.chaseTarget(e)
			dx, dy := tx-e.X, ty-e.Y
			if d := math.Hypot(dx, dy); d > 1e-6 {
				step := math.Min(d, e.Speed*dt)
				e.X += dx / d * step
				e.Y += dy / d * step
			}
		}

		if p.Dead {
			continue
		}
		dx, dy := p.X-e.X, p.Y-e.Y
		if dx*dx+dy*dy <= w.tuning.EnemyFireRange*w.tuning.EnemyFireRange &&
			canFire(now, e.LastShotTime, w.tuning.EnemyFireInterval) {
			d := math.Hypot(dx, dy)
			if d < 1e-6 {
				continue
			}
			w.EnemyBullets = append(w.EnemyBullets, &Bullet{
				X:      e.X,
				Y:      e.Y,
				VX:     dx / d * EnemyBulletSpeed,
				VY:     dy / d * EnemyBulletSpeed,
				Radius: EnemyBulletRadius,
				Life:   EnemyBulletLife,
				Damage: EnemyBulletDamage,
				Owner:  OwnerEnemy,
				Color:  "#ff1744",
			})
			e.LastShotTime = now
		}
	}
}

// chaseTarget picks the nearest live participant the host knows about.
func (w *World) chaseTarget(e *Enemy) (float64, float64) {
	p := w.Player
	tx, ty := p.X, p.Y
	best := math.Inf(1)
	if !p.Dead {
		best = (p.X-e.X)*(p.X-e.X) + (p.Y-e.Y)*(p.Y-e.Y)
	}
	for _, rp := range w.RemotePlayers {
		if rp.Dead {
			continue
		}
		if d := (rp.X-e.X)*(rp.X-e.X) + (rp.Y-e.Y)*(rp.Y-e.Y); d < best {
			best, tx, ty = d, rp.X, rp.Y
		}
	}
	return tx, ty
}

// playerVulnerable is the gate checked before every damage application.
func (w *World) playerVulnerable() bool {
	return !w.Overrides.GodMode && !w.Player.Immune(w.Clock.SimTime)
}

func (w *World) hurtPlayer(dmg float64) {
	if !w.playerVulnerable() || dmg <= 0 {
		return
	}
	before := w.Player.HP
	w.Player.TakeDamage(dmg)
	w.out.DamageTook += before - w.Player.HP
}

func (w *World) updateEnemyBullets(dt float64) {
	p := w.Player
	n := 0
	for _, b := range w.EnemyBullets {
		b.X += b.VX * dt
		b.Y += b.VY * dt
		b.Life -= dt
		if b.Life <= 0 || !w.Arena.Contains(b.X, b.Y) {
			continue
		}
		if circlesOverlap(b.X, b.Y, b.Radius, p.X, p.Y, p.Radius) {
			w.hurtPlayer(b.Damage)
			continue
		}
		w.EnemyBullets[n] = b
		n++
	}
	clear(w.EnemyBullets[n:])
	w.EnemyBullets = w.EnemyBullets[:n]
}

// updateContactDamage applies continuous overlap damage, ContactDPS per second.
func (w *World) updateContactDamage(dt float64) {
	p := w.Player
	for _, e := range w.Enemies {
		if circlesOverlap(p.X, p.Y, p.Radius, e.X, e.Y, e.Radius) {
			w.hurtPlayer(w.tuning.ContactDPS * dt)
		}
	}
}

// updatePickups consumes overlapping pickups for ranged weapons and expires
// the rest. Melee weapons leave pickups on the floor.
func (w *World) updatePickups(dt float64) {
	p := w.Player
	ranged := Weapons[p.Weapon].Class == ClassRanged
	n := 0
	for _, pk := range w.Pickups {
		pk.TTL -= dt
		if pk.TTL <= 0 {
			continue
		}
		if ranged && circlesOverlap(p.X, p.Y, p.Radius, pk.X, pk.Y, pk.Radius) {
			p.Ammo = min(p.MaxAmmo, p.Ammo+pk.Amount)
			w.out.Picked++
			continue
		}
		w.Pickups[n] = pk
		n++
	}
	clear(w.Pickups[n:])
	w.Pickups = w.Pickups[:n]
}

func (w *World) updateParticles(dt float64) {
	n := 0
	for _, pt := range w.Particles {
		pt.Life -= dt
		if pt.Life <= 0 {
			continue
		}
		pt.X += pt.VX * dt
		pt.Y += pt.VY * dt
		w.Particles[n] = pt
		n++
	}
	clear(w.Particles[n:])
	w.Particles = w.Particles[:n]
}

// spark emits count cosmetic particles, respecting the particle cap.
func (w *World) spark(x, y float64, color string, count int) {
	for i := 0; i < count; i++ {
		if w.limits.MaxParticles > 0 && len(w.Particles) >= w.limits.MaxParticles {
			return
		}
		a := w.rng.Float64() * 2 * math.Pi
		s := 2 + w.rng.Float64()*4
		w.Particles = append(w.Particles, &Particle{
			X: x, Y: y,
			VX: math.Cos(a) * s, VY: math.Sin(a) * s,
			Life: 0.3 + w.rng.Float64()*0.4, Color: color,
		})
	}
}

// angleDiff returns a-b wrapped into [-π, π].
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}
