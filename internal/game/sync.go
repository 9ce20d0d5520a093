package game

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/config"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

// maxNetDrain bounds how many inbound messages one frame applies.
const maxNetDrain = 512

// ReconcileStats summarizes one enemy-batch diff.
type ReconcileStats struct {
	Created    int
	Updated    int
	Deleted    int
	Duplicates int
}

// ReconcileEnemies converges the local enemy set to a host broadcast. After
// it returns the local id set equals the batch id set, in broadcast order.
// Duplicate ids inside one batch resolve last-writer-wins.
func (w *World) ReconcileEnemies(batch []protocol.EnemyState) ReconcileStats {
	var st ReconcileStats

	local := make(map[string]*Enemy, len(w.Enemies))
	for _, e := range w.Enemies {
		local[e.ID] = e
	}

	pos := make(map[string]int, len(batch))
	next := make([]*Enemy, 0, len(batch))
	for _, s := range batch {
		if i, dup := pos[s.ID]; dup {
			applyEnemyState(next[i], s)
			st.Duplicates++
			continue
		}
		e, ok := local[s.ID]
		if ok {
			st.Updated++
			delete(local, s.ID)
		} else {
			e = &Enemy{ID: s.ID, Radius: EnemyRadius, LastShotTime: w.Clock.SimTime}
			st.Created++
		}
		applyEnemyState(e, s)
		pos[s.ID] = len(next)
		next = append(next, e)
	}
	st.Deleted = len(local)

	w.Enemies = next
	clear(w.removed)
	return st
}

func applyEnemyState(e *Enemy, s protocol.EnemyState) {
	e.X, e.Y = s.X, s.Y
	e.HP = max(0, s.HP)
	if s.MaxHP > 0 {
		e.MaxHP = s.MaxHP
	}
	if s.Speed > 0 {
		e.Speed = s.Speed
	}
}

// EnemyStates exports the enemy set for a batch broadcast.
func (w *World) EnemyStates() []protocol.EnemyState {
	out := make([]protocol.EnemyState, 0, len(w.Enemies))
	for _, e := range w.Enemies {
		out = append(out, protocol.EnemyState{
			ID: e.ID, X: e.X, Y: e.Y, HP: e.HP, MaxHP: e.MaxHP, Speed: e.Speed,
		})
	}
	return out
}

// ApplyKill handles a kill event from the authority. The named enemy is
// dropped at once; a kill credited to the local player scores KillScore.
func (w *World) ApplyKill(k protocol.Kill) {
	if e := w.enemyByID(k.EnemyID); e != nil {
		w.markRemoved(e)
		w.compactEnemies()
	}
	if k.Killer == w.Player.Username {
		w.Player.Score += KillScore
	}
}

// maxWireDamage is the largest per-hit damage any weapon deals.
var maxWireDamage = func() float64 {
	top := 0.0
	for _, cfg := range Weapons {
		top = max(top, cfg.Damage)
	}
	return top
}()

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validDamage(d float64) bool {
	return finite(d) && d > 0 && d <= maxWireDamage
}

// ApplyMeleeHit lets the host resolve a peer's melee swing. Hits with a
// damage no weapon deals, or a bad stun, are ignored and report false.
func (w *World) ApplyMeleeHit(m protocol.MeleeHit) bool {
	if !validDamage(m.Damage) || !finite(m.Stun) || m.Stun < 0 {
		return false
	}
	for _, id := range m.EnemyIDs {
		if e := w.enemyByID(id); e != nil && !w.isRemoved(e) {
			w.damageEnemy(e, m.Damage, m.Attacker)
		}
	}
	w.compactEnemies()
	return true
}

// AddRemoteBullet queues another participant's bullet for dead reckoning.
// Spent or malformed bullets are ignored and report false.
func (w *World) AddRemoteBullet(b protocol.BulletSpawn) bool {
	if !finite(b.X, b.Y, b.VX, b.VY, b.Radius, b.Life) || !validDamage(b.Damage) {
		return false
	}
	if b.Life <= 0 || b.Radius < 0 {
		return false
	}
	w.RemoteBullets = append(w.RemoteBullets, &RemoteBullet{
		ID: b.ID, Owner: b.Owner,
		X0: b.X, Y0: b.Y, X: b.X, Y: b.Y,
		VX: b.VX, VY: b.VY,
		Radius: b.Radius, Life: b.Life, Damage: b.Damage,
		Color: b.Color, SpawnedAt: b.SpawnedAt, Alpha: 1,
	})
	return true
}

// SyncStats counts synchronizer traffic. Safe for concurrent reads.
type SyncStats struct {
	Received   atomic.Uint64
	Published  atomic.Uint64
	Dropped    atomic.Uint64 // malformed, foreign room, stale, not from host or failed publish
	Reconciled atomic.Uint64
	Duplicates atomic.Uint64
}

// Synchronizer bridges a World and its room transport. It runs inside the
// session loop, so it never touches the World concurrently.
type Synchronizer struct {
	role      protocol.Role
	room      string
	username  string
	transport protocol.Transport
	net       config.NetConfig
	log       *logrus.Entry

	lastPlayerPub time.Time
	lastEnemyPub  time.Time
	seq           uint64
	host          string // sender of the enemy batches being followed
	lastSeq       uint64 // newest batch seq from host

	Stats SyncStats
}

// NewSynchronizer binds a transport to a room for one participant.
func NewSynchronizer(role protocol.Role, room, username string, t protocol.Transport, net config.NetConfig) *Synchronizer {
	return &Synchronizer{
		role:      role,
		room:      room,
		username:  username,
		transport: t,
		net:       net,
		log: logger.Log.WithFields(logrus.Fields{
			"component": "sync",
			"room":      room,
			"user":      username,
			"role":      role.String(),
		}),
	}
}

// Connected reports the transport link state.
func (s *Synchronizer) Connected() bool {
	return s.transport.Connected()
}

// Drain applies every queued inbound message without blocking.
func (s *Synchronizer) Drain(w *World, now time.Time) int {
	in := s.transport.Inbound()
	n := 0
	for n < maxNetDrain {
		select {
		case env, ok := <-in:
			if !ok {
				return n
			}
			s.handle(w, env, now)
			n++
		default:
			return n
		}
	}
	return n
}

func (s *Synchronizer) handle(w *World, env protocol.Envelope, now time.Time) {
	s.Stats.Received.Add(1)
	if env.Room != s.room {
		s.drop("foreign room", env)
		return
	}
	if env.From == s.username {
		return
	}
	// Senders are named by the transport; payload names are not trusted.
	if env.From == "" {
		s.drop("anonymous sender", env)
		return
	}

	switch env.T {
	case protocol.MsgPlayerState:
		ps, err := protocol.DecodePayload[protocol.PlayerState](env)
		if err != nil {
			s.drop("malformed player_state", env)
			return
		}
		ps.Username = env.From
		w.RemotePlayers[ps.Username] = &RemotePlayer{PlayerState: ps, LastSeen: now}

	case protocol.MsgBulletSpawn:
		b, err := protocol.DecodePayload[protocol.BulletSpawn](env)
		b.Owner = env.From
		if err != nil || !w.AddRemoteBullet(b) {
			s.drop("malformed bullet_spawn", env)
		}

	case protocol.MsgMeleeHit:
		if s.role != protocol.RoleHost {
			return
		}
		m, err := protocol.DecodePayload[protocol.MeleeHit](env)
		m.Attacker = env.From
		if err != nil || !w.ApplyMeleeHit(m) {
			s.drop("malformed melee_hit", env)
		}

	case protocol.MsgEnemyBatch:
		if s.role != protocol.RolePeer {
			return
		}
		batch, err := protocol.DecodePayload[protocol.EnemyBatch](env)
		if err != nil {
			s.drop("malformed enemy_batch", env)
			return
		}
		if batch.Host != "" && batch.Host != env.From {
			s.drop("malformed enemy_batch", env)
			return
		}
		if env.From == s.host && batch.Seq <= s.lastSeq {
			s.drop("stale enemy_batch", env)
			return
		}
		if env.From != s.host {
			// A new host restarts its sequence.
			if s.host != "" {
				s.log.WithFields(logrus.Fields{"old": s.host, "new": env.From}).Info("👑 Room host changed")
			}
			s.host = env.From
		}
		s.lastSeq = batch.Seq
		st := w.ReconcileEnemies(batch.Enemies)
		s.Stats.Reconciled.Add(1)
		if st.Duplicates > 0 {
			s.Stats.Duplicates.Add(uint64(st.Duplicates))
			s.log.WithField("duplicates", st.Duplicates).Warn("⚠️ Duplicate enemy ids in batch")
		}

	case protocol.MsgKill:
		if s.role != protocol.RolePeer {
			return
		}
		k, err := protocol.DecodePayload[protocol.Kill](env)
		if err != nil || k.EnemyID == "" {
			s.drop("malformed kill", env)
			return
		}
		if s.host != "" && env.From != s.host {
			s.drop("kill not from host", env)
			return
		}
		w.ApplyKill(k)

	default:
		s.drop("unknown type", env)
	}
}

func (s *Synchronizer) drop(reason string, env protocol.Envelope) {
	s.Stats.Dropped.Add(1)
	s.log.WithFields(logrus.Fields{"reason": reason, "type": env.T, "from": env.From}).Debug("Dropped message")
}

func (s *Synchronizer) publish(t string, payload any) {
	env, err := protocol.New(t, s.room, s.username, payload)
	if err == nil {
		err = s.transport.Publish(env)
	}
	if err != nil {
		s.Stats.Dropped.Add(1)
		s.log.WithError(err).WithField("type", t).Debug("Publish failed")
		return
	}
	s.Stats.Published.Add(1)
}

// Publish broadcasts this frame's state. Player state and enemy batches are
// throttled to their cadences; bullets, melee hits and kills go out at once.
func (s *Synchronizer) Publish(w *World, now time.Time) {
	out := w.Output()
	nowMs := now.UnixMilli()

	if now.Sub(s.lastPlayerPub) >= s.net.PlayerPublishInterval || out.Died {
		s.lastPlayerPub = now
		p := w.Player
		s.publish(protocol.MsgPlayerState, protocol.PlayerState{
			Username: p.Username, X: p.X, Y: p.Y, HP: p.HP, MaxHP: p.MaxHP,
			Weapon: p.Weapon.String(), Aim: p.Aim, Dead: p.Dead,
		})
	}

	for _, b := range out.Fired {
		b.SpawnedAt = nowMs
		s.publish(protocol.MsgBulletSpawn, protocol.BulletSpawn{
			ID: b.ID, Owner: b.OwnerName,
			X: b.X, Y: b.Y, VX: b.VX, VY: b.VY,
			Radius: b.Radius, Life: b.Life, Damage: b.Damage,
			Color: b.Color, SpawnedAt: nowMs,
		})
	}

	if s.role == protocol.RolePeer {
		for _, m := range out.Melee {
			s.publish(protocol.MsgMeleeHit, protocol.MeleeHit{
				Attacker: s.username, EnemyIDs: m.EnemyIDs, Damage: m.Damage, Stun: m.Stun,
			})
		}
		return
	}

	for _, k := range out.Kills {
		s.publish(protocol.MsgKill, protocol.Kill{EnemyID: k.EnemyID, Killer: k.Killer})
	}

	if now.Sub(s.lastEnemyPub) >= s.net.EnemyPublishInterval {
		s.lastEnemyPub = now
		s.seq++
		s.publish(protocol.MsgEnemyBatch, protocol.EnemyBatch{
			Seq: s.seq, Host: s.username, Enemies: w.EnemyStates(),
		})
	}
}

// Prune forgets remote players that have gone quiet.
func (s *Synchronizer) Prune(w *World, now time.Time) {
	for name, rp := range w.RemotePlayers {
		if now.Sub(rp.LastSeen) > s.net.RemotePlayerTimeout {
			delete(w.RemotePlayers, name)
		}
	}
}

// Close releases the transport. In-flight broadcasts are dropped.
func (s *Synchronizer) Close() error {
	return s.transport.Close()
}
