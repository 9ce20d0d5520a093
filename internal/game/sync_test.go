package game

import (
	"math"
	"reflect"
	"testing"
	"time"

	"arena-shooter/internal/config"
	"arena-shooter/internal/protocol"
)

const testRoom = "ROOM42"

func newTestSync(role protocol.Role) (*Synchronizer, *fakeTransport) {
	ft := newFakeTransport()
	return NewSynchronizer(role, testRoom, "alice", ft, config.DefaultNet()), ft
}

func TestReconcileEnemies(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	e1 := addEnemy(w, "e1", 0, 0, 60)
	addEnemy(w, "e3", 0, 0, 10)

	st := w.ReconcileEnemies([]protocol.EnemyState{
		{ID: "e1", X: 1, Y: 2, HP: 40, MaxHP: 60, Speed: 2},
		{ID: "e2", X: 3, Y: 4, HP: 60, MaxHP: 60, Speed: 2.5},
	})

	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"e1", "e2"}) {
		t.Fatalf("Expected [e1 e2], got %v", got)
	}
	if w.Enemies[0] != e1 {
		t.Error("Existing enemy should be updated in place")
	}
	if e1.HP != 40 || e1.X != 1 || e1.Y != 2 {
		t.Errorf("e1 not updated: %+v", e1)
	}
	if w.Enemies[1].HP != 60 || w.Enemies[1].Radius != EnemyRadius {
		t.Errorf("e2 not created correctly: %+v", w.Enemies[1])
	}
	want := ReconcileStats{Created: 1, Updated: 1, Deleted: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	batch := []protocol.EnemyState{
		{ID: "b", X: 1, HP: 10},
		{ID: "a", X: 2, HP: 20},
	}
	w.ReconcileEnemies(batch)
	st := w.ReconcileEnemies(batch)
	if st.Created != 0 || st.Deleted != 0 || st.Updated != 2 {
		t.Errorf("Second identical batch should only update, got %+v", st)
	}
	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Expected broadcast order [b a], got %v", got)
	}
}

func TestReconcileDuplicatesLastWriterWins(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	st := w.ReconcileEnemies([]protocol.EnemyState{
		{ID: "a", X: 1, HP: 10},
		{ID: "b", X: 5, HP: 50},
		{ID: "a", X: 9, HP: 20},
	})
	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Expected [a b], got %v", got)
	}
	if w.Enemies[0].HP != 20 || w.Enemies[0].X != 9 {
		t.Errorf("Duplicate id should keep the last entry, got %+v", w.Enemies[0])
	}
	if st.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", st.Duplicates)
	}
}

func TestReconcileEmptyBatchClears(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	addEnemy(w, "a", 0, 0, 10)
	w.ReconcileEnemies(nil)
	if len(w.Enemies) != 0 {
		t.Errorf("Expected empty set, got %v", enemyIDs(w))
	}
}

func TestSyncDropsStaleBatches(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)

	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 2, Host: "bob", Enemies: []protocol.EnemyState{{ID: "new", HP: 10}},
	})
	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 1, Host: "bob", Enemies: []protocol.EnemyState{{ID: "old", HP: 10}},
	})
	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 2, Host: "bob", Enemies: nil,
	})

	if n := s.Drain(w, epoch); n != 3 {
		t.Fatalf("Expected 3 drained, got %d", n)
	}
	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"new"}) {
		t.Errorf("Stale batches must be ignored, got %v", got)
	}
	if s.Stats.Dropped.Load() != 2 || s.Stats.Reconciled.Load() != 1 {
		t.Errorf("Expected 2 dropped and 1 reconciled, got %d/%d",
			s.Stats.Dropped.Load(), s.Stats.Reconciled.Load())
	}
}

func TestSyncFollowsNewHost(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)

	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "oldhost", protocol.EnemyBatch{
		Seq: 50, Host: "oldhost", Enemies: []protocol.EnemyState{{ID: "a", HP: 10}},
	})
	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "newhost", protocol.EnemyBatch{
		Seq: 1, Host: "newhost", Enemies: []protocol.EnemyState{{ID: "b", HP: 10}},
	})
	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "newhost", protocol.EnemyBatch{
		Seq: 2, Host: "newhost", Enemies: []protocol.EnemyState{{ID: "b", HP: 10}, {ID: "c", HP: 10}},
	})
	s.Drain(w, epoch)

	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("A new host's sequence must restart, got %v", got)
	}
	if s.Stats.Reconciled.Load() != 3 || s.Stats.Dropped.Load() != 0 {
		t.Errorf("Expected 3 reconciled and none dropped, got %d/%d",
			s.Stats.Reconciled.Load(), s.Stats.Dropped.Load())
	}
}

func TestSyncRejectsMismatchedBatchHost(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)
	addEnemy(w, "keep", 0, 0, 10)

	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 1, Host: "carol", Enemies: nil,
	})
	s.Drain(w, epoch)
	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"keep"}) {
		t.Errorf("Batch naming another host must be ignored, got %v", got)
	}
}

func TestSyncKillOnlyFromHost(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)

	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 1, Host: "bob", Enemies: []protocol.EnemyState{{ID: "e", HP: 10}},
	})
	ft.in <- mustEnvelope(protocol.MsgKill, testRoom, "mallory", protocol.Kill{EnemyID: "e", Killer: "alice"})
	s.Drain(w, epoch)

	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"e"}) || w.Player.Score != 0 {
		t.Fatalf("Kill from a non-host must be ignored, enemies=%v score=%d", enemyIDs(w), w.Player.Score)
	}

	ft.in <- mustEnvelope(protocol.MsgKill, testRoom, "bob", protocol.Kill{EnemyID: "e", Killer: "alice"})
	s.Drain(w, epoch)
	if len(w.Enemies) != 0 || w.Player.Score != KillScore {
		t.Errorf("Host kill should apply, enemies=%v score=%d", enemyIDs(w), w.Player.Score)
	}
}

func TestSyncNamesSenderFromTransport(t *testing.T) {
	s, ft := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	addEnemy(w, "e", 8, 8, 50)

	ft.in <- mustEnvelope(protocol.MsgMeleeHit, testRoom, "mallory", protocol.MeleeHit{
		Attacker: "carol", EnemyIDs: []string{"e"}, Damage: 55, Stun: StunDuration,
	})
	shot := remoteShot("carol", 1.2)
	ft.in <- mustEnvelope(protocol.MsgBulletSpawn, testRoom, "mallory", shot)
	ft.in <- mustEnvelope(protocol.MsgPlayerState, testRoom, "mallory", protocol.PlayerState{Username: "carol"})
	ft.in <- mustEnvelope(protocol.MsgPlayerState, testRoom, "", protocol.PlayerState{Username: "carol"})
	w.BeginFrame()
	s.Drain(w, epoch)

	if kills := w.Output().Kills; len(kills) != 1 || kills[0].Killer != "mallory" {
		t.Errorf("Melee kill must be credited to the sender, got %+v", kills)
	}
	if len(w.RemoteBullets) != 1 || w.RemoteBullets[0].Owner != "mallory" {
		t.Errorf("Remote bullet must be owned by the sender, got %+v", w.RemoteBullets)
	}
	if _, ok := w.RemotePlayers["carol"]; ok || w.RemotePlayers["mallory"] == nil {
		t.Errorf("Player state must be keyed by the sender, got %v", w.RemotePlayers)
	}
	if s.Stats.Dropped.Load() != 1 {
		t.Errorf("Expected the anonymous message dropped, got %d", s.Stats.Dropped.Load())
	}
}

func TestSyncDropsMalformedCombat(t *testing.T) {
	bad := func(mut func(*protocol.BulletSpawn)) protocol.BulletSpawn {
		b := remoteShot("bob", 1.2)
		mut(&b)
		return b
	}
	tests := []struct {
		name    string
		payload any
		typ     string
	}{
		{"negative melee", protocol.MeleeHit{EnemyIDs: []string{"e"}, Damage: -1000}, protocol.MsgMeleeHit},
		{"zero melee", protocol.MeleeHit{EnemyIDs: []string{"e"}, Damage: 0}, protocol.MsgMeleeHit},
		{"oversized melee", protocol.MeleeHit{EnemyIDs: []string{"e"}, Damage: 1e6}, protocol.MsgMeleeHit},
		{"negative stun", protocol.MeleeHit{EnemyIDs: []string{"e"}, Damage: 10, Stun: -1}, protocol.MsgMeleeHit},
		{"negative bullet", bad(func(b *protocol.BulletSpawn) { b.Damage = -40 }), protocol.MsgBulletSpawn},
		{"huge bullet", bad(func(b *protocol.BulletSpawn) { b.Damage = 1e9 }), protocol.MsgBulletSpawn},
		{"negative radius", bad(func(b *protocol.BulletSpawn) { b.Radius = -1 }), protocol.MsgBulletSpawn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ft := newTestSync(protocol.RoleHost)
			w := newTestWorld(protocol.RoleHost)
			e := addEnemy(w, "e", 3, 0, 60)

			ft.in <- mustEnvelope(tt.typ, testRoom, "bob", tt.payload)
			s.Drain(w, epoch)
			w.Advance(0.01, epoch.Add(90*time.Millisecond))

			if e.HP != 60 {
				t.Errorf("Expected enemy hp 60, got %v", e.HP)
			}
			if len(w.RemoteBullets) != 0 || s.Stats.Dropped.Load() != 1 {
				t.Errorf("Expected message dropped, bullets=%d dropped=%d",
					len(w.RemoteBullets), s.Stats.Dropped.Load())
			}
		})
	}
}

func TestRemoteCombatRejectsNonFinite(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	w := newTestWorld(protocol.RoleHost)
	e := addEnemy(w, "e", 3, 0, 60)

	if w.ApplyMeleeHit(protocol.MeleeHit{Attacker: "bob", EnemyIDs: []string{"e"}, Damage: nan}) {
		t.Error("NaN melee damage must be rejected")
	}
	if w.ApplyMeleeHit(protocol.MeleeHit{Attacker: "bob", EnemyIDs: []string{"e"}, Damage: 10, Stun: inf}) {
		t.Error("Infinite stun must be rejected")
	}
	for _, mut := range []func(*protocol.BulletSpawn){
		func(b *protocol.BulletSpawn) { b.Damage = nan },
		func(b *protocol.BulletSpawn) { b.Damage = inf },
		func(b *protocol.BulletSpawn) { b.Radius = inf },
		func(b *protocol.BulletSpawn) { b.Life = nan },
		func(b *protocol.BulletSpawn) { b.VX = inf },
	} {
		b := remoteShot("bob", 1.2)
		mut(&b)
		if w.AddRemoteBullet(b) {
			t.Errorf("Non-finite bullet accepted: %+v", b)
		}
	}
	if e.HP != 60 || len(w.RemoteBullets) != 0 {
		t.Errorf("Rejected messages must not touch the world, hp=%v bullets=%d", e.HP, len(w.RemoteBullets))
	}
}

func TestSyncCountsDuplicates(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)
	ft.in <- mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 1, Enemies: []protocol.EnemyState{{ID: "a"}, {ID: "a"}, {ID: "a"}},
	})
	s.Drain(w, epoch)
	if s.Stats.Duplicates.Load() != 2 {
		t.Errorf("Expected 2 duplicates, got %d", s.Stats.Duplicates.Load())
	}
}

func TestSyncFiltersRoomAndSelf(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)

	ft.in <- mustEnvelope(protocol.MsgPlayerState, "OTHER", "bob", protocol.PlayerState{Username: "bob"})
	ft.in <- mustEnvelope(protocol.MsgPlayerState, testRoom, "alice", protocol.PlayerState{Username: "alice"})
	ft.in <- mustEnvelope(protocol.MsgPlayerState, testRoom, "carol", protocol.PlayerState{Username: "carol", X: 3})
	s.Drain(w, epoch)

	if len(w.RemotePlayers) != 1 || w.RemotePlayers["carol"] == nil {
		t.Fatalf("Expected only carol tracked, got %v", w.RemotePlayers)
	}
	if w.RemotePlayers["carol"].X != 3 {
		t.Errorf("Remote player position not applied")
	}
	if s.Stats.Dropped.Load() != 1 {
		t.Errorf("Expected the foreign room message dropped, got %d", s.Stats.Dropped.Load())
	}
}

func TestSyncRoleGates(t *testing.T) {
	batch := mustEnvelope(protocol.MsgEnemyBatch, testRoom, "bob", protocol.EnemyBatch{
		Seq: 1, Enemies: []protocol.EnemyState{{ID: "x", HP: 10}},
	})
	kill := mustEnvelope(protocol.MsgKill, testRoom, "bob", protocol.Kill{EnemyID: "mine", Killer: "alice"})

	s, ft := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	addEnemy(w, "mine", 5, 5, 60)
	ft.in <- batch
	ft.in <- kill
	s.Drain(w, epoch)

	if got := enemyIDs(w); !reflect.DeepEqual(got, []string{"mine"}) {
		t.Errorf("Host must ignore batches and kills, got %v", got)
	}
	if w.Player.Score != 0 {
		t.Errorf("Host must not take credit from foreign kill events, score=%d", w.Player.Score)
	}
}

func TestPublishCadence(t *testing.T) {
	s, ft := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	addEnemy(w, "a", 5, 5, 60)

	for ms := 0; ms <= 200; ms += 10 {
		w.BeginFrame()
		s.Publish(w, epoch.Add(time.Duration(ms)*time.Millisecond))
	}

	players := ft.sentOfType(protocol.MsgPlayerState)
	if len(players) != 5 {
		t.Errorf("Expected player state every 50ms (5 in 200ms), got %d", len(players))
	}
	batches := ft.sentOfType(protocol.MsgEnemyBatch)
	if len(batches) != 3 {
		t.Fatalf("Expected enemy batch every 100ms (3 in 200ms), got %d", len(batches))
	}
	for i, env := range batches {
		b, err := protocol.DecodePayload[protocol.EnemyBatch](env)
		if err != nil {
			t.Fatal(err)
		}
		if b.Seq != uint64(i+1) {
			t.Errorf("Batch %d has seq %d", i, b.Seq)
		}
		if len(b.Enemies) != 1 || b.Enemies[0].ID != "a" {
			t.Errorf("Batch %d has wrong enemies %+v", i, b.Enemies)
		}
	}
}

func TestPublishDeathImmediately(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)

	w.BeginFrame()
	s.Publish(w, epoch)
	w.out.Died = true
	w.Player.Dead = true
	s.Publish(w, epoch.Add(10*time.Millisecond))

	players := ft.sentOfType(protocol.MsgPlayerState)
	if len(players) != 2 {
		t.Fatalf("Expected death published immediately, got %d player states", len(players))
	}
	ps, _ := protocol.DecodePayload[protocol.PlayerState](players[1])
	if !ps.Dead {
		t.Error("Expected dead flag in published state")
	}
}

func TestPeerPublishesNoAuthorityMessages(t *testing.T) {
	s, ft := newTestSync(protocol.RolePeer)
	w := newTestWorld(protocol.RolePeer)
	addEnemy(w, "a", 1.5, 0, 200)

	knife := int(WeaponKnife)
	w.SetInput(Input{AimX: 5, Fire: true, Select: &knife})
	w.Advance(0.01, epoch)
	s.Publish(w, epoch)

	if n := len(ft.sentOfType(protocol.MsgEnemyBatch)); n != 0 {
		t.Errorf("Peer published %d enemy batches", n)
	}
	if n := len(ft.sentOfType(protocol.MsgKill)); n != 0 {
		t.Errorf("Peer published %d kills", n)
	}
	hits := ft.sentOfType(protocol.MsgMeleeHit)
	if len(hits) != 1 {
		t.Fatalf("Expected 1 melee_hit, got %d", len(hits))
	}
	m, _ := protocol.DecodePayload[protocol.MeleeHit](hits[0])
	if m.Attacker != "alice" || len(m.EnemyIDs) != 1 || m.EnemyIDs[0] != "a" {
		t.Errorf("Unexpected melee_hit payload %+v", m)
	}
}

func TestBulletSpawnStamped(t *testing.T) {
	s, ft := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	w.SetInput(Input{AimX: 1, Fire: true})
	w.Advance(0.01, epoch)
	s.Publish(w, epoch)

	bullets := ft.sentOfType(protocol.MsgBulletSpawn)
	if len(bullets) != 1 {
		t.Fatalf("Expected 1 bullet_spawn, got %d", len(bullets))
	}
	b, _ := protocol.DecodePayload[protocol.BulletSpawn](bullets[0])
	if b.SpawnedAt != epoch.UnixMilli() || b.Owner != "alice" || b.Damage != 40 {
		t.Errorf("Unexpected bullet payload %+v", b)
	}
	if w.Bullets[0].SpawnedAt != epoch.UnixMilli() {
		t.Error("Local bullet should carry its broadcast time")
	}
}

func remoteShot(owner string, life float64) protocol.BulletSpawn {
	return protocol.BulletSpawn{
		ID: owner + "-1", Owner: owner, X: 0, Y: 0, VX: 30, VY: 0,
		Radius: 0.15, Life: life, Damage: 40, SpawnedAt: epoch.UnixMilli(),
	}
}

func TestRemoteBulletsDamageOnlyOnHost(t *testing.T) {
	tests := []struct {
		role        protocol.Role
		wantHP      float64
		wantBullets int
	}{
		{protocol.RoleHost, 20, 0},
		{protocol.RolePeer, 60, 1},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			w := newTestWorld(tt.role)
			e := addEnemy(w, "e", 3, 0, 60)
			w.AddRemoteBullet(remoteShot("bob", 1.2))

			w.Advance(0.01, epoch.Add(90*time.Millisecond))
			if e.HP != tt.wantHP {
				t.Errorf("Expected enemy hp %v, got %v", tt.wantHP, e.HP)
			}
			if len(w.RemoteBullets) != tt.wantBullets {
				t.Errorf("Expected %d remote bullets, got %d", tt.wantBullets, len(w.RemoteBullets))
			}
		})
	}
}

func TestHostCreditsRemoteKiller(t *testing.T) {
	w := newTestWorld(protocol.RoleHost)
	addEnemy(w, "e", 3, 0, 30)
	w.AddRemoteBullet(remoteShot("bob", 1.2))

	w.Advance(0.01, epoch.Add(90*time.Millisecond))
	kills := w.Output().Kills
	if len(kills) != 1 || kills[0].Killer != "bob" || kills[0].EnemyID != "e" {
		t.Fatalf("Expected kill credited to bob, got %+v", kills)
	}
	if w.Player.Score != 0 {
		t.Errorf("Host must not score a remote kill, score=%d", w.Player.Score)
	}
}

func TestRemoteBulletExpires(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	w.AddRemoteBullet(remoteShot("bob", 0.5))

	w.Advance(0.01, epoch.Add(200*time.Millisecond))
	if len(w.RemoteBullets) != 1 {
		t.Fatal("Remote bullet should still be live")
	}
	if rb := w.RemoteBullets[0]; math.Abs(rb.X-6) > 1e-9 || rb.Alpha >= 1 {
		t.Errorf("Expected extrapolated x=6 with fading alpha, got x=%v alpha=%v", rb.X, rb.Alpha)
	}
	w.Advance(0.01, epoch.Add(600*time.Millisecond))
	if len(w.RemoteBullets) != 0 {
		t.Error("Remote bullet should expire after its life")
	}

	w.AddRemoteBullet(remoteShot("bob", 0))
	if len(w.RemoteBullets) != 0 {
		t.Error("Zero-life bullets must be ignored")
	}
}

func TestPeerLocalKillWaitsForCredit(t *testing.T) {
	w := newTestWorld(protocol.RolePeer)
	w.tuning.PickupChance = 1
	addEnemy(w, "e", 3, 0, 30)

	w.SetInput(Input{AimX: 3, Fire: true})
	w.Advance(0, epoch)
	w.SetInput(Input{})
	stepFor(w, 0.15, 0.01)

	if len(w.Enemies) != 0 {
		t.Fatalf("Lethal local hit should remove the enemy, have %v", enemyIDs(w))
	}
	if w.Player.Score != 0 {
		t.Errorf("Peer must not self-credit, score=%d", w.Player.Score)
	}
	if len(w.Pickups) != 1 {
		t.Errorf("Peer kill should still roll its pickup, got %d", len(w.Pickups))
	}

	w.ApplyKill(protocol.Kill{EnemyID: "e", Killer: "alice"})
	if w.Player.Score != KillScore {
		t.Errorf("Expected score %d after host credit, got %d", KillScore, w.Player.Score)
	}
	w.ApplyKill(protocol.Kill{EnemyID: "other", Killer: "bob"})
	if w.Player.Score != KillScore {
		t.Error("Another player's kill must not change local score")
	}
}

func TestHostAppliesPeerMelee(t *testing.T) {
	s, ft := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	e := addEnemy(w, "e", 8, 8, 50)

	ft.in <- mustEnvelope(protocol.MsgMeleeHit, testRoom, "bob", protocol.MeleeHit{
		Attacker: "bob", EnemyIDs: []string{"e", "ghost"}, Damage: 55, Stun: StunDuration,
	})
	w.BeginFrame()
	s.Drain(w, epoch)

	if len(w.Enemies) != 0 || e.HP != 0 {
		t.Fatalf("Expected melee kill, enemies=%v hp=%v", enemyIDs(w), e.HP)
	}
	if kills := w.Output().Kills; len(kills) != 1 || kills[0].Killer != "bob" {
		t.Errorf("Expected kill credited to bob, got %+v", kills)
	}

	s.Publish(w, epoch)
	if n := len(ft.sentOfType(protocol.MsgKill)); n != 1 {
		t.Errorf("Expected host to broadcast 1 kill, got %d", n)
	}
}

func TestPruneRemotePlayers(t *testing.T) {
	s, _ := newTestSync(protocol.RoleHost)
	w := newTestWorld(protocol.RoleHost)
	w.RemotePlayers["fresh"] = &RemotePlayer{LastSeen: epoch}
	w.RemotePlayers["stale"] = &RemotePlayer{LastSeen: epoch.Add(-6 * time.Second)}

	s.Prune(w, epoch)
	if _, ok := w.RemotePlayers["stale"]; ok {
		t.Error("Stale remote player should be pruned")
	}
	if _, ok := w.RemotePlayers["fresh"]; !ok {
		t.Error("Fresh remote player should be kept")
	}
}

func TestHostChasesNearestParticipant(t *testing.T) {
	w := newTestWorld(protocol.RoleHost)
	e := addEnemy(w, "e", 10, 0, 60)
	e.Speed = 1
	w.RemotePlayers["bob"] = &RemotePlayer{PlayerState: protocol.PlayerState{Username: "bob", X: 12, Y: 0}}

	stepFor(w, 1, 0.01)
	if e.X <= 10 {
		t.Errorf("Enemy should chase bob (x=12), got x=%v", e.X)
	}
}

func TestHostKeepsSimulatingWhileDead(t *testing.T) {
	host := newTestWorld(protocol.RoleHost)
	peer := newTestWorld(protocol.RolePeer)
	for _, w := range []*World{host, peer} {
		w.Player.Dead = true
		e := addEnemy(w, "e", 10, 0, 60)
		e.Speed = 2
		w.RemotePlayers["bob"] = &RemotePlayer{PlayerState: protocol.PlayerState{Username: "bob", X: 0, Y: 0}}
		stepFor(w, 1, 0.01)
	}
	if host.Enemies[0].X >= 10 {
		t.Error("Host enemies should keep chasing while the host is dead")
	}
	if peer.Enemies[0].X != 10 {
		t.Error("A dead peer must not step its world")
	}
}
