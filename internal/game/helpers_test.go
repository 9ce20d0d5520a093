package game

import (
	"sync"
	"time"

	"arena-shooter/internal/config"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

func init() {
	logger.Silence()
}

var epoch = time.Unix(1_700_000_000, 0)

// newTestWorld returns a seeded world whose director will not spawn on its own.
func newTestWorld(role protocol.Role) *World {
	w := NewWorld(WorldConfig{
		Username: "alice",
		Role:     role,
		Sim:      config.DefaultSim(),
		Limits:   config.DefaultLimits(),
		Seed:     42,
	})
	w.Director.LastSpawn = 1e9
	return w
}

func addEnemy(w *World, id string, x, y, hp float64) *Enemy {
	e := &Enemy{ID: id, X: x, Y: y, Radius: EnemyRadius, HP: hp, MaxHP: hp}
	w.Enemies = append(w.Enemies, e)
	return e
}

// stepFor advances the world in fixed increments for the given sim seconds.
func stepFor(w *World, seconds, dt float64) {
	steps := int(seconds/dt + 0.5)
	for i := 0; i < steps; i++ {
		w.Advance(dt, epoch)
	}
}

func enemyIDs(w *World) []string {
	ids := make([]string, len(w.Enemies))
	for i, e := range w.Enemies {
		ids[i] = e.ID
	}
	return ids
}

// fakeTransport records publishes and lets tests inject inbound messages.
type fakeTransport struct {
	mu        sync.Mutex
	in        chan protocol.Envelope
	sent      []protocol.Envelope
	connected bool
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan protocol.Envelope, 64), connected: true}
}

func (f *fakeTransport) Publish(env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Inbound() <-chan protocol.Envelope { return f.in }

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && !f.closed
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentOfType(t string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range f.sent {
		if e.T == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func mustEnvelope(t, room, from string, payload any) protocol.Envelope {
	env, err := protocol.New(t, room, from, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// recordingSink captures score deltas.
type recordingSink struct {
	mu     sync.Mutex
	deltas []int
}

func (r *recordingSink) RecordScore(_ string, delta int) {
	r.mu.Lock()
	r.deltas = append(r.deltas, delta)
	r.mu.Unlock()
}

func (r *recordingSink) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, d := range r.deltas {
		sum += d
	}
	return sum
}
