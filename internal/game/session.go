package game

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/config"
	"arena-shooter/internal/game/spatial"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

// SessionState is the lifecycle of a session.
type SessionState int32

const (
	StateRunning SessionState = iota
	StateGameOver
	StateEnded
)

func (s SessionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateGameOver:
		return "game_over"
	default:
		return "ended"
	}
}

// ScoreSink receives cumulative score deltas on death and session end.
// Implementations must not block the caller.
type ScoreSink interface {
	RecordScore(username string, delta int)
}

// KillEvent is emitted by the enemy authority for every enemy death.
type KillEvent struct {
	SessionID string    `json:"sessionId"`
	Room      string    `json:"room,omitempty"`
	EnemyID   string    `json:"enemyId"`
	Killer    string    `json:"killer"`
	At        time.Time `json:"at"`
}

// ErrNoTransport is returned when a multiplayer role has no transport.
var ErrNoTransport = errors.New("multiplayer session requires a transport")

// SessionConfig configures a session.
type SessionConfig struct {
	ID        string
	Username  string
	Room      string
	Role      protocol.Role
	Sim       config.SimConfig
	Net       config.NetConfig
	Limits    config.ResourceLimits
	Transport protocol.Transport // nil for solo
	Scores    ScoreSink
	Events    *EventLog
	OnKill    func(KillEvent)
	OnFrame   func(elapsed time.Duration) // called after every loop frame
	Seed      int64                       // 0 picks a time-based seed
	Now       func() time.Time            // defaults to time.Now
}

type inboxKind uint8

const (
	inboxInput inboxKind = iota
	inboxCommand
	inboxRevive
)

type inboxItem struct {
	kind  inboxKind
	input Input
	cmd   OverrideCommand
}

const inboxSize = 256

// Session drives one World on a fixed cadence. Every mutation funnels
// through its inbox and is applied at the start of a frame by the loop
// goroutine, the World's only writer.
type Session struct {
	id       string
	room     string
	username string
	role     protocol.Role
	tickRate int

	world     *World
	sync      *Synchronizer
	inbox     *spatial.LockFreeQueue[inboxItem]
	snapshots SnapshotBuffer
	scores    ScoreSink
	events    *EventLog
	onKill    func(KillEvent)
	onFrame   func(time.Duration)
	now       func() time.Time
	log       *logrus.Entry

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}

	state      atomic.Int32
	gameOverAt atomic.Int64
	reported   int

	commandsApplied  atomic.Uint64
	commandsRejected atomic.Uint64
	inputsDropped    atomic.Uint64
}

// NewSession builds a session. Host and peer sessions need a transport.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Role != protocol.RoleSolo && cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tickRate := cfg.Sim.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}

	s := &Session{
		id:       cfg.ID,
		room:     cfg.Room,
		username: cfg.Username,
		role:     cfg.Role,
		tickRate: tickRate,
		world: NewWorld(WorldConfig{
			Username: cfg.Username,
			Role:     cfg.Role,
			Sim:      cfg.Sim,
			Limits:   cfg.Limits,
			Seed:     cfg.Seed,
		}),
		inbox:    spatial.NewLockFreeQueue[inboxItem](inboxSize),
		scores:   cfg.Scores,
		events:   cfg.Events,
		onKill:   cfg.OnKill,
		onFrame:  cfg.OnFrame,
		now:      cfg.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log: logger.Log.WithFields(logrus.Fields{
			"session": cfg.ID,
			"user":    cfg.Username,
			"role":    cfg.Role.String(),
		}),
	}
	if cfg.Transport != nil {
		s.sync = NewSynchronizer(cfg.Role, cfg.Room, cfg.Username, cfg.Transport, cfg.Net)
	}
	s.publishSnapshot()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Room returns the room code; empty for solo.
func (s *Session) Room() string { return s.room }

// Username returns the local player's name.
func (s *Session) Username() string { return s.username }

// Role returns the fixed role.
func (s *Session) Role() protocol.Role { return s.role }

// State returns the lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// GameOverSince reports when the player died; zero while alive.
func (s *Session) GameOverSince() time.Time {
	ns := s.gameOverAt.Load()
	if ns == 0 || s.State() != StateGameOver {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the latest render snapshot.
func (s *Session) Snapshot() *SessionSnapshot { return s.snapshots.Latest() }

// SyncStats returns the synchronizer counters, or nil for solo sessions.
func (s *Session) SyncStats() *SyncStats {
	if s.sync == nil {
		return nil
	}
	return &s.sync.Stats
}

// SubmitInput queues player intent for the next frame.
func (s *Session) SubmitInput(in Input) bool {
	return s.enqueue(inboxItem{kind: inboxInput, input: in})
}

// SubmitCommand queues an authorized override for the next frame.
func (s *Session) SubmitCommand(cmd OverrideCommand) bool {
	return s.enqueue(inboxItem{kind: inboxCommand, cmd: cmd})
}

// Revive queues a revive. It only takes effect in the game-over state.
func (s *Session) Revive() bool {
	if s.State() != StateGameOver {
		return false
	}
	return s.enqueue(inboxItem{kind: inboxRevive})
}

func (s *Session) enqueue(item inboxItem) bool {
	if s.State() == StateEnded {
		return false
	}
	if !s.inbox.TryPush(item) {
		s.inputsDropped.Add(1)
		return false
	}
	return true
}

// Start begins the frame loop.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	s.events.EmitSimple(EventTypeSessionStart, 0, s.id, SessionPayload{
		Username: s.username, Role: s.role.String(), Room: s.room,
	})
	go s.run()
	s.log.WithField("tps", s.tickRate).Info("🎮 Session started")
}

// Stop ends the session: the loop exits, the final score delta is flushed,
// overrides reset and the transport closes. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		close(s.stopChan)
		<-s.done
		return
	}
	s.finish()
	close(s.done)
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(time.Second / time.Duration(s.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			s.frame(s.now())
			if s.onFrame != nil {
				s.onFrame(time.Since(start))
			}
		case <-s.stopChan:
			s.finish()
			return
		}
	}
}

// frame runs one tick: inbox, network, simulation, publish, snapshot.
func (s *Session) frame(now time.Time) {
	w := s.world
	w.BeginFrame()

	s.drainInbox()
	if s.sync != nil {
		s.sync.Drain(w, now)
		s.sync.Prune(w, now)
	}

	dt := w.Clock.Tick(now)
	w.Step(dt, now.UnixMilli())

	out := w.Output()
	if out.Died {
		s.state.Store(int32(StateGameOver))
		s.gameOverAt.Store(now.UnixNano())
		s.reportScore()
		s.events.EmitSimple(EventTypeDeath, w.Clock.Frames, s.id, DeathPayload{
			Score: w.Player.Score, SimTime: w.Clock.SimTime,
		})
		s.log.WithField("score", w.Player.Score).Info("💀 Player died")
	}

	if s.sync != nil {
		s.sync.Publish(w, now)
	}
	s.emitFrameEvents(out, now)
	s.publishSnapshot()
}

func (s *Session) drainInbox() {
	w := s.world
	s.inbox.Drain(func(item inboxItem) {
		switch item.kind {
		case inboxInput:
			if s.State() == StateRunning {
				w.SetInput(item.input)
			}
		case inboxCommand:
			s.applyCommand(item.cmd)
		case inboxRevive:
			if s.State() == StateGameOver {
				w.Revive()
				s.state.Store(int32(StateRunning))
				s.gameOverAt.Store(0)
				s.events.EmitSimple(EventTypeRevive, w.Clock.Frames, s.id, nil)
				s.log.Info("✨ Player revived")
			}
		}
	})
}

func (s *Session) applyCommand(cmd OverrideCommand) {
	w := s.world
	payload := OverridePayload{Command: cmd.Kind.String(), Issuer: cmd.Issuer}
	if err := w.applyOverride(cmd); err != nil {
		s.commandsRejected.Add(1)
		payload.Error = err.Error()
		s.log.WithError(err).WithField("command", cmd.Kind.String()).Debug("Override rejected")
	} else {
		s.commandsApplied.Add(1)
		s.log.WithFields(logrus.Fields{"command": cmd.Kind.String(), "issuer": cmd.Issuer}).Info("🛠️ Override applied")
	}
	s.events.EmitSimple(EventTypeOverride, w.Clock.Frames, s.id, payload)
}

func (s *Session) emitFrameEvents(out *FrameOutput, now time.Time) {
	w := s.world
	frame := w.Clock.Frames

	if len(out.Spawned) > 0 {
		s.events.EmitSimple(EventTypeSpawn, frame, s.id, SpawnPayload{
			EnemyIDs:      append([]string(nil), out.Spawned...),
			SpawnInterval: w.Director.Interval,
			ArenaBound:    w.Arena.Bound(),
		})
	}
	if out.DamageTook > 0 {
		s.events.EmitSimple(EventTypeDamage, frame, s.id, DamagePayload{Amount: out.DamageTook, HP: w.Player.HP})
	}
	if out.Picked > 0 {
		s.events.EmitSimple(EventTypePickup, frame, s.id, PickupPayload{Count: out.Picked, Ammo: w.Player.Ammo})
	}
	for _, k := range out.Kills {
		s.events.EmitSimple(EventTypeKill, frame, s.id, KillPayload{EnemyID: k.EnemyID, Killer: k.Killer})
		if s.onKill != nil {
			s.onKill(KillEvent{SessionID: s.id, Room: s.room, EnemyID: k.EnemyID, Killer: k.Killer, At: now})
		}
	}
}

// reportScore emits the score gained since the last report.
func (s *Session) reportScore() {
	score := s.world.Player.Score
	delta := score - s.reported
	if delta == 0 {
		return
	}
	s.reported = score
	if s.scores != nil {
		s.scores.RecordScore(s.username, delta)
	}
}

func (s *Session) publishSnapshot() {
	snap := s.world.Snapshot()
	snap.SessionID = s.id
	snap.Room = s.room
	snap.State = s.State().String()
	snap.Connected = s.sync != nil && s.sync.Connected()
	s.snapshots.Publish(snap)
}

// finish runs once on the loop goroutine (or the caller when never started).
func (s *Session) finish() {
	s.reportScore()
	s.world.Overrides.Reset()
	s.state.Store(int32(StateEnded))
	if s.sync != nil {
		if err := s.sync.Close(); err != nil {
			s.log.WithError(err).Warn("⚠️ Transport close failed")
		}
	}
	s.events.EmitSimple(EventTypeSessionEnd, s.world.Clock.Frames, s.id, SessionPayload{
		Username: s.username, Role: s.role.String(), Room: s.room, Score: s.world.Player.Score,
	})
	s.publishSnapshot()
	s.log.WithField("score", s.world.Player.Score).Info("🛑 Session ended")
}

// CommandStats returns applied and rejected override counts.
func (s *Session) CommandStats() (applied, rejected uint64) {
	return s.commandsApplied.Load(), s.commandsRejected.Load()
}
