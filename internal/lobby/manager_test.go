package lobby

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"arena-shooter/internal/config"
	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

func init() {
	logger.Silence()
}

type recordingSink struct {
	mu     sync.Mutex
	deltas map[string][]int
}

func (r *recordingSink) RecordScore(username string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deltas == nil {
		r.deltas = make(map[string][]int)
	}
	r.deltas[username] = append(r.deltas[username], delta)
}

func newTestManager(t *testing.T, maxSessions int) *Manager {
	t.Helper()
	limits := config.DefaultLimits()
	limits.MaxSessions = maxSessions
	m := NewManager(config.AppConfig{
		Sim:    config.DefaultSim(),
		Net:    config.DefaultNet(),
		Limits: limits,
	}, Deps{Scores: &recordingSink{}})
	t.Cleanup(m.Shutdown)
	return m
}

func TestCreateSolo(t *testing.T) {
	m := newTestManager(t, 10)

	s, err := m.Create(CreateRequest{Username: " alice ", Role: protocol.RoleSolo, Room: "IGNORED"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Username() != "alice" || s.Room() != "" || s.Role() != protocol.RoleSolo {
		t.Errorf("Unexpected session %s/%s/%s", s.Username(), s.Room(), s.Role())
	}
	if got, err := m.Get(s.ID()); err != nil || got != s {
		t.Errorf("Get returned %v, %v", got, err)
	}

	info, err := m.Describe(s.ID())
	if err != nil || info.State != "running" || info.Role != "solo" {
		t.Errorf("Unexpected info %+v (%v)", info, err)
	}
	if len(m.List()) != 1 || m.Count() != 1 {
		t.Errorf("Expected one listed session")
	}
	if len(m.Rooms()) != 0 {
		t.Error("Solo sessions should not create rooms")
	}
}

func TestHostGetsRoomCode(t *testing.T) {
	m := newTestManager(t, 10)

	s, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleHost})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	code := s.Room()
	if len(code) != roomCodeLen {
		t.Fatalf("Unexpected room code %q", code)
	}
	for _, c := range code {
		if !strings.ContainsRune(roomCodeAlphabet, c) {
			t.Errorf("Room code %q has character %q outside the alphabet", code, c)
		}
	}

	rooms := m.Rooms()
	if len(rooms) != 1 || rooms[0].Code != code || rooms[0].Host != "alice" {
		t.Errorf("Unexpected rooms %+v", rooms)
	}
}

func TestOneHostPerRoom(t *testing.T) {
	m := newTestManager(t, 10)

	if _, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleHost, Room: "abc234"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RoleHost, Room: "ABC234"})
	if !errors.Is(err, ErrRoomHasHost) {
		t.Fatalf("Expected ErrRoomHasHost, got %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Rejected host should not leave a session behind")
	}
}

func TestUniqueNamesPerRoom(t *testing.T) {
	m := newTestManager(t, 10)

	host, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleHost})
	if err != nil {
		t.Fatalf("Create host: %v", err)
	}
	if _, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RolePeer, Room: host.Room()}); err != nil {
		t.Fatalf("Create peer: %v", err)
	}
	for _, name := range []string{"alice", " bob "} {
		_, err := m.Create(CreateRequest{Username: name, Role: protocol.RolePeer, Room: host.Room()})
		if !errors.Is(err, ErrNameTaken) {
			t.Errorf("%q: expected ErrNameTaken, got %v", name, err)
		}
	}
	if m.Count() != 2 {
		t.Errorf("Rejected peers should not leave sessions behind, have %d", m.Count())
	}
	if rooms := m.Rooms(); len(rooms) != 1 || len(rooms[0].Members) != 2 {
		t.Errorf("Unexpected rooms %+v", rooms)
	}
	if _, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleSolo}); err != nil {
		t.Errorf("Solo sessions share no room: %v", err)
	}
}

func TestPeerNeedsHostedRoom(t *testing.T) {
	m := newTestManager(t, 10)

	if _, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RolePeer, Room: "NOPE22"}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Expected ErrRoomNotFound, got %v", err)
	}
	if _, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RolePeer}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Peer without room: expected ErrRoomNotFound, got %v", err)
	}

	host, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleHost})
	if err != nil {
		t.Fatalf("Create host: %v", err)
	}
	peer, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RolePeer, Room: strings.ToLower(host.Room())})
	if err != nil {
		t.Fatalf("Create peer: %v", err)
	}
	if peer.Room() != host.Room() {
		t.Errorf("Peer joined %q, host is in %q", peer.Room(), host.Room())
	}
	rooms := m.Rooms()
	if len(rooms) != 1 || len(rooms[0].Members) != 2 {
		t.Errorf("Unexpected rooms %+v", rooms)
	}
}

func TestCreateValidation(t *testing.T) {
	m := newTestManager(t, 2)

	for _, name := range []string{"", "   ", strings.Repeat("x", 33)} {
		if _, err := m.Create(CreateRequest{Username: name, Role: protocol.RoleSolo}); !errors.Is(err, ErrBadUsername) {
			t.Errorf("username %q: expected ErrBadUsername, got %v", name, err)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleSolo}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleSolo}); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("Expected ErrTooManySessions, got %v", err)
	}
}

func TestEndStopsSession(t *testing.T) {
	m := newTestManager(t, 10)

	host, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleHost})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	room := host.Room()

	if err := m.End(host.ID()); err != nil {
		t.Fatalf("End: %v", err)
	}
	select {
	case <-host.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session loop did not exit")
	}
	if host.State() != game.StateEnded {
		t.Errorf("Expected ended state, got %s", host.State())
	}
	if _, err := m.Get(host.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := m.End(host.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Second End: expected ErrSessionNotFound, got %v", err)
	}
	if m.Hub().HasHost(room) {
		t.Error("Ending the host should release the room")
	}
	if host.SubmitCommand(game.OverrideCommand{Kind: game.OverrideGodMode}) {
		t.Error("Ended sessions should refuse commands")
	}
}

func TestReapForgetsEndedSessions(t *testing.T) {
	m := newTestManager(t, 10)

	s, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleSolo})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	keep, err := m.Create(CreateRequest{Username: "bob", Role: protocol.RoleSolo})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Stop()

	if n := m.reap(time.Now()); n != 1 {
		t.Errorf("Expected 1 reaped session, got %d", n)
	}
	if _, err := m.Get(keep.ID()); err != nil {
		t.Errorf("Running session should survive the reaper: %v", err)
	}
}

func TestCommandTarget(t *testing.T) {
	m := newTestManager(t, 10)

	s, err := m.Create(CreateRequest{Username: "alice", Role: protocol.RoleSolo})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, ok := m.CommandTarget(s.ID())
	if !ok || !target.SubmitCommand(game.OverrideCommand{Kind: game.OverrideGodMode, Issuer: "admin"}) {
		t.Fatal("Expected a live command target")
	}
	if _, ok := m.CommandTarget("missing"); ok {
		t.Error("Unknown sessions should not resolve")
	}
}

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewRoomCode()
		if err != nil {
			t.Fatalf("NewRoomCode: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("Room codes collide too often: %d unique of 100", len(seen))
	}
}
