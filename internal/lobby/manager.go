// Package lobby owns the live sessions of a server process: it assigns
// roles and room codes, enforces one host per room and reaps abandoned
// sessions.
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/chat"
	"arena-shooter/internal/config"
	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
	"arena-shooter/internal/transport"
)

var (
	// ErrRoomHasHost is returned when a host asks for a room that already has one.
	ErrRoomHasHost = transport.ErrRoomHasHost
	// ErrNameTaken is returned when the room already has a member by that name.
	ErrNameTaken = transport.ErrNameTaken
	// ErrRoomNotFound is returned when a peer asks for a room without a host.
	ErrRoomNotFound = errors.New("room not found")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned once MaxSessions are live.
	ErrTooManySessions = errors.New("session limit reached")
	// ErrBadUsername is returned for empty or oversized usernames.
	ErrBadUsername = errors.New("username must be 1-32 characters")
)

const (
	roomCodeLen      = 6
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxUsernameLen   = 32
)

// CreateRequest asks for a new session. Room is optional for hosts (a code
// is generated) and required for peers.
type CreateRequest struct {
	Username string        `json:"username"`
	Role     protocol.Role `json:"-"`
	Room     string        `json:"room,omitempty"`
}

// Info summarizes a live session for listings.
type Info struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Room      string    `json:"room,omitempty"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	Score     int       `json:"score"`
	Enemies   int       `json:"enemies"`
	CreatedAt time.Time `json:"createdAt"`
}

// Deps are the shared collaborators handed to every session. Any may be nil
// except Hub.
type Deps struct {
	Hub     *transport.Hub
	Scores  game.ScoreSink
	Events  *game.EventLog
	OnKill  func(game.KillEvent)
	OnFrame func(time.Duration)
}

type entry struct {
	session *game.Session
	created time.Time
}

// Manager tracks live sessions.
type Manager struct {
	cfg  config.AppConfig
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*entry

	log *logrus.Entry
}

// NewManager creates a manager.
func NewManager(cfg config.AppConfig, deps Deps) *Manager {
	if deps.Hub == nil {
		deps.Hub = transport.NewHub(cfg.Net.InboxSize)
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*entry),
		log:      logger.With("lobby"),
	}
}

// Create builds and starts a session.
func (m *Manager) Create(req CreateRequest) (*game.Session, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > maxUsernameLen {
		return nil, ErrBadUsername
	}
	req.Room = strings.ToUpper(strings.TrimSpace(req.Room))

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.cfg.Limits.MaxSessions; limit > 0 && len(m.sessions) >= limit {
		return nil, ErrTooManySessions
	}

	var tr protocol.Transport
	switch req.Role {
	case protocol.RoleSolo:
		req.Room = ""
	case protocol.RoleHost:
		if req.Room == "" {
			code, err := m.freeRoomCode()
			if err != nil {
				return nil, err
			}
			req.Room = code
		}
		ep, err := m.deps.Hub.Join(req.Room, req.Username, protocol.RoleHost)
		if err != nil {
			return nil, err
		}
		tr = ep
	case protocol.RolePeer:
		if req.Room == "" || !m.deps.Hub.HasHost(req.Room) {
			return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, req.Room)
		}
		ep, err := m.deps.Hub.Join(req.Room, req.Username, protocol.RolePeer)
		if err != nil {
			return nil, err
		}
		tr = ep
	default:
		return nil, fmt.Errorf("unknown role %d", req.Role)
	}

	s, err := game.NewSession(game.SessionConfig{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Room:      req.Room,
		Role:      req.Role,
		Sim:       m.cfg.Sim,
		Net:       m.cfg.Net,
		Limits:    m.cfg.Limits,
		Transport: tr,
		Scores:    m.deps.Scores,
		Events:    m.deps.Events,
		OnKill:    m.deps.OnKill,
		OnFrame:   m.deps.OnFrame,
	})
	if err != nil {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, err
	}

	m.sessions[s.ID()] = &entry{session: s, created: time.Now()}
	s.Start()

	m.log.WithFields(logrus.Fields{
		"session": s.ID(),
		"user":    req.Username,
		"role":    req.Role.String(),
		"room":    req.Room,
		"active":  len(m.sessions),
	}).Info("✅ Session created")
	return s, nil
}

// freeRoomCode returns a code no room currently uses. Caller holds m.mu.
func (m *Manager) freeRoomCode() (string, error) {
	taken := make(map[string]bool)
	for _, r := range m.deps.Hub.Rooms() {
		taken[r.Code] = true
	}
	for i := 0; i < 16; i++ {
		code, err := NewRoomCode()
		if err != nil {
			return "", err
		}
		if !taken[code] {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a room code")
}

// NewRoomCode returns a random code of unambiguous uppercase letters and digits.
func NewRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// CommandTarget resolves override commands for the chat handler.
func (m *Manager) CommandTarget(id string) (chat.Target, bool) {
	s, err := m.Get(id)
	if err != nil {
		return nil, false
	}
	return s, true
}

// List returns live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, info(e))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Describe returns the listing entry of one session.
func (m *Manager) Describe(id string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return info(e), nil
}

func info(e *entry) Info {
	s := e.session
	in := Info{
		ID:        s.ID(),
		Username:  s.Username(),
		Room:      s.Room(),
		Role:      s.Role().String(),
		State:     s.State().String(),
		CreatedAt: e.created,
	}
	if snap := s.Snapshot(); snap != nil {
		in.Score = snap.Player.Score
		in.Enemies = len(snap.Enemies)
	}
	return in
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End stops a session: its loop exits, its transport closes and the final
// score delta is flushed.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.session.Stop()
	m.log.WithFields(logrus.Fields{"session": id, "user": e.session.Username()}).Info("🛑 Session removed")
	return nil
}

// Rooms lists rooms with their members.
func (m *Manager) Rooms() []transport.RoomInfo {
	return m.deps.Hub.Rooms()
}

// Hub exposes the room hub for the websocket relay.
func (m *Manager) Hub() *transport.Hub {
	return m.deps.Hub
}

// Shutdown ends every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.End(id)
	}
}

// RunReaper ends abandoned sessions every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.reap(now); n > 0 {
				m.log.WithField("reaped", n).Info("🧹 Reaped sessions")
			}
		}
	}
}

// reap ends sessions that sat in game over longer than ReviveTimeout and
// forgets sessions that already ended on their own.
func (m *Manager) reap(now time.Time) int {
	timeout := m.cfg.Limits.ReviveTimeout

	m.mu.RLock()
	var stale []string
	for id, e := range m.sessions {
		s := e.session
		switch s.State() {
		case game.StateEnded:
			stale = append(stale, id)
		case game.StateGameOver:
			if since := s.GameOverSince(); timeout > 0 && !since.IsZero() && now.Sub(since) > timeout {
				stale = append(stale, id)
			}
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		_ = m.End(id)
	}
	return len(stale)
}
