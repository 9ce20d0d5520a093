// Package transport carries protocol envelopes between the participants of a
// room. Delivery is best-effort, unordered and at most once.
package transport

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

var (
	// ErrRoomHasHost is returned when a second host tries to join a room.
	ErrRoomHasHost = errors.New("room already has a host")
	// ErrNameTaken is returned when a room already has a member with the name.
	ErrNameTaken = errors.New("username already in room")
	// ErrClosed is returned by Publish after the endpoint left its room.
	ErrClosed = errors.New("endpoint closed")
	// ErrBadRoom is returned for an empty room code.
	ErrBadRoom = errors.New("room code required")
)

// DefaultBufferSize is the per-member inbound buffer when none is given.
const DefaultBufferSize = 256

// RoomInfo describes a room for listings.
type RoomInfo struct {
	Code    string   `json:"code"`
	Host    string   `json:"host,omitempty"`
	Members []string `json:"members"`
}

type room struct {
	code    string
	host    *Endpoint
	members map[*Endpoint]struct{}
}

// Hub fans envelopes out to every other member of a room. A member whose
// buffer is full misses the message; the sender never blocks. Enemy batches
// and kills are only forwarded from the room's host.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	bufSize int

	onMessage atomic.Pointer[func(protocol.Envelope)]

	delivered atomic.Uint64
	dropped   atomic.Uint64
	refused   atomic.Uint64
	log       *logrus.Entry
}

// NewHub creates a hub with bufSize slots per member.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Hub{
		rooms:   make(map[string]*room),
		bufSize: bufSize,
		log:     logger.With("hub"),
	}
}

// OnMessage registers an observer called for every published envelope,
// before fan-out. It must not block.
func (h *Hub) OnMessage(fn func(protocol.Envelope)) {
	h.onMessage.Store(&fn)
}

// Join adds username to room code. Names are unique per room
// (ErrNameTaken). A host join fails with ErrRoomHasHost if the room already
// has one; other roles join as plain members.
func (h *Hub) Join(code, username string, role protocol.Role) (*Endpoint, error) {
	if code == "" {
		return nil, ErrBadRoom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[code]
	if ok {
		if role == protocol.RoleHost && r.host != nil {
			return nil, ErrRoomHasHost
		}
		for ep := range r.members {
			if ep.username == username {
				return nil, ErrNameTaken
			}
		}
	} else {
		r = &room{code: code, members: make(map[*Endpoint]struct{})}
		h.rooms[code] = r
	}

	ep := &Endpoint{
		hub:      h,
		room:     code,
		username: username,
		role:     role,
		in:       make(chan protocol.Envelope, h.bufSize),
	}
	r.members[ep] = struct{}{}
	if role == protocol.RoleHost {
		r.host = ep
	}

	h.log.WithFields(logrus.Fields{
		"room":    code,
		"user":    username,
		"role":    role.String(),
		"members": len(r.members),
	}).Info("🚪 Joined room")
	return ep, nil
}

// HasHost reports whether room code currently has a host member.
func (h *Hub) HasHost(code string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[code]
	return ok && r.host != nil
}

// Rooms lists rooms sorted by code.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]RoomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		info := RoomInfo{Code: r.code, Members: make([]string, 0, len(r.members))}
		if r.host != nil {
			info.Host = r.host.username
		}
		for ep := range r.members {
			info.Members = append(info.Members, ep.username)
		}
		sort.Strings(info.Members)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Stats returns delivered and dropped fan-out counts.
func (h *Hub) Stats() (delivered, dropped uint64) {
	return h.delivered.Load(), h.dropped.Load()
}

// Refused counts host-only envelopes published by non-host members.
func (h *Hub) Refused() uint64 {
	return h.refused.Load()
}

// hostOnly reports whether only the room host may publish t.
func hostOnly(t string) bool {
	return t == protocol.MsgEnemyBatch || t == protocol.MsgKill
}

func (h *Hub) broadcast(from *Endpoint, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[from.room]
	if !ok {
		return
	}
	if hostOnly(env.T) && r.host != from {
		h.refused.Add(1)
		h.log.WithFields(logrus.Fields{"room": from.room, "user": from.username, "type": env.T}).Warn("⚠️ Refused host-only message")
		return
	}

	if fn := h.onMessage.Load(); fn != nil {
		(*fn)(env)
	}
	for ep := range r.members {
		if ep == from {
			continue
		}
		select {
		case ep.in <- env:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) leave(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[ep.room]
	if !ok {
		return
	}
	if _, member := r.members[ep]; !member {
		return
	}
	delete(r.members, ep)
	if r.host == ep {
		r.host = nil
	}
	close(ep.in)
	if len(r.members) == 0 {
		delete(h.rooms, ep.room)
	}

	h.log.WithFields(logrus.Fields{
		"room":    ep.room,
		"user":    ep.username,
		"members": len(r.members),
	}).Info("🚪 Left room")
}

// Endpoint is one member's view of a room. It implements protocol.Transport.
type Endpoint struct {
	hub      *Hub
	room     string
	username string
	role     protocol.Role
	in       chan protocol.Envelope
	closed   atomic.Bool
}

// Room returns the room code.
func (e *Endpoint) Room() string { return e.room }

// Username returns the member name.
func (e *Endpoint) Username() string { return e.username }

// Publish fans env out to the other members. Room and From are always
// stamped from the endpoint.
func (e *Endpoint) Publish(env protocol.Envelope) error {
	if e.closed.Load() {
		return ErrClosed
	}
	env.Room = e.room
	env.From = e.username
	e.hub.broadcast(e, env)
	return nil
}

// Inbound delivers envelopes from other members. Closed when the endpoint leaves.
func (e *Endpoint) Inbound() <-chan protocol.Envelope { return e.in }

// Connected reports whether the endpoint is still in its room.
func (e *Endpoint) Connected() bool { return !e.closed.Load() }

// Close leaves the room. Undelivered messages are discarded.
func (e *Endpoint) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.hub.leave(e)
	}
	return nil
}
