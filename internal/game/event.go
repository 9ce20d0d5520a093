package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeSessionStart
	EventTypeSessionEnd
	EventTypeSpawn
	EventTypeDamage
	EventTypeKill
	EventTypePickup
	EventTypeOverride
	EventTypeDeath
	EventTypeRevive
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is one line of the event log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	Frame     uint64          `json:"frame"`
	SessionID string          `json:"sessionId"` // source session (for rate limiting)
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeSessionStart:
		return "session_start"
	case EventTypeSessionEnd:
		return "session_end"
	case EventTypeSpawn:
		return "spawn"
	case EventTypeDamage:
		return "damage"
	case EventTypeKill:
		return "kill"
	case EventTypePickup:
		return "pickup"
	case EventTypeOverride:
		return "override"
	case EventTypeDeath:
		return "death"
	case EventTypeRevive:
		return "revive"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the type by name.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Typed payloads for different event types

// SessionPayload describes session lifecycle events.
type SessionPayload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Room     string `json:"room,omitempty"`
	Score    int    `json:"score"`
}

// SpawnPayload lists enemies spawned in one frame.
type SpawnPayload struct {
	EnemyIDs      []string `json:"enemyIds"`
	SpawnInterval float64  `json:"spawnInterval"`
	ArenaBound    float64  `json:"arenaBound"`
}

// DamagePayload records damage taken by the local player in one frame.
type DamagePayload struct {
	Amount float64 `json:"amount"`
	HP     float64 `json:"hp"`
}

// KillPayload attributes an enemy death.
type KillPayload struct {
	EnemyID string `json:"enemyId"`
	Killer  string `json:"killer"`
}

// PickupPayload records ammo pickups.
type PickupPayload struct {
	Count int `json:"count"`
	Ammo  int `json:"ammo"`
}

// OverridePayload records an applied or rejected override command.
type OverridePayload struct {
	Command string `json:"command"`
	Issuer  string `json:"issuer,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DeathPayload records the end of a life.
type DeathPayload struct {
	Score   int     `json:"score"`
	SimTime float64 `json:"simTime"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, frame uint64, sessionID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Frame:     frame,
		SessionID: sessionID,
		Payload:   EncodePayload(payload),
	}
}
