// Package protocol defines the multiplayer wire format shared by hosts, peers
// and the relay.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Role is fixed when a session is created.
type Role int

const (
	RoleSolo Role = iota
	RoleHost
	RolePeer
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RolePeer:
		return "peer"
	default:
		return "solo"
	}
}

// ParseRole accepts "solo", "host" or "peer".
func ParseRole(s string) (Role, error) {
	switch s {
	case "solo", "":
		return RoleSolo, nil
	case "host":
		return RoleHost, nil
	case "peer":
		return RolePeer, nil
	}
	return RoleSolo, fmt.Errorf("unknown role %q", s)
}

// Authoritative reports whether the role owns enemy state.
func (r Role) Authoritative() bool { return r != RolePeer }

// Message types
const (
	MsgPlayerState = "player_state"
	MsgBulletSpawn = "bullet_spawn"
	MsgMeleeHit    = "melee_hit"
	MsgEnemyBatch  = "enemy_batch"
	MsgKill        = "kill"
)

// Broadcast topics
const (
	TopicPlayerPosition = "player-position"
	TopicBulletSpawn    = "bullet-spawn"
	TopicEnemyBatch     = "enemy-batch"
	TopicKill           = "kill"
)

// TopicFor maps a message type to the topic it travels on.
func TopicFor(t string) string {
	switch t {
	case MsgPlayerState:
		return TopicPlayerPosition
	case MsgBulletSpawn, MsgMeleeHit:
		return TopicBulletSpawn
	case MsgEnemyBatch:
		return TopicEnemyBatch
	case MsgKill:
		return TopicKill
	}
	return ""
}

// Envelope wraps every relayed message. P holds the JSON-encoded payload.
type Envelope struct {
	T    string          `json:"t" msgpack:"t"`
	Room string          `json:"room" msgpack:"room"`
	From string          `json:"from" msgpack:"from"`
	P    json.RawMessage `json:"p" msgpack:"p"`
}

// Topic of the envelope.
func (e Envelope) Topic() string { return TopicFor(e.T) }

// =============================================================================
// PAYLOADS
// =============================================================================

// PlayerState is published by every participant on a fixed cadence.
type PlayerState struct {
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	HP       float64 `json:"hp"`
	MaxHP    float64 `json:"maxHp"`
	Weapon   string  `json:"weapon"`
	Aim      float64 `json:"aim"`
	Dead     bool    `json:"dead,omitempty"`
}

// BulletSpawn carries a bullet's initial state. SpawnedAt is wall-clock unix
// milliseconds so receivers can extrapolate.
type BulletSpawn struct {
	ID        string  `json:"id"`
	Owner     string  `json:"owner"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	Radius    float64 `json:"radius"`
	Life      float64 `json:"life"`
	Damage    float64 `json:"damage"`
	Color     string  `json:"color,omitempty"`
	SpawnedAt int64   `json:"spawnedAt"`
}

// MeleeHit reports a peer's melee swing so the host can apply it.
type MeleeHit struct {
	Attacker string   `json:"attacker"`
	EnemyIDs []string `json:"enemyIds"`
	Damage   float64  `json:"damage"`
	Stun     float64  `json:"stun"`
}

// EnemyState is one enemy inside a batch.
type EnemyState struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	HP    float64 `json:"hp"`
	MaxHP float64 `json:"maxHp"`
	Speed float64 `json:"speed"`
}

// EnemyBatch is the host's full enemy list. Seq increases per batch.
type EnemyBatch struct {
	Seq     uint64       `json:"seq"`
	Host    string       `json:"host"`
	Enemies []EnemyState `json:"enemies"`
}

// Kill attributes an enemy death to a participant.
type Kill struct {
	EnemyID string `json:"enemyId"`
	Killer  string `json:"killer"`
}
