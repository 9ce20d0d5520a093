package chat

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"arena-shooter/internal/game"
)

var (
	// ErrRejected marks a malformed or unknown command. Nothing is applied.
	ErrRejected = errors.New("command rejected")
	// ErrUnauthorized marks a command from a user the Authorizer refused.
	ErrUnauthorized = errors.New("command not authorized")
	// ErrRateLimited marks a command dropped by the per-user limiter.
	ErrRateLimited = errors.New("command rate limited")
	// ErrUnknownSession marks a command for a session that does not exist.
	ErrUnknownSession = errors.New("unknown session")
	// ErrInboxFull marks a command the session could not queue.
	ErrInboxFull = errors.New("session inbox full")
)

// ChatCommand is a parsed command line addressed to one session.
type ChatCommand struct {
	Command    string   // canonical or alias name, lowercased
	Args       []string // arguments after the command
	Username   string
	SessionID  string
	ReceivedAt time.Time
}

// SupportedCommands maps command names and aliases to override kinds.
var SupportedCommands = map[string]game.OverrideKind{
	"godmode": game.OverrideGodMode,
	"god":     game.OverrideGodMode,

	"infiniteammo": game.OverrideInfiniteAmmo,
	"ammo":         game.OverrideInfiniteAmmo,

	"speed": game.OverrideSpeed,
	"heal":  game.OverrideHeal,
	"nuke":  game.OverrideNuke,
	"spawn": game.OverrideSpawn,
	"tp":    game.OverrideTP,

	"freeze": game.OverrideFreeze,

	"teleport": game.OverrideTeleport,
	"blink":    game.OverrideTeleport,

	"size": game.OverrideSize,
}

// GetCommandKind returns the override kind for a command name.
func GetCommandKind(name string) (game.OverrideKind, bool) {
	k, ok := SupportedCommands[name]
	return k, ok
}

// ParseCommand splits a raw command line such as "!speed 2" or "/tp 3 -4".
func ParseCommand(text, username, sessionID string) (ChatCommand, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimLeft(text, "!/")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ChatCommand{}, fmt.Errorf("%w: empty command", ErrRejected)
	}
	return ChatCommand{
		Command:    strings.ToLower(fields[0]),
		Args:       fields[1:],
		Username:   username,
		SessionID:  sessionID,
		ReceivedAt: time.Now(),
	}, nil
}

// ToOverride validates arguments and builds the session command.
func ToOverride(cmd ChatCommand) (game.OverrideCommand, error) {
	kind, ok := GetCommandKind(cmd.Command)
	if !ok {
		return game.OverrideCommand{}, fmt.Errorf("%w: unknown command %q", ErrRejected, cmd.Command)
	}
	out := game.OverrideCommand{Kind: kind, Issuer: cmd.Username}

	switch kind {
	case game.OverrideSpeed, game.OverrideHeal:
		v, err := floatArg(cmd.Args, 0)
		if err != nil {
			return out, err
		}
		if v <= 0 {
			return out, fmt.Errorf("%w: %s needs a positive value", ErrRejected, kind)
		}
		out.Value = v
	case game.OverrideSpawn:
		if len(cmd.Args) == 0 {
			out.Count = 1
			break
		}
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n <= 0 {
			return out, fmt.Errorf("%w: spawn count %q", ErrRejected, cmd.Args[0])
		}
		out.Count = n
	case game.OverrideTP:
		x, err := floatArg(cmd.Args, 0)
		if err != nil {
			return out, err
		}
		y, err := floatArg(cmd.Args, 1)
		if err != nil {
			return out, err
		}
		out.X, out.Y = x, y
	case game.OverrideSize:
		if len(cmd.Args) == 0 {
			return out, fmt.Errorf("%w: size needs small or big", ErrRejected)
		}
		switch strings.ToLower(cmd.Args[0]) {
		case "big", "large":
			out.Big = true
		case "small", "tiny":
		default:
			return out, fmt.Errorf("%w: size %q", ErrRejected, cmd.Args[0])
		}
	}
	return out, nil
}

func floatArg(args []string, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrRejected, i+1)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: bad number %q", ErrRejected, args[i])
	}
	return v, nil
}
