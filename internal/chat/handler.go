package chat

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
)

// Target accepts override commands for one session.
type Target interface {
	SubmitCommand(cmd game.OverrideCommand) bool
}

// Resolver finds the session a command is addressed to.
type Resolver interface {
	CommandTarget(sessionID string) (Target, bool)
}

// Authorizer decides whether username may issue an override of kind.
type Authorizer interface {
	Authorize(username string, kind game.OverrideKind) bool
}

// AdminList authorizes a fixed set of usernames for every command.
type AdminList map[string]struct{}

// NewAdminList builds an AdminList from names.
func NewAdminList(names ...string) AdminList {
	al := make(AdminList, len(names))
	for _, n := range names {
		al[n] = struct{}{}
	}
	return al
}

// Authorize implements Authorizer.
func (a AdminList) Authorize(username string, _ game.OverrideKind) bool {
	_, ok := a[username]
	return ok
}

// Handler validates override commands and hands them to their session
type Handler struct {
	sessions    Resolver
	auth        Authorizer
	rateLimiter *RateLimiter
	log         *logrus.Entry
}

// NewHandler creates a new command handler
func NewHandler(sessions Resolver, auth Authorizer, limits RateLimitConfig) *Handler {
	return &Handler{
		sessions:    sessions,
		auth:        auth,
		rateLimiter: NewRateLimiter(limits),
		log:         logger.With("chat"),
	}
}

// ProcessCommand rate-limits, authorizes, parses and enqueues one command.
// Commands that fail any step leave the session untouched.
func (h *Handler) ProcessCommand(cmd ChatCommand) error {
	log := h.log.WithFields(logrus.Fields{"user": cmd.Username, "command": cmd.Command, "session": cmd.SessionID})

	if !h.rateLimiter.Allow(cmd.Username) {
		log.Debug("🚫 Rate limited")
		return ErrRateLimited
	}

	kind, ok := GetCommandKind(cmd.Command)
	if !ok {
		log.Debug("Unknown command")
		return fmt.Errorf("%w: unknown command %q", ErrRejected, cmd.Command)
	}
	if h.auth == nil || !h.auth.Authorize(cmd.Username, kind) {
		log.Warn("⚠️ Unauthorized override attempt")
		return ErrUnauthorized
	}

	override, err := ToOverride(cmd)
	if err != nil {
		log.WithError(err).Debug("Malformed command")
		return err
	}

	target, ok := h.sessions.CommandTarget(cmd.SessionID)
	if !ok {
		return ErrUnknownSession
	}
	if !target.SubmitCommand(override) {
		return ErrInboxFull
	}

	log.Info("🛠️ Override queued")
	return nil
}

// Close stops background work.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

// IsClientError reports whether err was caused by the command itself rather
// than server state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRateLimited)
}
