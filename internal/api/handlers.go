package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"arena-shooter/internal/chat"
	"arena-shooter/internal/game"
	"arena-shooter/internal/lobby"
	"arena-shooter/internal/protocol"
	"arena-shooter/internal/render"
)

const maxBodyBytes = 16 << 10

// Handler methods for routerHandlers

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Role     string `json:"role"`
		Room     string `json:"room"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	role, err := protocol.ParseRole(strings.ToLower(req.Role))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Create(lobby.CreateRequest{Username: req.Username, Role: role, Room: req.Room})
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}

	info, err := h.sessions.Describe(s.ID())
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}
	writeJSONStatus(w, http.StatusCreated, info)
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.sessions.List())
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}
	info, err := h.sessions.Describe(id)
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}

	resp := map[string]any{
		"session":  info,
		"snapshot": s.Snapshot(),
	}
	if st := s.SyncStats(); st != nil {
		resp["sync"] = map[string]uint64{
			"received":   st.Received.Load(),
			"published":  st.Published.Load(),
			"dropped":    st.Dropped.Load(),
			"reconciled": st.Reconciled.Load(),
			"duplicates": st.Duplicates.Load(),
		}
	}
	applied, rejected := s.CommandStats()
	resp["commands"] = map[string]uint64{"applied": applied, "rejected": rejected}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(chi.URLParam(r, "id")); err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleInput(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}

	var in game.Input
	if !decodeBody(w, r, &in) {
		return
	}
	if !s.SubmitInput(in) {
		writeError(w, "session is not accepting input", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *routerHandlers) handleRevive(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}
	if !s.Revive() {
		writeError(w, "session is not in game over", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	if h.commands == nil {
		writeError(w, "command channel disabled", http.StatusServiceUnavailable)
		return
	}
	admin := adminFrom(r.Context())
	if admin == nil {
		writeError(w, "admin authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Command string `json:"command"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	cmd, err := chat.ParseCommand(req.Command, admin.Username, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("async") == "true" && h.queue != nil {
		if !h.queue.Enqueue(cmd) {
			writeError(w, "command queue full", http.StatusServiceUnavailable)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}

	if err := h.commands.ProcessCommand(cmd); err != nil {
		writeError(w, err.Error(), commandStatus(err))
		return
	}
	writeJSON(w, map[string]any{"success": true, "command": cmd.Command})
}

func (h *routerHandlers) handleMinimap(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), lobbyStatus(err))
		return
	}
	size := queryInt(r, "size", render.DefaultSize)

	var buf bytes.Buffer
	if err := render.WritePNG(&buf, s.Snapshot(), size); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// weaponJSON is the public catalog entry.
type weaponJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Melee       bool    `json:"melee"`
	FireRate    float64 `json:"fireRate"`
	Damage      float64 `json:"damage"`
	Ammo        int     `json:"ammo"`
	MaxAmmo     int     `json:"maxAmmo"`
	Pellets     int     `json:"pellets,omitempty"`
	UnlockScore int     `json:"unlockScore"`
	Color       string  `json:"color"`
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	out := make([]weaponJSON, 0, len(game.Weapons))
	for _, wc := range game.Weapons {
		out = append(out, weaponJSON{
			ID:          wc.ID,
			Name:        wc.Name,
			Melee:       wc.Class == game.ClassMelee,
			FireRate:    wc.FireRate,
			Damage:      wc.Damage,
			Ammo:        wc.Ammo,
			MaxAmmo:     wc.MaxAmmo,
			Pellets:     wc.Pellets,
			UnlockScore: wc.UnlockScore,
			Color:       wc.Color,
		})
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleGetRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.sessions.Rooms())
}

func (h *routerHandlers) handleRoomLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.leaderboards == nil {
		writeError(w, "leaderboards disabled", http.StatusServiceUnavailable)
		return
	}
	code := strings.ToUpper(chi.URLParam(r, "code"))
	lb, ok := h.leaderboards.Lookup(code)
	if !ok {
		writeError(w, "room has no kills yet", http.StatusNotFound)
		return
	}

	if user := r.URL.Query().Get("around"); user != "" {
		writeJSON(w, lb.GetAround(user, 2, 2))
		return
	}
	writeJSON(w, lb.GetTop(clamp(queryInt(r, "limit", 10), 1, 100)))
}

func (h *routerHandlers) handleTopScores(w http.ResponseWriter, r *http.Request) {
	if h.scores == nil {
		writeError(w, "score store disabled", http.StatusServiceUnavailable)
		return
	}
	top, err := h.scores.Top(r.Context(), clamp(queryInt(r, "limit", 10), 1, 100))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if top == nil {
		top = []scoreEntry{}
	}
	writeJSON(w, top)
}

func (h *routerHandlers) handleUserScore(w http.ResponseWriter, r *http.Request) {
	if h.scores == nil {
		writeError(w, "score store disabled", http.StatusServiceUnavailable)
		return
	}
	e, err := h.scores.Total(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, e)
}

// Error mapping

func lobbyStatus(err error) int {
	switch {
	case errors.Is(err, lobby.ErrSessionNotFound), errors.Is(err, lobby.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrRoomHasHost), errors.Is(err, lobby.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrBadUsername):
		return http.StatusBadRequest
	case errors.Is(err, lobby.ErrTooManySessions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chat.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrInboxFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions (package-level for reuse)

func withAdmin(ctx context.Context, s *AdminSession) context.Context {
	return context.WithValue(ctx, adminKey{}, s)
}

func adminFrom(ctx context.Context) *AdminSession {
	s, _ := ctx.Value(adminKey{}).(*AdminSession)
	return s
}

// decodeBody reads a bounded JSON body. It writes a 400 and returns false on
// failure. An empty body decodes as the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
