package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arena-shooter/internal/chat"
	"arena-shooter/internal/game"
	"arena-shooter/internal/lobby"
	"arena-shooter/internal/persistence/scoredb"
	"arena-shooter/internal/transport"
)

// SessionStore is the part of the lobby the API uses. It enables tests to
// swap in a smaller fake when needed.
type SessionStore interface {
	Create(req lobby.CreateRequest) (*game.Session, error)
	Get(id string) (*game.Session, error)
	Describe(id string) (lobby.Info, error)
	List() []lobby.Info
	End(id string) error
	Rooms() []transport.RoomInfo
	Hub() *transport.Hub
}

type scoreEntry = scoredb.Entry

// ScoreReader serves cumulative scores.
type ScoreReader interface {
	Total(ctx context.Context, username string) (scoredb.Entry, error)
	Top(ctx context.Context, n int) ([]scoredb.Entry, error)
}

// CommandProcessor applies override commands synchronously.
type CommandProcessor interface {
	ProcessCommand(cmd chat.ChatCommand) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Sessions: lobby.NewManager(appCfg, lobby.Deps{}),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Sessions is the lobby (required)
	Sessions SessionStore

	// Commands applies override commands. Nil disables the command route.
	Commands CommandProcessor

	// CommandQueue serves ?async=true command posts when set.
	CommandQueue *chat.CommandQueue

	// Admin authenticates the command route. Nil disables admin routes.
	Admin *AdminSessions

	// Scores backs the score routes. Nil disables them.
	Scores ScoreReader

	// Leaderboards backs the room leaderboard route.
	Leaderboards *game.Leaderboards

	// RateLimiter is an optional pre-configured per-IP limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *RateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// InputRateLimiter budgets input posts per session. Nil uses
	// DefaultInputRateLimitConfig.
	InputRateLimiter *RateLimiter

	// Origins restricts CORS and relay origins. Nil allows any origin.
	Origins *OriginPolicy

	// WSLimiter caps relay connections. Nil uses the package defaults.
	WSLimiter *WebSocketRateLimiter

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the dependencies shared by the route handlers.
type routerHandlers struct {
	sessions     SessionStore
	commands     CommandProcessor
	queue        *chat.CommandQueue
	scores       ScoreReader
	leaderboards *game.Leaderboards
	relay        *relayHandler
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiters' cleanup
// goroutines - no listeners are opened and no sessions are started, so it is
// safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	origins := cfg.Origins
	if origins == nil {
		origins = NewOriginPolicy("*")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins.Origins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	ipLimiter := cfg.RateLimiter
	if ipLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		ipLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	inputLimiter := cfg.InputRateLimiter
	if inputLimiter == nil {
		inputLimiter = NewSessionRateLimiter(DefaultInputRateLimitConfig)
	}
	wsLimiter := cfg.WSLimiter
	if wsLimiter == nil {
		wsLimiter = NewWebSocketRateLimiter(MaxWSConnectionsPerIP, MaxWSConnectionsTotal)
	}

	h := &routerHandlers{
		sessions:     cfg.Sessions,
		commands:     cfg.Commands,
		queue:        cfg.CommandQueue,
		scores:       cfg.Scores,
		leaderboards: cfg.Leaderboards,
		relay:        newRelayHandler(cfg.Sessions.Hub(), origins, wsLimiter),
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions/{id}", func(r chi.Router) {
			// Input arrives at frame cadence, so it is budgeted per
			// session instead of sharing the per-IP budget.
			r.With(inputLimiter.Middleware).Post("/input", h.handleInput)

			r.Group(func(r chi.Router) {
				r.Use(ipLimiter.Middleware)
				r.Get("/", h.handleGetSession)
				r.Delete("/", h.handleEndSession)
				r.Post("/revive", h.handleRevive)
				r.Get("/minimap.png", h.handleMinimap)
				if cfg.Admin != nil {
					r.With(cfg.Admin.AdminAuthMiddleware).Post("/command", h.handleCommand)
				}
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(ipLimiter.Middleware)

			// Sessions
			r.Post("/sessions", h.handleCreateSession)
			r.Get("/sessions", h.handleListSessions)

			// Catalog, rooms and scores
			r.Get("/weapons", h.handleGetWeapons)
			r.Get("/rooms", h.handleGetRooms)
			r.Get("/rooms/{code}/leaderboard", h.handleRoomLeaderboard)
			r.Get("/scores/top", h.handleTopScores)
			r.Get("/scores/{username}", h.handleUserScore)

			// Admin
			if cfg.Admin != nil {
				r.Post("/admin/login", cfg.Admin.HandleLogin)
				r.Post("/admin/logout", cfg.Admin.HandleLogout)
				r.Get("/admin/status", cfg.Admin.HandleAuthStatus)
			}
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(ipLimiter.Middleware)

		// Relay
		r.Get("/ws/rooms/{code}", h.relay.ServeHTTP)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]string{"status": "ok"})
		})
	})

	return r
}
