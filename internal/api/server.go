package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/game"
	"arena-shooter/internal/lobby"
	"arena-shooter/internal/logger"
)

// ServerConfig wires a Server.
type ServerConfig struct {
	Router  RouterConfig
	Lobby   *lobby.Manager // for metrics; may be nil
	Events  *game.EventLog // for metrics; may be nil
	Refresh time.Duration  // metrics refresh period (default 1s)
}

// Server is the HTTP API server with the websocket relay.
type Server struct {
	cfg         ServerConfig
	router      *chi.Mux
	rateLimiter *RateLimiter
	inputLimit  *RateLimiter
	httpServer  *http.Server
	stop        chan struct{}
	log         *logrus.Entry
}

// NewServer creates the API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// For testing HTTP endpoints, use Router() with httptest.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	rl := cfg.Router.RateLimiter
	if rl == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.Router.RateLimitConfig != nil {
			rlCfg = *cfg.Router.RateLimitConfig
		}
		rl = NewIPRateLimiter(rlCfg)
		cfg.Router.RateLimiter = rl
	}
	il := cfg.Router.InputRateLimiter
	if il == nil {
		il = NewSessionRateLimiter(DefaultInputRateLimitConfig)
		cfg.Router.InputRateLimiter = il
	}

	s := &Server{
		cfg:         cfg,
		rateLimiter: rl,
		inputLimit:  il,
		stop:        make(chan struct{}),
		log:         logger.With("api"),
	}
	s.router = NewRouter(cfg.Router)
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves HTTP on addr and starts the metrics loop. It blocks until the
// server stops and returns nil after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.metricsLoop()

	s.log.WithField("addr", addr).Info("🌐 API server starting")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	s.rateLimiter.Stop()
	s.inputLimit.Stop()
	if s.cfg.Router.Admin != nil {
		s.cfg.Router.Admin.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// metricsLoop samples component counters into Prometheus
func (s *Server) metricsLoop() {
	ticker := time.NewTicker(s.cfg.Refresh)
	defer ticker.Stop()
	tracker := newCounterTracker()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample(tracker)
		}
	}
}

func (s *Server) sample(tracker *counterTracker) {
	if m := s.cfg.Lobby; m != nil {
		counts := map[string]int{}
		enemies := 0
		var reconciled uint64
		for _, info := range m.List() {
			counts[info.State]++
			enemies += info.Enemies
			if sess, err := m.Get(info.ID); err == nil {
				if st := sess.SyncStats(); st != nil {
					reconciled += st.Reconciled.Load()
				}
			}
		}
		for _, state := range []game.SessionState{game.StateRunning, game.StateGameOver, game.StateEnded} {
			sessionsActive.WithLabelValues(state.String()).Set(float64(counts[state.String()]))
		}
		enemiesActive.Set(float64(enemies))
		// Sessions come and go, so this total can shrink; the tracker only
		// counts growth.
		tracker.update(reconcileOps, reconciled)

		_, dropped := m.Hub().Stats()
		tracker.update(relayDropped, dropped)
	}
	if el := s.cfg.Events; el != nil {
		tracker.update(eventLogTotal, el.GetTotalCount())
		tracker.update(eventLogDropped, el.GetDroppedCount())
	}
}
