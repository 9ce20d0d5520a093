package api

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

// Metrics with bounded cardinality (no per-session or per-user labels)
var (
	// Session metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_frame_duration_seconds",
		Help:    "Time spent in one session frame",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
	})

	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Live sessions by lifecycle state",
	}, []string{"state"}) // Bounded: "running", "game_over", "ended"

	enemiesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enemies_active",
		Help: "Enemies alive across all sessions",
	})

	killsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kills_total",
		Help: "Enemy kills credited by an authority",
	})

	// Relay metrics
	relayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Envelopes published into rooms",
	}, []string{"type"}) // Bounded: protocol message types plus "other"

	relayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_total",
		Help: "Envelopes dropped because a member buffer was full",
	})

	reconcileOps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_operations_total",
		Help: "Enemy states applied by peers",
	})

	// Event log metrics
	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "input_rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active relay connections",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be localhost in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig(port int) ObservabilityConfig {
	if port <= 0 {
		port = 6060
	}
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:" + strconv.Itoa(port), // Localhost only - NEVER expose externally
	}
}

// DebugHandler serves pprof under /debug, Prometheus metrics and a health
// check. A non-empty BasicAuthUser guards every route.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.BasicAuthUser != "" {
		r.Use(middleware.BasicAuth("debug", map[string]string{cfg.BasicAuthUser: cfg.BasicAuthPass}))
	}

	r.Mount("/debug", middleware.Profiler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	return r
}

// StartDebugServer starts the internal observability server in the
// background. The listener is forced onto loopback unless
// ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg ObservabilityConfig) error {
	log := logger.With("debug")
	if !cfg.Enabled {
		log.Info("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.WithField("addr", cfg.ListenAddr).Warn("⚠️ Debug server forced to localhost")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: DebugHandler(cfg), ReadHeaderTimeout: 5 * time.Second}

	log.WithField("addr", ln.Addr().String()).Info("📊 Debug server (pprof, /metrics, /health)")
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("⚠️ Debug server stopped")
		}
	}()
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// metricsMiddleware records latency per chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordTick records frame timing for metrics
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordKill counts one credited kill
func RecordKill() {
	killsTotal.Inc()
}

// RecordRelayMessage counts one envelope published into a room. It is
// installed as the hub's message observer.
func RecordRelayMessage(env protocol.Envelope) {
	switch env.T {
	case protocol.MsgPlayerState, protocol.MsgBulletSpawn, protocol.MsgMeleeHit,
		protocol.MsgEnemyBatch, protocol.MsgKill:
		relayMessages.WithLabelValues(env.T).Inc()
	default:
		relayMessages.WithLabelValues("other").Inc()
	}
}

// RecordConnectionRejected counts a refused request or relay handshake.
// reason must be one of the connectionRejected label values.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates relay connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// counterTracker turns monotonically growing totals read from components
// into Prometheus counter increments.
type counterTracker struct {
	last map[prometheus.Counter]uint64
}

func newCounterTracker() *counterTracker {
	return &counterTracker{last: make(map[prometheus.Counter]uint64)}
}

func (t *counterTracker) update(c prometheus.Counter, total uint64) {
	prev := t.last[c]
	if total > prev {
		c.Add(float64(total - prev))
	}
	t.last[c] = total
}
