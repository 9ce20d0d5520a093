package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures a token bucket per key.
type RateLimitConfig struct {
	RequestsPerSecond float64       // sustained rate per key
	Burst             int           // bucket size
	CleanupInterval   time.Duration // idle buckets are dropped after twice this
}

// DefaultRateLimitConfig budgets ordinary API calls per client IP.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// DefaultInputRateLimitConfig budgets input posts per session: one per
// frame at 60 Hz with headroom for jitter.
var DefaultInputRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 90,
	Burst:             30,
	CleanupInterval:   time.Minute,
}

// KeyFunc picks the bucket a request is charged to. An empty key is never
// limited.
type KeyFunc func(r *http.Request) string

// SessionKey charges requests to the {id} route parameter. It only works in
// middleware attached after routing (chi.With or a route group).
func SessionKey(r *http.Request) string {
	return chi.URLParam(r, "id")
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	cfg  RateLimitConfig
	key  KeyFunc
	name string // metrics label for rejections

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter limits by client IP.
func NewIPRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg, "rate_limit", GetClientIP)
}

// NewSessionRateLimiter limits by session id.
func NewSessionRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg, "input_rate_limit", SessionKey)
}

// NewRateLimiter builds a limiter charging requests to key(r) and starts
// its cleanup goroutine. Call Stop to end it.
func NewRateLimiter(cfg RateLimitConfig, name string, key KeyFunc) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &RateLimiter{
		cfg:      cfg,
		key:      key,
		name:     name,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// Allow charges one request to key.
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	ok = b.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if ok {
		rl.allowed.Add(1)
	} else {
		rl.rejected.Add(1)
	}
	return ok
}

// Middleware rejects over-budget requests with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.key(r)) {
			RecordConnectionRejected(rl.name)
			w.Header().Set("Retry-After", "1")
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns limiter counters.
func (rl *RateLimiter) GetStats() map[string]uint64 {
	rl.mu.Lock()
	tracked := len(rl.buckets)
	rl.mu.Unlock()
	return map[string]uint64{
		"allowed":  rl.allowed.Load(),
		"rejected": rl.rejected.Load(),
		"tracked":  uint64(tracked),
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops buckets idle for two intervals.
func (rl *RateLimiter) cleanup() int {
	cutoff := rl.now().Add(-2 * rl.cfg.CleanupInterval)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
			n++
		}
	}
	return n
}

// GetClientIP extracts the client IP from an HTTP request
// Handles X-Forwarded-For header for proxied requests
func GetClientIP(r *http.Request) string {
	// CAUTION: forwarded headers can be spoofed if not behind a trusted proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter caps concurrent relay connections per IP and in total.
type WebSocketRateLimiter struct {
	maxPerIP int
	maxTotal int // zero means unlimited

	mu    sync.Mutex
	perIP map[string]int
	total int

	rejected atomic.Uint64
}

// NewWebSocketRateLimiter creates a relay connection limiter.
func NewWebSocketRateLimiter(maxPerIP, maxTotal int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: maxPerIP, maxTotal: maxTotal, perIP: make(map[string]int)}
}

// Acquire reserves a connection slot for ip. The returned reason is empty on
// success and one of "ws_total_limit" or "ws_ip_limit" otherwise.
func (wrl *WebSocketRateLimiter) Acquire(ip string) (reason string) {
	wrl.mu.Lock()
	defer wrl.mu.Unlock()

	switch {
	case wrl.maxTotal > 0 && wrl.total >= wrl.maxTotal:
		reason = "ws_total_limit"
	case wrl.perIP[ip] >= wrl.maxPerIP:
		reason = "ws_ip_limit"
	default:
		wrl.perIP[ip]++
		wrl.total++
		return ""
	}
	wrl.rejected.Add(1)
	return reason
}

// Release returns a slot reserved by Acquire.
func (wrl *WebSocketRateLimiter) Release(ip string) {
	wrl.mu.Lock()
	defer wrl.mu.Unlock()
	n, ok := wrl.perIP[ip]
	if !ok {
		return
	}
	if n <= 1 {
		delete(wrl.perIP, ip)
	} else {
		wrl.perIP[ip] = n - 1
	}
	wrl.total--
}

// Active returns the number of reserved slots.
func (wrl *WebSocketRateLimiter) Active() int {
	wrl.mu.Lock()
	defer wrl.mu.Unlock()
	return wrl.total
}

// GetConnectionCount returns the slots held by ip.
func (wrl *WebSocketRateLimiter) GetConnectionCount(ip string) int {
	wrl.mu.Lock()
	defer wrl.mu.Unlock()
	return wrl.perIP[ip]
}

// OriginPolicy decides which browser origins may open relay connections.
// A "*" entry allows any origin; requests without an Origin header (native
// clients) are always allowed.
type OriginPolicy struct {
	allowed []string
}

// NewOriginPolicy builds a policy from a comma-separated list.
func NewOriginPolicy(list string) *OriginPolicy {
	p := &OriginPolicy{}
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			p.allowed = append(p.allowed, strings.TrimSuffix(o, "/"))
		}
	}
	return p
}

// Origins returns the configured list, for CORS.
func (p *OriginPolicy) Origins() []string {
	if len(p.allowed) == 0 {
		return []string{"*"}
	}
	return p.allowed
}

// Allowed checks if an origin is in the allowed list
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	// Allow localhost with any port
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range p.allowed {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}
