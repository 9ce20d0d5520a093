package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often one user may issue override commands.
type RateLimitConfig struct {
	MaxPerWindow     int           // commands allowed per window, also the burst
	WindowDuration   time.Duration // time for a spent budget to refill
	CooldownDuration time.Duration // minimum gap between two accepted commands
}

// DefaultRateLimitConfig for override commands
var DefaultRateLimitConfig = RateLimitConfig{
	MaxPerWindow:     30,
	WindowDuration:   time.Minute,
	CooldownDuration: 250 * time.Millisecond,
}

// idleAfter is how long a user's budget is kept after their last command.
const idleAfter = 5 * time.Minute

// RateLimiter keeps one token bucket per username plus a short cooldown.
type RateLimiter struct {
	cfg   RateLimitConfig
	every rate.Limit

	mu    sync.Mutex
	users map[string]*budget

	done     chan struct{}
	stopOnce sync.Once
}

type budget struct {
	tokens   *rate.Limiter
	accepted time.Time // last accepted command
}

// NewRateLimiter fills in missing config from DefaultRateLimitConfig and
// starts a sweeper for idle users. Call Stop to end it.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultRateLimitConfig.MaxPerWindow
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = DefaultRateLimitConfig.WindowDuration
	}
	rl := &RateLimiter{
		cfg:   cfg,
		every: rate.Every(cfg.WindowDuration / time.Duration(cfg.MaxPerWindow)),
		users: make(map[string]*budget),
		done:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether username may run a command now.
func (rl *RateLimiter) Allow(username string) bool {
	return rl.allowAt(username, time.Now())
}

func (rl *RateLimiter) allowAt(username string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.users[username]
	switch {
	case b == nil:
		b = &budget{tokens: rate.NewLimiter(rl.every, rl.cfg.MaxPerWindow)}
		rl.users[username] = b
	case now.Sub(b.accepted) < rl.cfg.CooldownDuration:
		return false
	}

	if !b.tokens.AllowN(now, 1) {
		return false
	}
	b.accepted = now
	return true
}

// Stop ends the sweeper.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// sweep forgets users idle longer than idleAfter and returns how many.
func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for name, b := range rl.users {
		if now.Sub(b.accepted) > idleAfter {
			delete(rl.users, name)
			n++
		}
	}
	return n
}
