// Package killfeed fans kill attributions out to slow or unreliable
// consumers without ever blocking the session loop.
package killfeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
)

// ErrThrottled is wrapped by sinks whose backend asked them to slow down.
// The dispatcher backs off and retries the event.
var ErrThrottled = errors.New("sink throttled")

// Sink consumes kill events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev game.KillEvent) error
}

// Config tunes the per-sink dispatchers.
type Config struct {
	BufferSize     int           // events queued per sink before dropping (default 100)
	InitialBackoff time.Duration // first wait after a throttled delivery (default 2s)
	MaxBackoff     time.Duration // backoff ceiling (default 60s)
	MaxAttempts    int           // deliveries tried per event (default 3)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:     100,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		MaxAttempts:    3,
	}
}

// Stats counts feed activity across all sinks.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

// Feed owns one queue and dispatcher goroutine per sink, so a throttled
// webhook never delays leaderboard updates.
type Feed struct {
	cfg     Config
	workers []*worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	log     *logrus.Entry

	queued    atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

type worker struct {
	sink    Sink
	queue   chan game.KillEvent
	limiter *rate.Limiter // nil means unlimited

	backoff time.Duration
}

// New creates a feed with no sinks.
func New(cfg Config) *Feed {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.InitialBackoff)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{cfg: cfg, ctx: ctx, cancel: cancel, log: logger.With("killfeed")}
}

// AddSink registers a sink. minInterval spaces deliveries to it; zero means
// as fast as events arrive. Must be called before Start.
func (f *Feed) AddSink(sink Sink, minInterval time.Duration) {
	w := &worker{sink: sink, queue: make(chan game.KillEvent, f.cfg.BufferSize)}
	if minInterval > 0 {
		w.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	f.workers = append(f.workers, w)
}

// Start launches the dispatchers.
func (f *Feed) Start() {
	if f.started.Swap(true) {
		return
	}
	for _, w := range f.workers {
		f.wg.Add(1)
		go f.dispatch(w)
	}
	f.log.WithField("sinks", len(f.workers)).Info("🤖 Kill feed dispatcher started")
}

// Stop cancels in-flight deliveries and waits for the dispatchers.
func (f *Feed) Stop() {
	f.cancel()
	f.wg.Wait()
	f.log.Info("🤖 Kill feed dispatcher stopped")
}

// Queue hands ev to every sink. It never blocks: a sink whose queue is
// full drops the event.
func (f *Feed) Queue(ev game.KillEvent) {
	for _, w := range f.workers {
		select {
		case w.queue <- ev:
			f.queued.Add(1)
		default:
			if f.dropped.Add(1)%100 == 1 {
				f.log.WithField("sink", w.sink.Name()).Warn("⚠️ Kill feed full, dropping events")
			}
		}
	}
}

// Stats returns counters across all sinks.
func (f *Feed) Stats() Stats {
	return Stats{
		Queued:    f.queued.Load(),
		Dropped:   f.dropped.Load(),
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
	}
}

func (f *Feed) dispatch(w *worker) {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		case ev := <-w.queue:
			if w.limiter != nil {
				if err := w.limiter.Wait(f.ctx); err != nil {
					return
				}
			}
			f.deliver(w, ev)
		}
	}
}

// deliver tries ev up to MaxAttempts times, backing off exponentially while
// the sink reports ErrThrottled. Other errors are logged and the event dropped.
func (f *Feed) deliver(w *worker, ev game.KillEvent) {
	log := f.log.WithFields(logrus.Fields{"sink": w.sink.Name(), "killer": ev.Killer, "enemy": ev.EnemyID})

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		err := w.sink.Deliver(f.ctx, ev)
		if err == nil {
			f.delivered.Add(1)
			if w.backoff > 0 {
				w.backoff = 0
				log.Info("✅ Sink recovered, backoff reset")
			}
			return
		}
		if !errors.Is(err, ErrThrottled) {
			f.failed.Add(1)
			log.WithError(err).Warn("⚠️ Failed to deliver kill")
			return
		}

		if w.backoff == 0 {
			w.backoff = f.cfg.InitialBackoff
		} else {
			w.backoff = min(w.backoff*2, f.cfg.MaxBackoff)
		}
		log.WithError(err).WithField("backoff", w.backoff).Warn("⚠️ Sink throttled, backing off")

		select {
		case <-time.After(w.backoff):
		case <-f.ctx.Done():
			return
		}
	}
	f.failed.Add(1)
}
