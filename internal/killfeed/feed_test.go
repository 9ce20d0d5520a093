package killfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
)

func init() {
	logger.Silence()
}

func kill(killer string) game.KillEvent {
	return game.KillEvent{SessionID: "s1", Room: "ROOM42", EnemyID: "e1", Killer: killer, At: time.Now()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

// TestQueueOverflow verifies that the queue drops events when full instead
// of blocking the caller.
func TestQueueOverflow(t *testing.T) {
	feed := New(Config{BufferSize: 10})
	feed.AddSink(SinkFunc{Label: "noop", Fn: func(context.Context, game.KillEvent) error { return nil }}, 0)
	defer feed.Stop()
	// Not started: nothing drains the queue.

	for i := 0; i < 10; i++ {
		feed.Queue(kill("alice"))
	}

	done := make(chan bool)
	go func() {
		feed.Queue(kill("alice"))
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Queue blocked on a full buffer")
	}
	if st := feed.Stats(); st.Queued != 10 || st.Dropped != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestLeaderboardSink(t *testing.T) {
	boards := game.NewLeaderboards()
	feed := New(DefaultConfig())
	feed.AddSink(LeaderboardSink{Boards: boards}, 0)
	feed.Start()
	defer feed.Stop()

	feed.Queue(kill("alice"))
	feed.Queue(kill("bob"))
	feed.Queue(kill("alice"))
	solo := kill("carol")
	solo.Room = ""
	feed.Queue(solo)

	waitFor(t, func() bool { return feed.Stats().Delivered == 4 })

	top := boards.Room("ROOM42").GetTop(2)
	if len(top) != 2 || top[0].Username != "alice" || top[0].Kills != 2 {
		t.Errorf("Unexpected room leaderboard %+v", top)
	}
	if lb, ok := boards.Lookup(SoloRoom); !ok || lb.GetRank("carol") != 1 {
		t.Error("Solo kill should land on the solo board")
	}
}

func TestThrottledSinkBacksOffAndRetries(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var gaps []time.Duration
	last := time.Now()

	sink := SinkFunc{Label: "flaky", Fn: func(context.Context, game.KillEvent) error {
		mu.Lock()
		gaps = append(gaps, time.Since(last))
		last = time.Now()
		mu.Unlock()
		if calls.Add(1) < 3 {
			return ErrThrottled
		}
		return nil
	}}

	feed := New(Config{InitialBackoff: 20 * time.Millisecond, MaxBackoff: time.Second, MaxAttempts: 3})
	feed.AddSink(sink, 0)
	feed.Start()
	defer feed.Stop()

	feed.Queue(kill("alice"))
	waitFor(t, func() bool { return feed.Stats().Delivered == 1 })

	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	// Second retry waits twice the first backoff.
	if gaps[2] < 40*time.Millisecond {
		t.Errorf("Backoff did not grow: %v", gaps)
	}
}

func TestPermanentFailureDropsEvent(t *testing.T) {
	var calls atomic.Int32
	feed := New(Config{MaxAttempts: 5})
	feed.AddSink(SinkFunc{Label: "broken", Fn: func(context.Context, game.KillEvent) error {
		calls.Add(1)
		return context.DeadlineExceeded
	}}, 0)
	feed.Start()
	defer feed.Stop()

	feed.Queue(kill("alice"))
	waitFor(t, func() bool { return feed.Stats().Failed == 1 })
	if calls.Load() != 1 {
		t.Errorf("Non-throttle errors should not retry, got %d calls", calls.Load())
	}
}

func TestWebhookSink(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Content-Type"))
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	ctx := context.Background()
	if err := sink.Deliver(ctx, kill("alice")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Load() != "application/json" {
		t.Errorf("Unexpected content type %v", got.Load())
	}

	status.Store(http.StatusTooManyRequests)
	if err := sink.Deliver(ctx, kill("alice")); err == nil || !errors.Is(err, ErrThrottled) {
		t.Errorf("429 should be ErrThrottled, got %v", err)
	}

	status.Store(http.StatusInternalServerError)
	if err := sink.Deliver(ctx, kill("alice")); err == nil || errors.Is(err, ErrThrottled) {
		t.Errorf("500 should be a plain error, got %v", err)
	}
}

func TestFormatKill(t *testing.T) {
	ev := kill("alice")
	if got := FormatKill(ev); got != "🎯 alice eliminated e1 in room ROOM42" {
		t.Errorf("FormatKill = %q", got)
	}
	ev.Room = ""
	if got := FormatKill(ev); got != "🎯 alice eliminated e1" {
		t.Errorf("FormatKill = %q", got)
	}
}
