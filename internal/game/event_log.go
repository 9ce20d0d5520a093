package game

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"

	"arena-shooter/internal/game/spatial"
)

const (
	EventBufferSize       = 4096                   // queued events before drops
	MaxEventsPerSession   = 100                    // Per-session rate limit per second
	BatchFlushSize        = 256                    // Events per batch write
	BatchFlushInterval    = 250 * time.Millisecond // How often to flush
	SessionLimiterCleanup = 5 * time.Minute        // Cleanup interval for session limiters
)

// EventLog is a bounded, rate-limited event sink shared by all sessions.
// Events are written as zstd-compressed newline-delimited JSON.
type EventLog struct {
	queue *spatial.LockFreeQueue[Event]
	qmu   sync.RWMutex // producers share it; Stop takes it exclusively before the final drain

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*sessionLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file *os.File
	buf  *bufio.Writer
	enc  *zstd.Encoder

	sequence     atomic.Uint64
	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
	writtenCount atomic.Uint64
}

type sessionLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewEventLog creates an event log capped at perSec events per second overall.
func NewEventLog(perSec float64) *EventLog {
	if perSec <= 0 {
		perSec = 1000
	}
	return &EventLog{
		queue:         spatial.NewLockFreeQueue[Event](EventBufferSize),
		globalLimiter: rate.NewLimiter(rate.Limit(perSec), int(perSec/10)+1),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and begins the async writer. An empty path
// keeps events in memory counters only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		el.file = file
		el.buf = bufio.NewWriterSize(file, 64*1024)
		enc, err := zstd.NewWriter(el.buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return err
		}
		el.enc = enc
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.qmu.Lock()
		el.running.Store(false)
		el.qmu.Unlock()

		close(el.stopChan)
		el.writerWg.Wait()

		if el.enc != nil {
			el.enc.Close()
			el.buf.Flush()
			el.file.Close()
		}
	})
}

// Emit queues an event. Returns false if rate limited or the buffer is full.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.SessionID != "" && !el.sessionLimiter(event.SessionID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	event.Sequence = el.sequence.Add(1)

	el.qmu.RLock()
	ok := el.running.Load() && el.queue.TryPush(event)
	el.qmu.RUnlock()
	if !ok {
		el.droppedCount.Add(1)
		return false
	}
	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, frame uint64, sessionID string, payload any) bool {
	if el == nil {
		return false
	}
	return el.Emit(NewEvent(eventType, frame, sessionID, payload))
}

func (el *EventLog) sessionLimiter(id string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.sessionLimiters.Load(id); ok {
		e := v.(*sessionLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	entry := &sessionLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerSession, MaxEventsPerSession/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.sessionLimiters.LoadOrStore(id, entry)
	return actual.(*sessionLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for el.flush(batch) > 0 {
			}
			return
		case <-ticker.C:
			for el.flush(batch) == len(batch) {
			}
		}
	}
}

// flush writes up to one batch and returns how many events it took.
func (el *EventLog) flush(batch []Event) int {
	n := el.queue.DrainTo(batch)
	if n == 0 || el.enc == nil {
		return n
	}
	for _, event := range batch[:n] {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.enc.Write(data)
		el.enc.Write([]byte("\n"))
	}
	el.writtenCount.Add(uint64(n))
	return n
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SessionLimiterCleanup).UnixNano()
			el.sessionLimiters.Range(func(key, value any) bool {
				if value.(*sessionLimiterEntry).lastUsed.Load() < cutoff {
					el.sessionLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// GetStats returns counters for monitoring.
func (el *EventLog) GetStats() map[string]any {
	return map[string]any{
		"total":   el.totalCount.Load(),
		"written": el.writtenCount.Load(),
		"dropped": el.droppedCount.Load(),
		"pending": el.queue.Len(),
		"running": el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return el.droppedCount.Load()
}

// GetTotalCount returns the total number of accepted events
func (el *EventLog) GetTotalCount() uint64 {
	return el.totalCount.Load()
}
