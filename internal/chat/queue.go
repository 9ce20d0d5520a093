package chat

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/logger"
)

// slowCommand is the queue wait above which a warning is logged.
const slowCommand = 100 * time.Millisecond

// QueueConfig sizes a CommandQueue.
type QueueConfig struct {
	BufferSize int // total buffered commands across all shards (default 256)
	Workers    int // shard count, one goroutine each (default 4)
}

// DefaultQueueConfig returns the production sizing.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{BufferSize: 256, Workers: 4}
}

// QueueStats is a point-in-time view of a CommandQueue.
type QueueStats struct {
	Enqueued       uint64  `json:"enqueued"`
	Processed      uint64  `json:"processed"`
	Rejected       uint64  `json:"rejected"`
	Dropped        uint64  `json:"dropped"`
	Pending        uint64  `json:"pending"`
	BufferSize     uint64  `json:"buffer_size"`
	AvgWaitTimeMs  float64 `json:"avg_wait_time_ms"`
	BufferUsagePct float64 `json:"buffer_usage_pct"`
}

// CommandQueue applies commands off the request path. Commands are sharded
// by session id, so all commands for one session run on the same worker in
// arrival order.
type CommandQueue struct {
	handler  *Handler
	shards   []chan ChatCommand
	onResult func(ChatCommand, error)
	log      *logrus.Entry

	mu      sync.RWMutex // guards running against Enqueue during Stop
	running bool
	wg      sync.WaitGroup

	enqueued  atomic.Uint64
	processed atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
	avgWaitNs atomic.Int64 // exponential moving average
}

// NewCommandQueue builds a queue over handler. onResult, when set, is called
// from a worker after each command.
func NewCommandQueue(handler *Handler, cfg QueueConfig, onResult func(ChatCommand, error)) *CommandQueue {
	def := DefaultQueueConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	perShard := max(1, cfg.BufferSize/cfg.Workers)

	q := &CommandQueue{
		handler:  handler,
		shards:   make([]chan ChatCommand, cfg.Workers),
		onResult: onResult,
		log:      logger.With("command-queue"),
	}
	for i := range q.shards {
		q.shards[i] = make(chan ChatCommand, perShard)
	}
	return q
}

// Start launches one worker per shard.
func (q *CommandQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	for _, ch := range q.shards {
		q.wg.Add(1)
		go q.worker(ch)
	}
	q.log.WithFields(logrus.Fields{"workers": len(q.shards), "buffer": q.capacity()}).Info("🚀 Command queue started")
}

// Stop refuses new commands, lets workers finish what is buffered and waits
// for them. A stopped queue cannot be restarted.
func (q *CommandQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	for _, ch := range q.shards {
		close(ch)
	}
	q.mu.Unlock()

	q.wg.Wait()
	st := q.Stats()
	q.log.WithFields(logrus.Fields{
		"enqueued":  st.Enqueued,
		"processed": st.Processed,
		"rejected":  st.Rejected,
		"dropped":   st.Dropped,
	}).Info("📊 Command queue stopped")
}

// Enqueue hands cmd to its session's shard without blocking. It returns
// false when the queue is stopped or the shard is full.
func (q *CommandQueue) Enqueue(cmd ChatCommand) bool {
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		q.dropped.Add(1)
		return false
	}

	select {
	case q.shards[q.shardFor(cmd.SessionID)] <- cmd:
		q.enqueued.Add(1)
		return true
	default:
		if n := q.dropped.Add(1); n%100 == 1 {
			q.log.WithFields(logrus.Fields{"session": cmd.SessionID, "dropped": n}).Warn("⚠️ Command queue full")
		}
		return false
	}
}

func (q *CommandQueue) shardFor(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *CommandQueue) worker(ch <-chan ChatCommand) {
	defer q.wg.Done()

	for cmd := range ch {
		wait := time.Since(cmd.ReceivedAt)
		q.observeWait(wait)
		if wait > slowCommand {
			q.log.WithFields(logrus.Fields{"session": cmd.SessionID, "wait_ms": wait.Milliseconds()}).Warn("⚠️ Command waited in queue")
		}

		err := q.handler.ProcessCommand(cmd)
		q.processed.Add(1)
		if err != nil {
			q.rejected.Add(1)
		}
		if q.onResult != nil {
			q.onResult(cmd, err)
		}
	}
}

func (q *CommandQueue) observeWait(d time.Duration) {
	for {
		old := q.avgWaitNs.Load()
		next := old + (d.Nanoseconds()-old)/10
		if q.avgWaitNs.CompareAndSwap(old, next) {
			return
		}
	}
}

func (q *CommandQueue) capacity() int {
	n := 0
	for _, ch := range q.shards {
		n += cap(ch)
	}
	return n
}

// Stats returns current counters.
func (q *CommandQueue) Stats() QueueStats {
	pending := 0
	for _, ch := range q.shards {
		pending += len(ch)
	}
	capacity := q.capacity()
	return QueueStats{
		Enqueued:       q.enqueued.Load(),
		Processed:      q.processed.Load(),
		Rejected:       q.rejected.Load(),
		Dropped:        q.dropped.Load(),
		Pending:        uint64(pending),
		BufferSize:     uint64(capacity),
		AvgWaitTimeMs:  float64(q.avgWaitNs.Load()) / 1e6,
		BufferUsagePct: float64(pending) / float64(capacity) * 100,
	}
}
