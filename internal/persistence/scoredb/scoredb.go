// Package scoredb persists cumulative per-user scores in SQLite.
package scoredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"arena-shooter/internal/logger"
)

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("score store closed")

// Entry is one user's cumulative score.
type Entry struct {
	Username  string    `json:"username"`
	Total     int       `json:"total"`
	Updates   int       `json:"updates"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store implements game.ScoreSink. Deltas are queued without blocking and
// applied by a single writer goroutine.
type Store struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
	log     *logrus.Entry
}

type req struct {
	username string
	delta    int
	at       time.Time
	flushed  chan struct{} // set for Flush barriers
}

const queueSize = 4096

// Open opens (or creates) the score database at path. ":memory:" is accepted
// for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		ch:  make(chan req, queueSize),
		log: logger.With("scoredb"),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			username TEXT PRIMARY KEY,
			total INTEGER NOT NULL,
			updates INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_total ON scores(total DESC);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordScore queues a delta. It never blocks; when the queue is full the
// delta is dropped and counted.
func (s *Store) RecordScore(username string, delta int) {
	if s == nil || s.closed.Load() || username == "" || delta == 0 {
		return
	}
	select {
	case s.ch <- req{username: username, delta: delta, at: time.Now().UTC()}:
	default:
		s.dropped.Add(1)
	}
}

// Flush blocks until every delta queued before the call has been applied.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Total returns a user's cumulative score; unknown users have zero.
func (s *Store) Total(ctx context.Context, username string) (Entry, error) {
	if s.closed.Load() {
		return Entry{}, ErrClosed
	}
	e := Entry{Username: username}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT total, updates, updated_at FROM scores WHERE username = ?`, username,
	).Scan(&e.Total, &e.Updates, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return e, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query total: %w", err)
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return e, nil
}

// Top returns the n highest cumulative scores, ties broken by username.
func (s *Store) Top(ctx context.Context, n int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, total, updates, updated_at FROM scores ORDER BY total DESC, username ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var updated string
		if err := rows.Scan(&e.Username, &e.Total, &e.Updates, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns deltas dropped on a full queue and deltas that failed to apply.
func (s *Store) Stats() (dropped, failed uint64) {
	return s.dropped.Load(), s.failed.Load()
}

// Close drains queued deltas and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) loop() {
	upsert, err := s.db.Prepare(`INSERT INTO scores(username, total, updates, updated_at) VALUES(?, ?, 1, ?)
		ON CONFLICT(username) DO UPDATE SET
			total = total + excluded.total,
			updates = updates + 1,
			updated_at = excluded.updated_at`)
	if err != nil {
		s.log.WithError(err).Error("❌ Prepare upsert failed")
	} else {
		defer upsert.Close()
	}

	for r := range s.ch {
		if r.flushed != nil {
			close(r.flushed)
			continue
		}
		if upsert == nil {
			s.failed.Add(1)
			continue
		}
		if _, err := upsert.Exec(r.username, r.delta, r.at.Format(time.RFC3339Nano)); err != nil {
			s.failed.Add(1)
			s.log.WithError(err).WithField("user", r.username).Warn("⚠️ Score write failed")
		}
	}
}
