package scoredb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"arena-shooter/internal/game"
	"arena-shooter/internal/logger"
)

func init() {
	logger.Silence()
}

var _ game.ScoreSink = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "scores.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestRecordScoreAccumulates(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	s.RecordScore("alice", 30)
	s.RecordScore("alice", 20)
	s.RecordScore("bob", 10)
	s.RecordScore("bob", 0) // ignored
	s.RecordScore("", 50)   // ignored
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	alice, err := s.Total(ctx, "alice")
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if alice.Total != 50 || alice.Updates != 2 || alice.UpdatedAt.IsZero() {
		t.Errorf("Unexpected alice entry %+v", alice)
	}

	nobody, err := s.Total(ctx, "nobody")
	if err != nil || nobody.Total != 0 {
		t.Errorf("Unknown users should have zero, got %+v %v", nobody, err)
	}
}

func TestTopOrdering(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	s.RecordScore("carol", 40)
	s.RecordScore("alice", 90)
	s.RecordScore("bob", 40)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	top, err := s.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 || top[0].Username != "alice" || top[1].Username != "bob" {
		t.Errorf("Unexpected order %+v", top)
	}
	if none, _ := s.Top(ctx, 0); none != nil {
		t.Error("Top(0) should be empty")
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	s, path := openTemp(t)
	for i := 0; i < 100; i++ {
		s.RecordScore("alice", 10)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Second Close: %v", err)
	}
	s.RecordScore("alice", 10) // dropped silently after close

	if _, err := s.Total(context.Background(), "alice"); !errors.Is(err, ErrClosed) {
		t.Errorf("Reads after Close should fail with ErrClosed, got %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var total int
	if err := db.QueryRow(`SELECT total FROM scores WHERE username = 'alice'`).Scan(&total); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if total != 1000 {
		t.Errorf("Expected 1000 persisted, got %d", total)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("Expected error for empty path")
	}
}
