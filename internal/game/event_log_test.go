package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestEventLogWritesCompressedJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")
	el := NewEventLog(1000)
	if err := el.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if !el.EmitSimple(EventTypeKill, uint64(i), "s1", KillPayload{EnemyID: "e", Killer: "alice"}) {
			t.Fatalf("Emit %d rejected", i)
		}
	}
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("Bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(lines))
	}
	prev := 0.0
	for _, m := range lines {
		if m["type"] != "kill" {
			t.Errorf("Expected type kill, got %v", m["type"])
		}
		seq := m["sequence"].(float64)
		if seq <= prev {
			t.Errorf("Sequence not increasing: %v after %v", seq, prev)
		}
		prev = seq
		payload := m["payload"].(map[string]any)
		if payload["killer"] != "alice" {
			t.Errorf("Unexpected payload %v", payload)
		}
	}
	if el.GetTotalCount() != 5 {
		t.Errorf("Expected total 5, got %d", el.GetTotalCount())
	}
}

func TestEventLogPerSessionLimit(t *testing.T) {
	el := NewEventLog(10000)
	if err := el.Start(""); err != nil {
		t.Fatal(err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < 50; i++ {
		if el.EmitSimple(EventTypeDamage, 0, "noisy", nil) {
			accepted++
		}
	}
	if accepted > MaxEventsPerSession/10+2 {
		t.Errorf("Per-session burst exceeded: %d accepted", accepted)
	}
	if el.GetDroppedCount() == 0 {
		t.Error("Expected drops for a noisy session")
	}
	if !el.EmitSimple(EventTypeDamage, 0, "quiet", nil) {
		t.Error("Other sessions must not be affected")
	}
}

func TestEventLogNilAndStopped(t *testing.T) {
	var nilLog *EventLog
	if nilLog.EmitSimple(EventTypeKill, 0, "s", nil) {
		t.Error("Nil log must reject events")
	}

	el := NewEventLog(100)
	if el.Emit(NewEvent(EventTypeKill, 0, "s", nil)) {
		t.Error("Unstarted log must reject events")
	}
	el.Start("")
	el.Stop()
	el.Stop()
	if el.Emit(NewEvent(EventTypeKill, 0, "s", nil)) {
		t.Error("Stopped log must reject events")
	}
}

func TestEventTypeJSON(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventTypeRevive, 3, "s", nil))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if m["type"] != "revive" || m["frame"].(float64) != 3 {
		t.Errorf("Unexpected encoding %s", data)
	}
	if EventType(200).String() != "unknown" {
		t.Error("Out-of-range types should be unknown")
	}
}
