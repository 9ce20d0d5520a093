package spatial

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestGridQueryFindsNeighbors(t *testing.T) {
	g := NewSpatialGrid(20, 4, 64)
	g.Insert(0, 0, 0)
	g.Insert(1, 15, 15)
	g.Insert(2, -19, 19)

	found := map[uint32]bool{}
	for _, id := range g.QueryRadius(1, 1, 2) {
		found[id] = true
	}
	if !found[0] {
		t.Error("Expected entity 0 near origin")
	}
	if found[1] || found[2] {
		t.Errorf("Unexpected far entities in result: %v", found)
	}
}

func TestGridClampsOutsideWorld(t *testing.T) {
	g := NewSpatialGrid(20, 4, 64)
	// spawned beyond the edge with a margin
	g.Insert(7, 21.5, 0)

	hits := g.QueryRadius(30, 0, 1)
	if len(hits) != 1 || hits[0] != 7 {
		t.Errorf("Expected clamped entity from far query, got %v", hits)
	}
}

func TestGridReset(t *testing.T) {
	g := NewSpatialGrid(20, 4, 64)
	g.Insert(1, 0, 0)
	g.Reset(20)
	if g.Stats().TotalEntities != 0 {
		t.Error("Expected empty grid after reset")
	}
	g.Reset(40)
	if g.Stats().TotalCells != 400 {
		t.Errorf("Expected 400 cells after growth, got %d", g.Stats().TotalCells)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewLockFreeQueue[int](3)
	if q.Cap() != 4 {
		t.Fatalf("Expected capacity rounded to 4, got %d", q.Cap())
	}
	for i := 0; i < 4; i++ {
		if !q.TryPush(i) {
			t.Fatalf("Push %d failed", i)
		}
	}
	if q.TryPush(99) {
		t.Error("Expected push to fail when full")
	}
	var got []int
	q.Drain(func(v int) { got = append(got, v) })
	for i, v := range got {
		if v != i {
			t.Errorf("Expected %d at %d, got %d", i, i, v)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewLockFreeQueue[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.TryPush(base + i) {
				}
			}
		}(p * perProducer)
	}
	wg.Wait()

	seen := make(map[int]bool)
	buf := make([]int, 128)
	for {
		n := q.DrainTo(buf)
		if n == 0 {
			break
		}
		for _, v := range buf[:n] {
			if seen[v] {
				t.Fatalf("Duplicate item %d", v)
			}
			seen[v] = true
		}
	}
	if len(seen) != producers*perProducer {
		t.Errorf("Expected %d items, got %d", producers*perProducer, len(seen))
	}
}

func TestSkipListRanking(t *testing.T) {
	sl := NewSkipList()
	sl.Insert("alice", 30)
	sl.Insert("bob", 50)
	sl.Insert("carol", 10)
	sl.Insert("dave", 30)

	if r := sl.GetRank("bob"); r != 1 {
		t.Errorf("Expected bob rank 1, got %d", r)
	}
	// ties sort by key
	if r := sl.GetRank("alice"); r != 2 {
		t.Errorf("Expected alice rank 2, got %d", r)
	}
	if r := sl.GetRank("dave"); r != 3 {
		t.Errorf("Expected dave rank 3, got %d", r)
	}

	sl.Add("carol", 100)
	if r := sl.GetRank("carol"); r != 1 {
		t.Errorf("Expected carol rank 1 after add, got %d", r)
	}
	if s, _ := sl.GetScore("carol"); s != 110 {
		t.Errorf("Expected carol score 110, got %v", s)
	}

	top := sl.GetRange(1, 2)
	if len(top) != 2 || top[0].Key != "carol" || top[1].Key != "bob" {
		t.Errorf("Unexpected top range: %v", top)
	}

	if !sl.Remove("bob") || sl.Remove("bob") {
		t.Error("Remove should succeed once")
	}
	if sl.Length() != 3 || sl.GetRank("bob") != 0 {
		t.Error("bob should be gone")
	}
}

func TestSkipListMatchesSort(t *testing.T) {
	sl := NewSkipList()
	scores := map[string]float64{}
	for i := 0; i < 300; i++ {
		key := fmt.Sprintf("p%03d", i%120)
		score := float64((i * 37) % 91)
		sl.Insert(key, score)
		scores[key] = score
	}

	var want []SkipListEntry
	for k, s := range scores {
		want = append(want, SkipListEntry{Key: k, Score: s})
	}
	sort.Slice(want, func(i, j int) bool { return before(want[i], want[j]) })

	got := sl.GetRange(1, len(want))
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Mismatch at %d: expected %v, got %v", i, want[i], got[i])
		}
		if r := sl.GetRank(want[i].Key); r != i+1 {
			t.Fatalf("Expected rank %d for %s, got %d", i+1, want[i].Key, r)
		}
	}
}
