package spatial

import (
	"math/rand"
	"sync"
)

// Pugh (1990) skip list ordered by score descending, then key ascending,
// with span counts for O(log n) rank queries (the Redis ZSET layout).

const (
	maxLevel         = 24
	levelProbability = 0.25
)

// SkipListEntry is a scored key.
type SkipListEntry struct {
	Key   string
	Score float64
}

type skipNode struct {
	entry SkipListEntry
	next  []*skipNode
	span  []int // nodes skipped by next[i], counting the target
}

// SkipList is safe for concurrent use.
type SkipList struct {
	mu     sync.RWMutex
	head   *skipNode
	level  int
	length int
	scores map[string]float64
	rng    *rand.Rand
}

// NewSkipList creates an empty list.
func NewSkipList() *SkipList {
	return &SkipList{
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
			span: make([]int, maxLevel),
		},
		level:  1,
		scores: make(map[string]float64),
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

func (sl *SkipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// before reports whether a sorts ahead of b.
func before(a, b SkipListEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key < b.Key
}

// Insert adds key or moves it to its new score.
func (sl *SkipList) Insert(key string, score float64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if old, ok := sl.scores[key]; ok {
		if old == score {
			return
		}
		sl.remove(SkipListEntry{Key: key, Score: old})
	}
	sl.insert(SkipListEntry{Key: key, Score: score})
	sl.scores[key] = score
}

// Add increments key's score by delta and returns the new score.
func (sl *SkipList) Add(key string, delta float64) float64 {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	old, ok := sl.scores[key]
	if ok {
		sl.remove(SkipListEntry{Key: key, Score: old})
	}
	score := old + delta
	sl.insert(SkipListEntry{Key: key, Score: score})
	sl.scores[key] = score
	return score
}

func (sl *SkipList) insert(e SkipListEntry) {
	var update [maxLevel]*skipNode
	var rank [maxLevel]int

	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && before(x.next[i].entry, e) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	lvl := sl.randomLevel()
	if lvl > sl.level {
		for i := sl.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = sl.length
		}
		sl.level = lvl
	}

	n := &skipNode{entry: e, next: make([]*skipNode, lvl), span: make([]int, lvl)}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
		n.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = rank[0] - rank[i] + 1
	}
	for i := lvl; i < sl.level; i++ {
		update[i].span[i]++
	}
	sl.length++
}

func (sl *SkipList) remove(e SkipListEntry) bool {
	var update [maxLevel]*skipNode
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && before(x.next[i].entry, e) {
			x = x.next[i]
		}
		update[i] = x
	}
	target := x.next[0]
	if target == nil || target.entry.Key != e.Key {
		return false
	}
	for i := 0; i < sl.level; i++ {
		if update[i].next[i] == target {
			update[i].span[i] += target.span[i] - 1
			update[i].next[i] = target.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}
	sl.length--
	return true
}

// Remove deletes key. Returns false when absent.
func (sl *SkipList) Remove(key string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	score, ok := sl.scores[key]
	if !ok {
		return false
	}
	delete(sl.scores, key)
	return sl.remove(SkipListEntry{Key: key, Score: score})
}

// GetRank returns the 1-based rank of key, or 0 when absent.
func (sl *SkipList) GetRank(key string) int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	score, ok := sl.scores[key]
	if !ok {
		return 0
	}
	e := SkipListEntry{Key: key, Score: score}
	rank := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && (before(x.next[i].entry, e) || x.next[i].entry.Key == key) {
			rank += x.span[i]
			x = x.next[i]
		}
		if x.entry.Key == key && x != sl.head {
			return rank
		}
	}
	return 0
}

// GetScore returns key's score.
func (sl *SkipList) GetScore(key string) (float64, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	s, ok := sl.scores[key]
	return s, ok
}

// GetRange returns entries with ranks start..end inclusive (1-based).
func (sl *SkipList) GetRange(start, end int) []SkipListEntry {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if start < 1 {
		start = 1
	}
	if end > sl.length {
		end = sl.length
	}
	if start > end {
		return nil
	}

	// descend to rank start-1 using spans
	traversed := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	out := make([]SkipListEntry, 0, end-start+1)
	for x = x.next[0]; x != nil && len(out) < end-start+1; x = x.next[0] {
		out = append(out, x.entry)
	}
	return out
}

// Length returns the number of entries.
func (sl *SkipList) Length() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.length
}
