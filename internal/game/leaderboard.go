package game

import (
	"sync"

	"arena-shooter/internal/game/spatial"
)

// Leaderboard ranks participants of one room by kill credit.
//
// Operations:
//   - RecordKill: O(log n)
//   - GetRank: O(log n)
//   - GetTop: O(log n + k)
type Leaderboard struct {
	skipList *spatial.SkipList
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Kills    int    `json:"kills"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{skipList: spatial.NewSkipList()}
}

// RecordKill credits one kill to username and returns the new kill count.
func (lb *Leaderboard) RecordKill(username string) int {
	return int(lb.skipList.Add(username, 1))
}

// GetRank returns a participant's rank (1 = top), or 0 if absent.
func (lb *Leaderboard) GetRank(username string) int {
	return lb.skipList.GetRank(username)
}

// GetTop returns the top n participants.
func (lb *Leaderboard) GetTop(n int) []LeaderboardEntry {
	return lb.GetRange(1, n)
}

// GetAround returns the participant with up to above/below neighbours.
func (lb *Leaderboard) GetAround(username string, above, below int) []LeaderboardEntry {
	rank := lb.skipList.GetRank(username)
	if rank == 0 {
		return nil
	}
	return lb.GetRange(max(1, rank-above), rank+below)
}

// GetRange returns ranks start..end inclusive (1-indexed).
func (lb *Leaderboard) GetRange(start, end int) []LeaderboardEntry {
	start = max(1, start)
	entries := lb.skipList.GetRange(start, end)
	result := make([]LeaderboardEntry, len(entries))
	for i, e := range entries {
		kills := int(e.Score)
		result[i] = LeaderboardEntry{
			Username: e.Key,
			Kills:    kills,
			Score:    kills * KillScore,
			Rank:     start + i,
		}
	}
	return result
}

// Length returns the number of ranked participants.
func (lb *Leaderboard) Length() int {
	return lb.skipList.Length()
}

// Leaderboards keeps one Leaderboard per room.
type Leaderboards struct {
	mu    sync.RWMutex
	rooms map[string]*Leaderboard
}

// NewLeaderboards creates an empty registry.
func NewLeaderboards() *Leaderboards {
	return &Leaderboards{rooms: make(map[string]*Leaderboard)}
}

// Room returns the room's leaderboard, creating it on first use.
func (l *Leaderboards) Room(room string) *Leaderboard {
	l.mu.RLock()
	lb, ok := l.rooms[room]
	l.mu.RUnlock()
	if ok {
		return lb
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lb, ok = l.rooms[room]; !ok {
		lb = NewLeaderboard()
		l.rooms[room] = lb
	}
	return lb
}

// Lookup returns the room's leaderboard without creating one.
func (l *Leaderboards) Lookup(room string) (*Leaderboard, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lb, ok := l.rooms[room]
	return lb, ok
}

// Drop forgets a room.
func (l *Leaderboards) Drop(room string) {
	l.mu.Lock()
	delete(l.rooms, room)
	l.mu.Unlock()
}
