// Package stats counts roasts per group and per roasting user.
package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// UserCount is one user's roast count within a group.
type UserCount struct {
	UserID string
	Count  int
}

// GroupStats is the snapshot form of one group's counters. Users are kept in
// the order they were first recorded.
type GroupStats struct {
	Total int
	Users []UserCount
}

// Snapshot maps group IDs to their counters.
type Snapshot map[string]*GroupStats

// Persister stores and restores full snapshots.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

type groupEntry struct {
	total int
	users []UserCount
	index map[string]int
}

// Store keeps the counters in memory and writes the whole snapshot through
// its persister after each update.
type Store struct {
	mu        sync.Mutex
	groups    map[string]*groupEntry
	persister Persister
}

// NewStore creates an empty store. A nil persister keeps everything in memory.
func NewStore(persister Persister) *Store {
	return &Store{
		groups:    make(map[string]*groupEntry),
		persister: persister,
	}
}

// Open creates a store seeded from the persister's last snapshot. Load errors
// are returned alongside a usable empty store.
func Open(ctx context.Context, persister Persister) (*Store, error) {
	s := NewStore(persister)
	if persister == nil {
		return s, nil
	}

	snap, err := persister.Load(ctx)
	if err != nil {
		return s, fmt.Errorf("load stats: %w", err)
	}
	for groupID, gs := range snap {
		if gs == nil {
			continue
		}
		entry := s.entry(groupID)
		for _, uc := range gs.Users {
			entry.add(uc.UserID, uc.Count)
		}
	}
	return s, nil
}

// Record counts one roast by userID in groupID and persists the result. The
// in-memory update stands even when persisting fails; the error is returned so
// the caller can log it.
func (s *Store) Record(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(groupID).add(userID, 1)

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, s.snapshotLocked()); err != nil {
		return fmt.Errorf("persist stats: %w", err)
	}
	return nil
}

// Group returns a copy of the counters for groupID.
func (s *Store) Group(groupID string) (GroupStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.groups[groupID]
	if !ok {
		return GroupStats{}, false
	}
	return entry.copy(), true
}

// TopUsers returns up to n users of groupID ordered by count, highest first.
// Equal counts keep the order in which the users were first recorded.
func (s *Store) TopUsers(groupID string, n int) []UserCount {
	gs, ok := s.Group(groupID)
	if !ok || gs.Total == 0 || n <= 0 {
		return nil
	}

	users := gs.Users
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Count > users[j].Count
	})
	if len(users) > n {
		users = users[:n]
	}
	return users
}

// Snapshot returns a deep copy of every group's counters.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(s.groups))
	for groupID, entry := range s.groups {
		gs := entry.copy()
		snap[groupID] = &gs
	}
	return snap
}

func (s *Store) entry(groupID string) *groupEntry {
	entry, ok := s.groups[groupID]
	if !ok {
		entry = &groupEntry{index: make(map[string]int)}
		s.groups[groupID] = entry
	}
	return entry
}

func (e *groupEntry) add(userID string, n int) {
	i, ok := e.index[userID]
	if !ok {
		i = len(e.users)
		e.index[userID] = i
		e.users = append(e.users, UserCount{UserID: userID})
	}
	e.users[i].Count += n
	e.total += n
}

func (e *groupEntry) copy() GroupStats {
	return GroupStats{
		Total: e.total,
		Users: append([]UserCount(nil), e.users...),
	}
}
