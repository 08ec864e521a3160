package tracker

import (
	"context"
	"fmt"
	"sync"

	"seatwatch/internal/course"
	"seatwatch/internal/storage"
)

// Store is the section state store: an in-memory map backed by durable storage.
// Put persists before the in-memory value changes.
type Store struct {
	db storage.Store

	mu    sync.RWMutex
	snaps map[course.SectionKey]course.Snapshot
}

func NewStore(db storage.Store) *Store {
	return &Store{db: db, snaps: map[course.SectionKey]course.Snapshot{}}
}

// Load replaces the in-memory state with what durable storage holds.
func (s *Store) Load(ctx context.Context) error {
	list, err := s.db.LoadSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	m := make(map[course.SectionKey]course.Snapshot, len(list))
	for _, sn := range list {
		m[sn.Key] = sn
	}
	s.mu.Lock()
	s.snaps = m
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(key course.SectionKey) (course.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.snaps[key]
	return sn, ok
}

func (s *Store) Put(ctx context.Context, snap course.Snapshot) error {
	if err := s.db.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.Key, err)
	}
	s.mu.Lock()
	s.snaps[snap.Key] = snap
	s.mu.Unlock()
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}
