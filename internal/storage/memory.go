package storage

import (
	"context"
	"sync"
	"time"

	"seatwatch/internal/course"
)

type memoryStore struct {
	mu     sync.Mutex
	closed bool
	subs   map[string]course.Subscription
	snaps  map[course.SectionKey]course.Snapshot
}

// NewMemory returns a Store that keeps everything in process memory.
func NewMemory() Store {
	return &memoryStore{
		subs:  map[string]course.Subscription{},
		snaps: map[course.SectionKey]course.Snapshot{},
	}
}

func (m *memoryStore) LoadSubscriptions(ctx context.Context) ([]course.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]course.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sortSubscriptions(out)
	return out, nil
}

func (m *memoryStore) InsertSubscription(ctx context.Context, sub course.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, s := range m.subs {
		if s.Active() && s.Email == sub.Email && s.Key == sub.Key {
			return ErrConflict
		}
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *memoryStore) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	s, ok := m.subs[id]
	if !ok || !s.Active() {
		return false, nil
	}
	t := at
	s.FiredAt = &t
	m.subs[id] = s
	return true, nil
}

func (m *memoryStore) LoadSnapshots(ctx context.Context) ([]course.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]course.Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryStore) PutSnapshot(ctx context.Context, snap course.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.snaps[snap.Key] = snap
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
