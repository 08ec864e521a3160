package tracker

import (
	"context"
	"sync"

	"seatwatch/internal/course"
)

// Classify compares two consecutive observations of the same section.
// The first observation (prev == nil) never produces an event.
func Classify(prev *course.Snapshot, next course.Snapshot) (course.TransitionKind, bool) {
	if prev == nil {
		return "", false
	}
	ps, ns := prev.Status(), next.Status()
	switch {
	case ps == course.StatusFull && ns == course.StatusOpen:
		return course.SeatOpened, true
	case ps == course.StatusOpen && ns == course.StatusFull:
		return course.SeatClosed, true
	default:
		return "", false
	}
}

// Tracker serializes get, classify and put per section key.
type Tracker struct {
	store *Store

	mu    sync.Mutex
	locks map[course.SectionKey]*keyLock
}

// keyLock is dropped from the map once no caller holds or waits on it.
type keyLock struct {
	sync.Mutex
	refs int
}

func New(store *Store) *Tracker {
	return &Tracker{store: store, locks: map[course.SectionKey]*keyLock{}}
}

func (t *Tracker) Store() *Store { return t.store }

func (t *Tracker) lock(k course.SectionKey) func() {
	t.mu.Lock()
	l, ok := t.locks[k]
	if !ok {
		l = &keyLock{}
		t.locks[k] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(t.locks, k)
		}
		t.mu.Unlock()
	}
}

// Observe records snap and returns the transition it causes, if any.
// A snapshot older than the stored one is ignored and returns (nil, nil).
// If persisting fails no event is returned, so the change is seen again next cycle.
func (t *Tracker) Observe(ctx context.Context, snap course.Snapshot) (*course.TransitionEvent, error) {
	unlock := t.lock(snap.Key)
	defer unlock()

	var prev *course.Snapshot
	if old, ok := t.store.Get(snap.Key); ok {
		if snap.ObservedAt.Before(old.ObservedAt) {
			return nil, nil
		}
		prev = &old
	}

	if err := t.store.Put(ctx, snap); err != nil {
		return nil, err
	}

	kind, ok := Classify(prev, snap)
	if !ok {
		return nil, nil
	}
	return &course.TransitionEvent{
		Key:            snap.Key,
		Kind:           kind,
		PreviousStatus: prev.Status(),
		NewStatus:      snap.Status(),
		Snapshot:       snap,
		ObservedAt:     snap.ObservedAt,
	}, nil
}
