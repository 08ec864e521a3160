// Package subscription holds the registry of seat-watch subscriptions.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/storage"

	"github.com/google/uuid"
)

// Registry is the authoritative set of subscriptions. Every mutation is
// persisted before it becomes visible to readers.
type Registry struct {
	db  storage.Store
	now func() time.Time

	mu   sync.RWMutex
	byID map[string]*course.Subscription
	// active indexes FiredAt == nil entries by (email, key).
	active map[activeKey]string
}

type activeKey struct {
	email string
	key   course.SectionKey
}

func NewRegistry(db storage.Store) *Registry {
	return &Registry{
		db:     db,
		now:    time.Now,
		byID:   map[string]*course.Subscription{},
		active: map[activeKey]string{},
	}
}

// Load replaces the in-memory registry with the durable contents.
func (r *Registry) Load(ctx context.Context) error {
	subs, err := r.db.LoadSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	byID := make(map[string]*course.Subscription, len(subs))
	active := map[activeKey]string{}
	for i := range subs {
		s := subs[i]
		byID[s.ID] = &s
		if s.Active() {
			active[activeKey{email: normEmail(s.Email), key: s.Key}] = s.ID
		}
	}
	r.mu.Lock()
	r.byID, r.active = byID, active
	r.mu.Unlock()
	return nil
}

// Refresh merges rows written to storage by other processes. New rows are
// added and rows fired elsewhere become fired here; nothing already fired
// in memory is reactivated. It returns the number of subscriptions added.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	subs, err := r.db.LoadSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh subscriptions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for i := range subs {
		s := subs[i]
		ak := activeKey{email: normEmail(s.Email), key: s.Key}
		if cur, ok := r.byID[s.ID]; ok {
			if cur.Active() && !s.Active() {
				cur.FiredAt = s.FiredAt
				delete(r.active, ak)
			}
			continue
		}
		r.byID[s.ID] = &s
		added++
		if s.Active() {
			if _, taken := r.active[ak]; !taken {
				r.active[ak] = s.ID
			}
		}
	}
	return added, nil
}

// Add registers a new active subscription. It returns
// course.ErrDuplicateSubscription if (email, key) is already active.
func (r *Registry) Add(ctx context.Context, email string, key course.SectionKey) (course.Subscription, error) {
	email = strings.TrimSpace(email)
	ak := activeKey{email: normEmail(email), key: key}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[ak]; ok {
		return course.Subscription{}, course.ErrDuplicateSubscription
	}
	sub := course.Subscription{
		ID:        uuid.NewString(),
		Email:     email,
		Key:       key,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.InsertSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return course.Subscription{}, course.ErrDuplicateSubscription
		}
		return course.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	r.byID[sub.ID] = &sub
	r.active[ak] = sub.ID
	return sub, nil
}

// FindActiveByKey returns active subscriptions for key, oldest first.
func (r *Registry) FindActiveByKey(key course.SectionKey) []course.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []course.Subscription
	for _, s := range r.byID {
		if s.Active() && s.Key == key {
			out = append(out, *s)
		}
	}
	sortByCreated(out)
	return out
}

// MarkFired moves an active subscription to fired. Exactly one caller wins;
// every other caller, and any call for an unknown or already fired id, gets false.
func (r *Registry) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || !s.Active() {
		return false, nil
	}
	won, err := r.db.MarkFired(ctx, id, at)
	if err != nil {
		return false, fmt.Errorf("mark fired %s: %w", id, err)
	}
	if !won {
		return false, nil
	}
	at = at.UTC()
	s.FiredAt = &at
	delete(r.active, activeKey{email: normEmail(s.Email), key: s.Key})
	return true, nil
}

// ActiveKeys returns the distinct section keys with at least one active subscription.
func (r *Registry) ActiveKeys() []course.SectionKey {
	r.mu.RLock()
	seen := make(map[course.SectionKey]struct{}, len(r.active))
	for ak := range r.active {
		seen[ak.key] = struct{}{}
	}
	r.mu.RUnlock()

	out := make([]course.SectionKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *Registry) Get(id string) (course.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return course.Subscription{}, false
	}
	return *s, true
}

// List returns every subscription, active or fired, oldest first.
func (r *Registry) List() []course.Subscription {
	r.mu.RLock()
	out := make([]course.Subscription, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sortByCreated(out)
	return out
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func sortByCreated(list []course.Subscription) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
