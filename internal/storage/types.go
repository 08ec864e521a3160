package storage

import (
	"context"
	"errors"
	"time"

	"seatwatch/internal/course"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrConflict is returned by InsertSubscription when an active subscription
	// already exists for the same (email, key).
	ErrConflict = errors.New("active subscription exists")
)

// Store is the persistence API used by the registry and the state store.
type Store interface {
	LoadSubscriptions(ctx context.Context) ([]course.Subscription, error)
	InsertSubscription(ctx context.Context, sub course.Subscription) error
	// MarkFired sets fired_at only if it is still unset. It reports whether
	// this call performed the transition.
	MarkFired(ctx context.Context, id string, at time.Time) (bool, error)

	LoadSnapshots(ctx context.Context) ([]course.Snapshot, error)
	PutSnapshot(ctx context.Context, snap course.Snapshot) error

	Close() error
}

// Config configures storage.
//
// If Driver is empty, "none" or "memory", an in-memory store is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
