package notifier

import (
	"context"
	"time"

	"seatwatch/internal/course"
)

// Config controls dispatch. Zero values take defaults.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int // retries after the first attempt
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	HistorySize   int
}

// Registry is the subset of the subscription registry the notifier needs.
type Registry interface {
	FindActiveByKey(key course.SectionKey) []course.Subscription
	MarkFired(ctx context.Context, id string, at time.Time) (bool, error)
}

type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// HistoryItem records one dispatch outcome.
type HistoryItem struct {
	At             time.Time `json:"at"`
	SubscriptionID string    `json:"subscription_id"`
	Email          string    `json:"email"`
	Section        string    `json:"section"`
	Channel        string    `json:"channel"`
	Outcome        Outcome   `json:"outcome"`
	Attempts       int       `json:"attempts"`
	Error          string    `json:"error,omitempty"`
}

// NotificationEvent is published on the event bus for dispatch outcomes.
type NotificationEvent struct {
	SubscriptionID string    `json:"subscription_id"`
	Section        string    `json:"section"`
	Channel        string    `json:"channel"`
	At             time.Time `json:"at"`
	Error          string    `json:"error,omitempty"`
}
