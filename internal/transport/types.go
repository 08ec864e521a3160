// Package transport defines how seat notifications leave the process.
// Concrete senders live in subpackages (email, webhook, telegram);
// LogSender is the built-in fallback.
package transport

import (
	"context"
	"time"

	"seatwatch/internal/course"
)

// Message is one notification addressed to one subscriber.
type Message struct {
	SubscriptionID string
	To             string // subscriber email
	Subject        string
	Body           string

	Key        course.SectionKey
	Snapshot   course.Snapshot
	ObservedAt time.Time
}

// Sender delivers a Message. Send must honor ctx cancellation.
// Implementations must be safe for concurrent use.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// Payload is the JSON form of a Message used by HTTP-based senders.
type Payload struct {
	Event          string    `json:"event"`
	SubscriptionID string    `json:"subscription_id"`
	Email          string    `json:"email"`
	Term           string    `json:"term"`
	Subject        string    `json:"subject"`
	CatalogNumber  string    `json:"catalog_number"`
	Section        string    `json:"section"`
	Capacity       int       `json:"capacity"`
	Enrolled       int       `json:"enrolled"`
	Available      int       `json:"available"`
	ObservedAt     time.Time `json:"observed_at"`
	Text           string    `json:"text"`
}

func (m Message) Payload() Payload {
	return Payload{
		Event:          string(course.SeatOpened),
		SubscriptionID: m.SubscriptionID,
		Email:          m.To,
		Term:           m.Key.Term,
		Subject:        m.Key.Subject,
		CatalogNumber:  m.Key.CatalogNumber,
		Section:        m.Key.Section,
		Capacity:       m.Snapshot.Capacity,
		Enrolled:       m.Snapshot.Enrolled,
		Available:      m.Snapshot.Available(),
		ObservedAt:     m.ObservedAt.UTC(),
		Text:           m.Body,
	}
}
