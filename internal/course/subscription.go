package course

import "time"

// Subscription is a subscriber's intent to be told once when Key opens up.
// FiredAt is nil while active and immutable once set.
type Subscription struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Key       SectionKey `json:"key"`
	CreatedAt time.Time  `json:"created_at"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
}

func (s Subscription) Active() bool { return s.FiredAt == nil }
