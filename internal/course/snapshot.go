package course

import "time"

// Status is the derived availability of a section.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusFull Status = "FULL"
)

// Snapshot is the latest observed enrollment state of a section.
type Snapshot struct {
	Key        SectionKey `json:"key"`
	Capacity   int        `json:"capacity"`
	Enrolled   int        `json:"enrolled"`
	ObservedAt time.Time  `json:"observed_at"`

	// Descriptive fields; not part of the diff.
	Component    string    `json:"component,omitempty"`
	ClassNumber  int       `json:"class_number,omitempty"`
	Location     string    `json:"location,omitempty"`
	MeetingStart time.Time `json:"meeting_start,omitempty"`
	MeetingEnd   time.Time `json:"meeting_end,omitempty"`
}

// Available returns max(capacity - enrolled, 0).
func (s Snapshot) Available() int {
	if a := s.Capacity - s.Enrolled; a > 0 {
		return a
	}
	return 0
}

func (s Snapshot) Status() Status {
	if s.Available() > 0 {
		return StatusOpen
	}
	return StatusFull
}

// TransitionKind classifies a status change between two consecutive snapshots.
type TransitionKind string

const (
	SeatOpened TransitionKind = "seat_opened"
	SeatClosed TransitionKind = "seat_closed"
)

// TransitionEvent is produced by the differencer and consumed once by the notifier.
type TransitionEvent struct {
	Key            SectionKey
	Kind           TransitionKind
	PreviousStatus Status
	NewStatus      Status
	Snapshot       Snapshot
	ObservedAt     time.Time
}
