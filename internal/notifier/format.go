package notifier

import (
	"fmt"
	"strings"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/transport"
)

func compose(sub course.Subscription, ev course.TransitionEvent) transport.Message {
	k := ev.Key
	snap := ev.Snapshot
	name := fmt.Sprintf("%s %s %s", k.Subject, k.CatalogNumber, k.Section)

	var b strings.Builder
	fmt.Fprintf(&b, "A seat opened in %s for term %s.\n", name, k.Term)
	fmt.Fprintf(&b, "Available: %d of %d (enrolled %d).\n", snap.Available(), snap.Capacity, snap.Enrolled)
	if snap.Component != "" || snap.Location != "" {
		fmt.Fprintf(&b, "Component: %s  Location: %s\n", orNA(snap.Component), orNA(snap.Location))
	}
	fmt.Fprintf(&b, "Observed at %s.\n", ev.ObservedAt.UTC().Format(time.RFC3339))
	b.WriteString("This alert is sent once. Subscribe again to keep watching.")

	return transport.Message{
		SubscriptionID: sub.ID,
		To:             sub.Email,
		Subject:        fmt.Sprintf("Seat open: %s (%s)", name, k.Term),
		Body:           b.String(),
		Key:            k,
		Snapshot:       snap,
		ObservedAt:     ev.ObservedAt,
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
