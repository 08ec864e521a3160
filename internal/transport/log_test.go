package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"seatwatch/internal/course"
	logx "seatwatch/pkg/logx"
)

func TestLogSenderWritesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewLogSender(logx.NewWriter(&buf, "info"))
	key := course.NewSectionKey("1241", "CS", "135", "001")
	err := s.Send(context.Background(), Message{
		SubscriptionID: "sub-1",
		To:             "a@example.com",
		Key:            key,
		Snapshot:       course.Snapshot{Key: key, Capacity: 5, Enrolled: 3},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"subscription":"sub-1"`, `"section":"1241/CS/135#001"`, `"available":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
}

func TestLogSenderHonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLogSender(logx.Nop()).Send(ctx, Message{}); err == nil {
		t.Fatalf("expected ctx error")
	}
}
