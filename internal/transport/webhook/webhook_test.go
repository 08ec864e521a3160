package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/transport"
)

func testMessage() transport.Message {
	key := course.NewSectionKey("1241", "CS", "135", "001")
	return transport.Message{
		SubscriptionID: "sub-1",
		To:             "a@example.com",
		Subject:        "Seat open: CS 135 001",
		Body:           "A seat opened.",
		Key:            key,
		Snapshot:       course.Snapshot{Key: key, Capacity: 10, Enrolled: 9},
		ObservedAt:     time.Unix(100, 0),
	}
}

func TestSendSignsPayload(t *testing.T) {
	t.Parallel()

	var (
		gotSig  string
		gotBody []byte
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Secret: "shh", Headers: map[string]string{"Authorization": "Bearer t"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if want := "sha256=" + Sign([]byte("shh"), gotBody); gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
	if gotAuth != "Bearer t" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	var p transport.Payload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if p.Event != "seat_opened" || p.Section != "001" || p.Available != 1 || p.Email != "a@example.com" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestSendNon2xxFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL}, nil)
	if err := s.Send(context.Background(), testMessage()); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
