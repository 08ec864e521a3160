package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeTransition, Data: "x"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeTransition || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // dropped, must not block

	if e := <-ch; e.Type != "a" {
		t.Fatalf("first event = %q", e.Type)
	}
	if n := b.Dropped(); n != 1 {
		t.Fatalf("dropped = %d, want 1", n)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: "late"})
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4, TypeNotifySent)
	defer unsub()

	b.Publish(Event{Type: TypePollCycle})
	b.Publish(Event{Type: TypeNotifySent})

	select {
	case e := <-ch:
		if e.Type != TypeNotifySent {
			t.Fatalf("got %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("filtered event not delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected %q", e.Type)
	default:
	}
}
