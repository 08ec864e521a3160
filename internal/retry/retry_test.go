package retry

import (
	"context"
	"testing"
	"time"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()
	p := Policy{Base: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: func() float64 { return 0.5 }}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{12, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	t.Parallel()
	low := Policy{Base: time.Second, MaxDelay: time.Minute, Jitter: func() float64 { return 0 }}
	high := Policy{Base: time.Second, MaxDelay: time.Minute, Jitter: func() float64 { return 0.999999 }}
	if got := low.Delay(1); got != 700*time.Millisecond {
		t.Fatalf("low jitter = %v", got)
	}
	if got := high.Delay(1); got < 1299*time.Millisecond || got > 1300*time.Millisecond {
		t.Fatalf("high jitter = %v", got)
	}
	for i := 0; i < 100; i++ {
		d := Policy{Base: time.Second, MaxDelay: time.Minute}.Delay(1)
		if d < 700*time.Millisecond || d > 1300*time.Millisecond {
			t.Fatalf("random jitter out of bounds: %v", d)
		}
	}
}

func TestSleepHonorsCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected ctx error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Sleep did not return promptly")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep = %v", err)
	}
}
