// Package retry holds the bounded exponential backoff shared by the upstream
// client and the notifier.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a capped exponential backoff with multiplicative jitter.
type Policy struct {
	Base     time.Duration
	MaxDelay time.Duration
	// Jitter returns a factor in [0,1); nil means math/rand. Tests pin it.
	Jitter func() float64
}

const (
	defaultBase     = 500 * time.Millisecond
	defaultMaxDelay = 10 * time.Second
)

// Delay returns the wait before attempt+1, where attempt starts at 1.
// The result is base*2^(attempt-1), capped at MaxDelay, scaled by 0.7..1.3.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = defaultBase
	}
	maxD := p.MaxDelay
	if maxD <= 0 {
		maxD = defaultMaxDelay
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	jf := p.Jitter
	if jf == nil {
		jf = rand.Float64
	}
	d = time.Duration(float64(d) * (0.7 + jf()*0.6))
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
