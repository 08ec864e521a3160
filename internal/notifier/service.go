package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/eventbus"
	"seatwatch/internal/retry"
	rtsup "seatwatch/internal/runtime/supervisor"
	"seatwatch/internal/transport"
	logx "seatwatch/pkg/logx"

	"golang.org/x/time/rate"
)

type job struct {
	sub course.Subscription
	msg transport.Message
}

// Service dispatches seat notifications. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender
	reg    Registry
	bus    eventbus.Bus
	now    func() time.Time

	cfg     Config
	limiter *rate.Limiter
	backoff retry.Policy

	accepting bool
	enqueueWG sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, reg Registry, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log,
		sender: sender,
		reg:    reg,
		bus:    bus,
		now:    time.Now,
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps retry, rate and history settings. Workers and QueueSize take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	s.cfg = cfg
	// Burst = rate so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.backoff = retry.Policy{Base: cfg.RetryBase, MaxDelay: cfg.RetryMaxDelay}
}

// Start launches the worker pool. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))

	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
}

// Stop stops intake and lets workers drain the queue until ctx is done,
// then cancels whatever is still sending.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	s.enqueueWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		sup.Cancel()
		s.log.Warn("notifier stop timed out; abandoning queued sends", logx.Int("pending", len(q)))
		_ = sup.Wait(context.Background())
	}

	s.mu.Lock()
	s.queue, s.sup = nil, nil
	s.mu.Unlock()
}

// HandleTransition notifies every active subscription of ev.Key when ev is a
// SeatOpened transition. It returns the number of subscriptions it fired.
func (s *Service) HandleTransition(ctx context.Context, ev course.TransitionEvent) int {
	if ev.Kind != course.SeatOpened {
		s.log.Debug("transition ignored", logx.String("section", ev.Key.String()), logx.String("kind", string(ev.Kind)))
		return 0
	}

	fired := 0
	for _, sub := range s.reg.FindActiveByKey(ev.Key) {
		won, err := s.reg.MarkFired(ctx, sub.ID, s.now())
		if err != nil {
			// Never send for a subscription that is not durably fired.
			s.log.Error("mark fired failed; skipping dispatch", logx.String("subscription", sub.ID), logx.Err(err))
			continue
		}
		if !won {
			continue
		}
		fired++
		s.dispatch(ctx, job{sub: sub, msg: compose(sub, ev)})
	}
	return fired
}

func (s *Service) dispatch(ctx context.Context, j job) {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		s.sendWithRetry(ctx, j)
		return
	}
	q := s.queue
	s.enqueueWG.Add(1)
	s.mu.Unlock()

	select {
	case q <- j:
		s.enqueueWG.Done()
		return
	default:
		s.enqueueWG.Done()
	}
	// The subscription is already fired; it still gets its full retry budget.
	s.log.Warn("notifier queue full; sending inline", logx.String("subscription", j.sub.ID), logx.Int("queued", len(q)))
	s.sendWithRetry(ctx, j)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, backoff := s.cfg, s.limiter, s.backoff
	s.mu.Unlock()

	channel := s.sender.Name()
	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := s.sender.Send(callCtx, j.msg)
		cancel()
		if err == nil {
			s.record(j, OutcomeSent, attempt, nil)
			s.log.Info("notification sent",
				logx.String("subscription", j.sub.ID),
				logx.String("section", j.sub.Key.String()),
				logx.String("channel", channel),
				logx.Int("attempt", attempt),
			)
			s.publish(eventbus.TypeNotifySent, j, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}
		if err := retry.Sleep(ctx, backoff.Delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	derr := &course.NotificationDispatchError{SubscriptionID: j.sub.ID, Channel: channel, Attempts: attempt, Err: lastErr}
	s.record(j, OutcomeFailed, attempt, derr)
	s.log.Error("notification failed", logx.String("section", j.sub.Key.String()), logx.Err(derr))
	s.publish(eventbus.TypeNotifyFailed, j, derr)
}

// History returns dispatch outcomes, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(j job, o Outcome, attempts int, err error) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	it := HistoryItem{
		At:             s.now(),
		SubscriptionID: j.sub.ID,
		Email:          j.sub.Email,
		Section:        j.sub.Key.String(),
		Channel:        s.sender.Name(),
		Outcome:        o,
		Attempts:       attempts,
	}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, j job, err error) {
	if s.bus == nil {
		return
	}
	now := s.now()
	ev := NotificationEvent{SubscriptionID: j.sub.ID, Section: j.sub.Key.String(), Channel: s.sender.Name(), At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}
