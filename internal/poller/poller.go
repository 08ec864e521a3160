// Package poller drives periodic fetches of every watched course and feeds
// the results through the tracker to the notifier.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/eventbus"
	"seatwatch/internal/upstream"
	logx "seatwatch/pkg/logx"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// Interval is a duration ("30s"), HH:MM interval or cron expression.
	Interval string
	Workers  int
}

const (
	DefaultInterval = "30s"
	defaultWorkers  = 4
)

type Fetcher interface {
	Fetch(ctx context.Context, key course.CourseKey) ([]upstream.Record, error)
}

type Observer interface {
	Observe(ctx context.Context, snap course.Snapshot) (*course.TransitionEvent, error)
}

type Notifier interface {
	HandleTransition(ctx context.Context, ev course.TransitionEvent) int
}

// KeySource supplies the working set. Refresh pulls in subscriptions other
// processes wrote to shared storage.
type KeySource interface {
	Refresh(ctx context.Context) (int, error)
	ActiveKeys() []course.SectionKey
}

// Report summarizes one poll cycle.
type Report struct {
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Courses     int           `json:"courses"`
	Fetched     int           `json:"fetched"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Transitions int           `json:"transitions"`
	Notified    int           `json:"notified"`
}

// FetchFailure is published on the bus when a course fetch fails.
type FetchFailure struct {
	Course string `json:"course"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

type Poller struct {
	fetch  Fetcher
	obs    Observer
	notify Notifier
	keys   KeySource
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu       sync.Mutex
	cfg      Config
	sched    ParsedSchedule
	cron     *cron.Cron
	entry    cron.EntryID
	job      cron.Job
	runCtx   context.Context
	cancel   context.CancelFunc
	stopping bool
	drain    chan struct{}
	ticks    sync.WaitGroup
	last     Report

	// inflight holds the courses currently being fetched. Entries are
	// removed when the fetch finishes, so it never outgrows the worker pool.
	imu      sync.Mutex
	inflight map[course.CourseKey]struct{}

	fatalOnce sync.Once
	fatal     chan error
}

func New(cfg Config, fetch Fetcher, obs Observer, notify Notifier, keys KeySource, bus eventbus.Bus, log logx.Logger) (*Poller, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, sched, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	return &Poller{
		fetch:  fetch,
		obs:    obs,
		notify: notify,
		keys:   keys,
		bus:    bus,
		log:    log,
		now:    time.Now,
		cfg:    cfg,
		sched:  sched,
		fatal:  make(chan error, 1),

		inflight: map[course.CourseKey]struct{}{},
	}, nil
}

func normalize(cfg Config) (Config, ParsedSchedule, error) {
	if cfg.Interval == "" {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	sched, err := ParseSchedule(cfg.Interval)
	if err != nil {
		return cfg, ParsedSchedule{}, fmt.Errorf("poller interval: %w", err)
	}
	return cfg, sched, nil
}

// Fatal delivers the error that stopped the poller (an unauthorized upstream).
func (p *Poller) Fatal() <-chan error { return p.fatal }

// Last returns the report of the most recent completed cycle.
func (p *Poller) Last() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Start schedules cycles and runs the first one immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	cs, err := p.sched.CronSchedule()
	if err != nil {
		return err
	}
	p.runCtx, p.cancel = context.WithCancel(ctx)
	p.stopping = false
	p.drain = make(chan struct{})

	cl := logx.CronLogger(p.log)
	p.cron = cron.New(cron.WithLogger(cl))
	p.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(p.tick))
	p.entry = p.cron.Schedule(cs, p.job)
	p.cron.Start()

	job := p.job
	go job.Run()

	p.log.Info("poller started", logx.String("schedule", p.sched.String()), logx.Int("workers", p.cfg.Workers))
	return nil
}

// Stop stops scheduling and tells the running cycle to launch no further
// courses. Fetches already in flight finish normally; if ctx ends first
// they are cancelled and Stop waits for them to unwind.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.cron == nil {
		p.mu.Unlock()
		return
	}
	c, cancel := p.cron, p.cancel
	p.stopping = true
	p.cron = nil
	close(p.drain)
	p.mu.Unlock()

	cronDone := c.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		p.ticks.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("poller stop timed out; cancelling in-flight fetches")
		cancel()
		<-done
	}
	cancel()
}

// Apply changes the interval or worker count at runtime.
func (p *Poller) Apply(cfg Config) error {
	cfg, sched, err := normalize(cfg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := sched != p.sched
	p.cfg, p.sched = cfg, sched
	if !changed || p.cron == nil {
		return nil
	}
	cs, err := sched.CronSchedule()
	if err != nil {
		return err
	}
	p.cron.Remove(p.entry)
	p.entry = p.cron.Schedule(cs, p.job)
	p.log.Info("poller schedule changed", logx.String("schedule", sched.String()))
	return nil
}

func (p *Poller) tick() {
	p.mu.Lock()
	if p.stopping || p.runCtx == nil {
		p.mu.Unlock()
		return
	}
	ctx := p.runCtx
	p.ticks.Add(1)
	p.mu.Unlock()
	defer p.ticks.Done()

	if _, err := p.RunOnce(ctx); err != nil && upstream.IsUnauthorized(err) {
		p.fatalOnce.Do(func() {
			p.log.Error("upstream rejected credentials; polling stopped", logx.Err(err))
			p.mu.Lock()
			if p.cron != nil {
				p.cron.Remove(p.entry)
			}
			p.mu.Unlock()
			p.fatal <- err
		})
	}
}

// RunOnce runs a single cycle over the current working set. It returns an
// Unauthorized upstream error if one occurred; other per-course failures
// are logged and counted.
func (p *Poller) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{Started: p.now()}
	if n, err := p.keys.Refresh(ctx); err != nil {
		p.log.Warn("subscription refresh failed; polling known set", logx.Err(err))
	} else if n > 0 {
		p.log.Info("new subscriptions picked up", logx.Int("count", n))
	}
	courses := groupCourses(p.keys.ActiveKeys())
	rep.Courses = len(courses)

	p.mu.Lock()
	workers := p.cfg.Workers
	drain := p.drain
	p.mu.Unlock()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		rmu      sync.Mutex
		fatalErr error
	)
	sem := make(chan struct{}, workers)

	for i, ck := range courses {
		if draining(drain) {
			rep.Skipped += len(courses) - i
			p.log.Info("poller stopping; remaining courses skipped", logx.Int("skipped", len(courses)-i))
			break
		}
		if !p.claim(ck) {
			rep.Skipped++
			p.log.Warn("course still in flight; skipping this cycle", logx.String("course", ck.String()))
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-cctx.Done():
			p.release(ck)
			rep.Skipped++
			continue
		case <-drain:
			p.release(ck)
			rep.Skipped++
			continue
		}
		wg.Add(1)
		go func(ck course.CourseKey) {
			defer wg.Done()
			defer func() { <-sem }()
			defer p.release(ck)

			res, err := p.pollCourse(cctx, ck)
			rmu.Lock()
			defer rmu.Unlock()
			rep.Transitions += res.transitions
			rep.Notified += res.notified
			if err != nil {
				rep.Failed++
				if upstream.IsUnauthorized(err) && fatalErr == nil {
					fatalErr = err
					cancel()
				}
				return
			}
			rep.Fetched++
		}(ck)
	}
	wg.Wait()

	rep.Duration = p.now().Sub(rep.Started)
	p.mu.Lock()
	p.last = rep
	p.mu.Unlock()

	p.log.Debug("poll cycle done",
		logx.Int("courses", rep.Courses),
		logx.Int("fetched", rep.Fetched),
		logx.Int("failed", rep.Failed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("transitions", rep.Transitions),
		logx.Duration("took", rep.Duration),
	)
	p.publish(eventbus.TypePollCycle, rep)
	return rep, fatalErr
}

type courseResult struct {
	transitions int
	notified    int
}

func (p *Poller) pollCourse(ctx context.Context, ck course.CourseKey) (courseResult, error) {
	var res courseResult
	start := p.now()
	recs, err := p.fetch.Fetch(ctx, ck)
	if err != nil {
		kind := upstream.KindOf(err)
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		p.log.Warn("fetch failed",
			logx.String("course", ck.String()),
			logx.String("kind", kind.String()),
			logx.Err(err),
		)
		p.publish(eventbus.TypeFetchFailed, FetchFailure{Course: ck.String(), Kind: kind.String(), Error: err.Error()})
		return res, err
	}

	observedAt := p.now()
	for _, r := range recs {
		snap := r.Snapshot(ck, observedAt)
		if snap.Key.Section == "" {
			continue
		}
		ev, err := p.obs.Observe(ctx, snap)
		if err != nil {
			p.log.Error("record snapshot failed", logx.String("section", snap.Key.String()), logx.Err(err))
			continue
		}
		if ev == nil {
			continue
		}
		res.transitions++
		p.log.Info("seat transition",
			logx.String("section", ev.Key.String()),
			logx.String("kind", string(ev.Kind)),
			logx.Int("available", ev.Snapshot.Available()),
		)
		p.publish(eventbus.TypeTransition, *ev)
		res.notified += p.notify.HandleTransition(ctx, *ev)
	}
	p.log.Debug("course polled", logx.String("course", ck.String()), logx.Int("sections", len(recs)), logx.Duration("took", p.now().Sub(start)))
	return res, nil
}

// claim marks ck in flight. It reports false if a fetch for ck is running.
func (p *Poller) claim(ck course.CourseKey) bool {
	p.imu.Lock()
	defer p.imu.Unlock()
	if _, busy := p.inflight[ck]; busy {
		return false
	}
	p.inflight[ck] = struct{}{}
	return true
}

func (p *Poller) release(ck course.CourseKey) {
	p.imu.Lock()
	delete(p.inflight, ck)
	p.imu.Unlock()
}

// draining reports whether Stop has been called. A nil channel (RunOnce
// outside Start) never drains.
func draining(drain <-chan struct{}) bool {
	select {
	case <-drain:
		return true
	default:
		return false
	}
}

func (p *Poller) publish(typ string, data any) {
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: typ, Time: p.now(), Data: data})
	}
}

// groupCourses reduces section keys to their distinct courses, sorted.
func groupCourses(keys []course.SectionKey) []course.CourseKey {
	seen := map[course.CourseKey]struct{}{}
	out := make([]course.CourseKey, 0, len(keys))
	for _, k := range keys {
		ck := k.Course()
		if _, ok := seen[ck]; ok {
			continue
		}
		seen[ck] = struct{}{}
		out = append(out, ck)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
