// Package app wires configuration, storage, the poll loop, the notifier and
// the HTTP API into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"seatwatch/internal/availability"
	"seatwatch/internal/config"
	"seatwatch/internal/eventbus"
	"seatwatch/internal/httpapi"
	"seatwatch/internal/notifier"
	"seatwatch/internal/poller"
	"seatwatch/internal/runtime/supervisor"
	"seatwatch/internal/storage"
	"seatwatch/internal/subscription"
	"seatwatch/internal/tracker"
	"seatwatch/internal/transport"
	"seatwatch/internal/upstream"
	logx "seatwatch/pkg/logx"
)

const loadTimeout = 10 * time.Second

type App struct {
	cfgm *config.Manager // nil when running without a config file

	cmu sync.RWMutex
	cfg *config.Config

	sup  *supervisor.Supervisor
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	driver string
	up     *upstream.Client
	reg    *subscription.Registry
	track  *tracker.Tracker
	sender transport.Sender
	notif  *notifier.Service
	poll   *poller.Poller
	avail  *availability.Service
	api    *httpapi.Server
}

// New loads the config at cfgPath (defaults plus environment when empty),
// opens storage and restores persisted state. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	if strings.TrimSpace(cfgPath) == "" {
		cfg = config.Default()
		if err := config.OverlayEnv(cfg); err != nil {
			return nil, err
		}
	} else {
		cfgm = config.NewManager(cfgPath)
		c, err := cfgm.Load()
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a, err := build(cfg, log.With(logx.String("comp", "app")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

func build(cfg *config.Config, log logx.Logger) (*App, error) {
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	reg := subscription.NewRegistry(store)
	if err := reg.Load(ctx); err != nil {
		return fail(fmt.Errorf("load subscriptions: %w", err))
	}
	snaps := tracker.NewStore(store)
	if err := snaps.Load(ctx); err != nil {
		return fail(fmt.Errorf("load snapshots: %w", err))
	}
	track := tracker.New(snaps)
	log.Debug("state restored",
		logx.String("driver", sc.Driver),
		logx.Int("subscriptions", len(reg.List())),
		logx.Int("snapshots", snaps.Len()),
	)

	httpClient := &http.Client{}
	ucfg, err := mapUpstreamConfig(cfg)
	if err != nil {
		return fail(err)
	}
	up := upstream.New(ucfg, httpClient, log.With(logx.String("comp", "upstream")))

	sender, err := newSender(cfg, httpClient, log.With(logx.String("comp", "sender")))
	if err != nil {
		return fail(fmt.Errorf("sender: %w", err))
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}
	notif := notifier.New(ncfg, reg, sender, bus, log.With(logx.String("comp", "notifier")))

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	poll, err := poller.New(pcfg, up, track, notif, reg, bus, log.With(logx.String("comp", "poller")))
	if err != nil {
		return fail(err)
	}

	avail := availability.New(up, reg, bus, log.With(logx.String("comp", "availability")))

	a := &App{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		store:  store,
		driver: sc.Driver,
		up:     up,
		reg:    reg,
		track:  track,
		sender: sender,
		notif:  notif,
		poll:   poll,
		avail:  avail,
	}

	hcfg, enabled, err := mapHTTPConfig(cfg)
	if err != nil {
		return fail(err)
	}
	if enabled {
		a.api = httpapi.New(hcfg, avail, notif, log)
	}
	return a, nil
}

func (a *App) Logger() logx.Logger                 { return a.log }
func (a *App) Bus() eventbus.Bus                   { return a.bus }
func (a *App) Upstream() *upstream.Client          { return a.up }
func (a *App) Registry() *subscription.Registry    { return a.reg }
func (a *App) Availability() *availability.Service { return a.avail }
func (a *App) Notifier() *notifier.Service         { return a.notif }
func (a *App) Poller() *poller.Poller              { return a.poll }

// SharedStorage reports whether other processes may write to the store
// while this one runs. Only sqlite qualifies: the file journal assumes a
// single writer and memory is private.
func (a *App) SharedStorage() bool { return a.driver == "sqlite" }

func (a *App) Config() *config.Config {
	a.cmu.RLock()
	defer a.cmu.RUnlock()
	return a.cfg
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.notif.Start(sctx)
	if err := a.poll.Start(sctx); err != nil {
		return err
	}

	a.sup.Go("poller.fatal", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case err := <-a.poll.Fatal():
			a.log.Error("poll loop stopped", logx.Err(err))
			return fmt.Errorf("poller: %w", err)
		}
	})

	if a.api != nil {
		a.sup.Go("http.api", func(c context.Context) error { return a.api.Run(c) })
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log)
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return nil
				case newCfg, ok := <-sub:
					if !ok {
						return nil
					}
					a.applyConfig(latest(sub, newCfg))
				}
			}
		})
		a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	}

	a.log.Info("app started",
		logx.String("sender", a.sender.Name()),
		logx.Bool("http", a.api != nil),
		logx.Int("watched", len(a.reg.ActiveKeys())),
	)
	return nil
}

// latest drains sub and returns the newest config seen.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

// applyConfig hot-applies logging, poller and notifier settings. Other
// sections are reported as needing a restart.
func (a *App) applyConfig(newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(a.Config(), newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	if a.logs != nil {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}

	if pcfg, err := mapPollerConfig(newCfg); err != nil {
		a.log.Warn("invalid poller config; keeping previous", logx.Err(err))
	} else if err := a.poll.Apply(pcfg); err != nil {
		a.log.Warn("poller reconfigure failed", logx.Err(err))
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.cmu.Lock()
	a.cfg = newCfg
	a.cmu.Unlock()
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
}

// Stop halts polling, drains pending notifications, then releases storage.
// Each step is bounded; a step that overruns is logged and left behind.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.step(ctx, "poller", 5*time.Second, func(c context.Context) error { a.poll.Stop(c); return nil })
	a.step(ctx, "notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Close releases storage and log files for an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
