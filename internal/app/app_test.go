package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"seatwatch/internal/config"
	"seatwatch/internal/notifier"
	"seatwatch/internal/upstream"
)

// fakeOpenData serves one LEC section of CS 135 whose enrolment can be
// changed between polls.
type fakeOpenData struct {
	enrolled atomic.Int64
	calls    atomic.Int64
}

func (f *fakeOpenData) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.Header.Get("x-api-key") != "k" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.URL.Path != "/v3/ClassSchedules/1249/CS/135" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `[{"classSection":1,"classNumber":5421,"courseComponent":"LEC","maxEnrollmentCapacity":10,"enrolledStudents":%d}]`, f.enrolled.Load())
}

func writeConfig(t *testing.T, dir, baseURL, apiKey string) string {
	t.Helper()
	body := fmt.Sprintf(`
upstream:
  base_url: %s
  api_key: %q
  retry_max: 1
poller:
  interval: 1h
storage:
  driver: file
  path: %s
logging:
  level: error
`, baseURL, apiKey, filepath.Join(dir, "state.json"))
	p := filepath.Join(dir, "seatwatch.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"defaults", func(c *config.Config) {}, ""},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"file log without path", func(c *config.Config) { c.Logging.File.Enabled = true }, "logging.file.path"},
		{"bad interval", func(c *config.Config) { c.Poller.Interval = "every so often" }, "poller.interval"},
		{"negative workers", func(c *config.Config) { c.Poller.Workers = -1 }, "poller.workers"},
		{"bad upstream timeout", func(c *config.Config) { c.Upstream.Timeout = "soon" }, "upstream.timeout"},
		{"negative notifier retries", func(c *config.Config) { c.Notifier.RetryMax = -1 }, "notifier"},
		{"sqlite without path", func(c *config.Config) { c.Storage.Driver = "sqlite" }, "storage.path"},
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad http timeout", func(c *config.Config) { c.HTTP.ReadTimeout = "-1s" }, "http.read_timeout"},
		{"unknown sender", func(c *config.Config) { c.Sender.Kind = "pigeon" }, "sender.kind"},
		{"email without host", func(c *config.Config) { c.Sender.Kind = "email" }, "smtp host"},
		{"telegram without chat", func(c *config.Config) {
			c.Sender.Kind = "telegram"
			c.Sender.Telegram.Token = "123:abc"
		}, "chat_id"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestSeatOpeningNotifiesOnceAndPersists(t *testing.T) {
	t.Setenv("UWATERLOO_API_KEY", "")
	od := &fakeOpenData{}
	od.enrolled.Store(10)
	srv := httptest.NewServer(od)
	defer srv.Close()

	dir := t.TempDir()
	path := writeConfig(t, dir, srv.URL, "k")
	ctx := context.Background()

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Availability().Subscribe(ctx, "a@uwaterloo.ca", "1249", "cs", "135", "1")
	if err != nil || res.Subscription == nil {
		t.Fatalf("Subscribe: %+v, %v", res, err)
	}
	id := res.Subscription.ID

	if _, err := a.Poller().RunOnce(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if n := len(a.Notifier().History()); n != 0 {
		t.Fatalf("first observation notified %d times", n)
	}

	od.enrolled.Store(9)
	if _, err := a.Poller().RunOnce(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if _, err := a.Poller().RunOnce(ctx); err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	hist := a.Notifier().History()
	if len(hist) != 1 || hist[0].Outcome != notifier.OutcomeSent || hist[0].SubscriptionID != id {
		t.Fatalf("history = %+v", hist)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	sub, ok := b.Registry().Get(id)
	if !ok || sub.FiredAt == nil {
		t.Fatalf("subscription after reopen = %+v, %v", sub, ok)
	}
	if keys := b.Registry().ActiveKeys(); len(keys) != 0 {
		t.Fatalf("active keys = %v", keys)
	}
}

func TestStartStopsOnRejectedCredentials(t *testing.T) {
	t.Setenv("UWATERLOO_API_KEY", "")
	od := &fakeOpenData{}
	srv := httptest.NewServer(od)
	defer srv.Close()

	path := writeConfig(t, t.TempDir(), srv.URL, "wrong")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Availability().Subscribe(context.Background(), "a@uwaterloo.ca", "1249", "CS", "135", "001"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after unauthorized response")
	}
	if !upstream.IsUnauthorized(a.Err()) {
		t.Fatalf("Err = %v, want unauthorized", a.Err())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopUnauthorized); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplyConfigHotReloadsPoller(t *testing.T) {
	t.Setenv("UWATERLOO_API_KEY", "")
	path := writeConfig(t, t.TempDir(), "http://127.0.0.1:1", "k")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	next := *a.Config()
	next.Poller.Interval = "5m"
	next.Notifier.RetryMax = 1
	a.applyConfig(&next)

	if got := a.Config().Poller.Interval; got != "5m" {
		t.Fatalf("interval = %q", got)
	}

	same := *a.Config()
	a.applyConfig(&same)
	if a.Config() != &next {
		t.Fatal("no-op reload replaced the config")
	}
}
