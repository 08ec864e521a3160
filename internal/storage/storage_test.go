package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"seatwatch/internal/course"
	logx "seatwatch/pkg/logx"
)

func openDrivers(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Store{
		"memory": func() Store { return NewMemory() },
		"sqlite": func() Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "seatwatch.db"), BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
		"file": func() Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "file", "seatwatch")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
	}
}

func sub(id, email string, key course.SectionKey, at time.Time) course.Subscription {
	return course.Subscription{ID: id, Email: email, Key: key, CreatedAt: at}
}

func TestStoreSubscriptionContract(t *testing.T) {
	ctx := context.Background()
	key := course.NewSectionKey("1251", "CS", "136", "001")
	now := time.UnixMilli(time.Now().UnixMilli())

	for name, open := range openDrivers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			if err := st.InsertSubscription(ctx, sub("a", "a@x.io", key, now)); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if err := st.InsertSubscription(ctx, sub("b", "a@x.io", key, now)); !errors.Is(err, ErrConflict) {
				t.Fatalf("duplicate insert err = %v, want ErrConflict", err)
			}

			ok, err := st.MarkFired(ctx, "a", now.Add(time.Minute))
			if err != nil || !ok {
				t.Fatalf("MarkFired first = %v, %v", ok, err)
			}
			ok, err = st.MarkFired(ctx, "a", now.Add(2*time.Minute))
			if err != nil || ok {
				t.Fatalf("MarkFired second = %v, %v; want false", ok, err)
			}
			if ok, _ := st.MarkFired(ctx, "missing", now); ok {
				t.Fatal("MarkFired on unknown id succeeded")
			}

			// A fired subscription no longer blocks a fresh one.
			if err := st.InsertSubscription(ctx, sub("c", "a@x.io", key, now.Add(time.Second))); err != nil {
				t.Fatalf("resubscribe after fire: %v", err)
			}

			subs, err := st.LoadSubscriptions(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(subs) != 2 {
				t.Fatalf("len(subs) = %d, want 2", len(subs))
			}
			if subs[0].ID != "a" || subs[0].FiredAt == nil || !subs[0].FiredAt.Equal(now.Add(time.Minute)) {
				t.Fatalf("subs[0] = %+v", subs[0])
			}
			if subs[1].ID != "c" || subs[1].FiredAt != nil || subs[1].Key != key {
				t.Fatalf("subs[1] = %+v", subs[1])
			}
		})
	}
}

func TestStoreSnapshotsUpsert(t *testing.T) {
	ctx := context.Background()
	key := course.NewSectionKey("1251", "CS", "136", "001")
	now := time.UnixMilli(time.Now().UnixMilli())

	for name, open := range openDrivers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			first := course.Snapshot{Key: key, Capacity: 10, Enrolled: 10, ObservedAt: now, Location: "MC 2065"}
			second := course.Snapshot{Key: key, Capacity: 10, Enrolled: 9, ObservedAt: now.Add(time.Minute), Location: "MC 2065"}
			if err := st.PutSnapshot(ctx, first); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := st.PutSnapshot(ctx, second); err != nil {
				t.Fatalf("put: %v", err)
			}
			snaps, err := st.LoadSnapshots(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(snaps) != 1 {
				t.Fatalf("len(snaps) = %d, want 1", len(snaps))
			}
			got := snaps[0]
			if got.Enrolled != 9 || got.Location != "MC 2065" || !got.ObservedAt.Equal(second.ObservedAt) {
				t.Fatalf("snapshot = %+v", got)
			}
		})
	}
}

func TestPersistentDriversSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := course.NewSectionKey("1251", "MATH", "135", "002")
	now := time.UnixMilli(time.Now().UnixMilli())

	for _, cfg := range []Config{
		{Driver: "sqlite", Path: filepath.Join(dir, "db", "seatwatch.db")},
		{Driver: "file", Path: filepath.Join(dir, "journal", "seatwatch")},
	} {
		cfg := cfg
		t.Run(cfg.Driver, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if err := st.InsertSubscription(ctx, sub("s1", "z@x.io", key, now)); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if _, err := st.MarkFired(ctx, "s1", now); err != nil {
				t.Fatalf("fire: %v", err)
			}
			if err := st.PutSnapshot(ctx, course.Snapshot{Key: key, Capacity: 3, Enrolled: 1, ObservedAt: now}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			subs, _ := st.LoadSubscriptions(ctx)
			if len(subs) != 1 || subs[0].FiredAt == nil {
				t.Fatalf("subs after reopen = %+v", subs)
			}
			snaps, _ := st.LoadSnapshots(ctx)
			if len(snaps) != 1 || snaps[0].Capacity != 3 {
				t.Fatalf("snaps after reopen = %+v", snaps)
			}
		})
	}
}

func TestFileStoreCompaction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seatwatch")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := course.NewSectionKey("1251", "CS", "136", "001")
	base := time.UnixMilli(time.Now().UnixMilli())
	for i := 0; i < compactEvery+5; i++ {
		if err := st.PutSnapshot(ctx, course.Snapshot{Key: key, Capacity: 10, Enrolled: i % 11, ObservedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	snaps, _ := st.LoadSnapshots(ctx)
	want := (compactEvery + 4) % 11
	if len(snaps) != 1 || snaps[0].Enrolled != want {
		t.Fatalf("snaps = %+v, want enrolled %d", snaps, want)
	}
}

func TestMarkFiredConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, open := range openDrivers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			key := course.NewSectionKey("1251", "CS", "246", "001")
			if err := st.InsertSubscription(ctx, sub("race", "r@x.io", key, time.Now())); err != nil {
				t.Fatalf("insert: %v", err)
			}
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := st.MarkFired(ctx, "race", time.Now())
					if err != nil {
						t.Errorf("MarkFired: %v", err)
						return
					}
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("wins = %d, want 1", wins)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
