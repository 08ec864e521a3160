package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/storage"
	logx "seatwatch/pkg/logx"
)

var (
	secA = course.NewSectionKey("1241", "CS", "135", "001")
	secB = course.NewSectionKey("1241", "CS", "135", "002")
)

func TestAddRejectsDuplicateActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(storage.NewMemory())

	first, err := r.Add(ctx, "a@example.com", secA)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.Add(ctx, "A@Example.com ", secA); !errors.Is(err, course.ErrDuplicateSubscription) {
		t.Fatalf("second add err = %v, want duplicate", err)
	}
	if got := r.List(); len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("list = %+v, want only the first entry", got)
	}

	// Different section is a different subscription.
	if _, err := r.Add(ctx, "a@example.com", secB); err != nil {
		t.Fatalf("add other section: %v", err)
	}
	if keys := r.ActiveKeys(); len(keys) != 2 {
		t.Fatalf("active keys = %v", keys)
	}
}

func TestMarkFiredIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(storage.NewMemory())
	sub, err := r.Add(ctx, "a@example.com", secA)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	won, err := r.MarkFired(ctx, sub.ID, time.Unix(10, 0))
	if err != nil || !won {
		t.Fatalf("first MarkFired = (%v, %v)", won, err)
	}
	won, err = r.MarkFired(ctx, sub.ID, time.Unix(11, 0))
	if err != nil || won {
		t.Fatalf("second MarkFired = (%v, %v), want false", won, err)
	}
	got, _ := r.Get(sub.ID)
	if got.FiredAt == nil || !got.FiredAt.Equal(time.Unix(10, 0)) {
		t.Fatalf("fired_at = %v", got.FiredAt)
	}
	if active := r.FindActiveByKey(secA); len(active) != 0 {
		t.Fatalf("active after fire = %+v", active)
	}
	if len(r.ActiveKeys()) != 0 {
		t.Fatalf("active keys after fire = %v", r.ActiveKeys())
	}

	// Watching again needs a fresh subscription.
	again, err := r.Add(ctx, "a@example.com", secA)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if again.ID == sub.ID {
		t.Fatalf("re-add reused id")
	}
}

func TestMarkFiredUnknownID(t *testing.T) {
	t.Parallel()

	won, err := NewRegistry(storage.NewMemory()).MarkFired(context.Background(), "nope", time.Now())
	if err != nil || won {
		t.Fatalf("MarkFired unknown = (%v, %v)", won, err)
	}
}

func TestConcurrentMarkFiredHasOneWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(storage.NewMemory())
	sub, err := r.Add(ctx, "a@example.com", secA)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.MarkFired(ctx, sub.ID, time.Now())
			if err != nil {
				t.Errorf("MarkFired: %v", err)
				return
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := wins.Load(); n != 1 {
		t.Fatalf("winners = %d, want 1", n)
	}
}

func TestFindActiveByKeyOrdersByCreation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(storage.NewMemory())
	base := time.Unix(1000, 0)
	step := 0
	r.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for _, e := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		if _, err := r.Add(ctx, e, secA); err != nil {
			t.Fatalf("add %s: %v", e, err)
		}
	}
	got := r.FindActiveByKey(secA)
	if len(got) != 3 || got[0].Email != "c@example.com" || got[2].Email != "b@example.com" {
		t.Fatalf("order = %+v", got)
	}
}

func TestRegistryReloadsFromDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs")
	db, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRegistry(db)
	fired, _ := r.Add(ctx, "a@example.com", secA)
	kept, _ := r.Add(ctx, "b@example.com", secA)
	if won, err := r.MarkFired(ctx, fired.ID, time.Unix(5, 0)); err != nil || !won {
		t.Fatalf("MarkFired = (%v, %v)", won, err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	r2 := NewRegistry(db2)
	if err := r2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	active := r2.FindActiveByKey(secA)
	if len(active) != 1 || active[0].ID != kept.ID {
		t.Fatalf("active after reload = %+v", active)
	}
	if _, err := r2.Add(ctx, "b@example.com", secA); !errors.Is(err, course.ErrDuplicateSubscription) {
		t.Fatalf("duplicate after reload err = %v", err)
	}
	if won, _ := r2.MarkFired(ctx, fired.ID, time.Now()); won {
		t.Fatalf("fired subscription fired again after reload")
	}
}

func TestRefreshPicksUpOtherWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.db")
	open := func() storage.Store {
		db, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	}
	daemon := NewRegistry(open())
	cli := NewRegistry(open())

	sub, err := cli.Add(ctx, "a@example.com", secA)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if keys := daemon.ActiveKeys(); len(keys) != 0 {
		t.Fatalf("keys before refresh = %v", keys)
	}
	if n, err := daemon.Refresh(ctx); err != nil || n != 1 {
		t.Fatalf("Refresh = (%d, %v), want (1, nil)", n, err)
	}
	if keys := daemon.ActiveKeys(); len(keys) != 1 || keys[0] != secA {
		t.Fatalf("keys after refresh = %v", keys)
	}
	if n, _ := daemon.Refresh(ctx); n != 0 {
		t.Fatalf("second refresh added %d", n)
	}

	if won, err := daemon.MarkFired(ctx, sub.ID, time.Unix(5, 0)); err != nil || !won {
		t.Fatalf("MarkFired = (%v, %v)", won, err)
	}
	if _, err := cli.Refresh(ctx); err != nil {
		t.Fatalf("cli refresh: %v", err)
	}
	if got, _ := cli.Get(sub.ID); got.Active() {
		t.Fatalf("fired elsewhere but still active: %+v", got)
	}
	if _, err := cli.Add(ctx, "a@example.com", secA); err != nil {
		t.Fatalf("re-subscribe after fire: %v", err)
	}
}
