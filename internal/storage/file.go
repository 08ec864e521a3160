package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"seatwatch/internal/course"
	logx "seatwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic full state)
//   - <prefix>.journal.jsonl (append-only journal, fsynced per record)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	state  fileState
	writes int
}

type fileState struct {
	Subscriptions map[string]course.Subscription `json:"subscriptions"`
	Snapshots     map[string]course.Snapshot     `json:"snapshots"`
}

type journalRecord struct {
	Op       string               `json:"op"` // "sub" | "fired" | "snap"
	Sub      *course.Subscription `json:"sub,omitempty"`
	ID       string               `json:"id,omitempty"`
	FiredAt  int64                `json:"fired_at,omitempty"`
	Snapshot *course.Snapshot     `json:"snapshot,omitempty"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := fileState{
		Subscriptions: map[string]course.Subscription{},
		Snapshots:     map[string]course.Snapshot{},
	}
	if err := loadFileSnapshot(snapPath, &st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, &st, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		state:        st,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) LoadSubscriptions(ctx context.Context) ([]course.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]course.Subscription, 0, len(s.state.Subscriptions))
	for _, sub := range s.state.Subscriptions {
		out = append(out, sub)
	}
	sortSubscriptions(out)
	return out, nil
}

func (s *fileStore) InsertSubscription(ctx context.Context, sub course.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.state.Subscriptions {
		if cur.Active() && cur.Email == sub.Email && cur.Key == sub.Key {
			return ErrConflict
		}
	}
	return s.appendLocked(journalRecord{Op: "sub", Sub: &sub})
}

func (s *fileStore) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.Subscriptions[id]
	if !ok || !sub.Active() {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: "fired", ID: id, FiredAt: at.UnixMilli()}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) LoadSnapshots(ctx context.Context) ([]course.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]course.Snapshot, 0, len(s.state.Snapshots))
	for _, snap := range s.state.Snapshots {
		out = append(out, snap)
	}
	return out, nil
}

func (s *fileStore) PutSnapshot(ctx context.Context, snap course.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: "snap", Snapshot: &snap})
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	applyRecord(&s.state, r)
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact; the journal alone is still authoritative.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("storage compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadFileSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	for k, v := range st.Subscriptions {
		out.Subscriptions[k] = v
	}
	for k, v := range st.Snapshots {
		out.Snapshots[k] = v
	}
	return nil
}

func replayJournal(path string, out *fileState, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn final line after a crash is expected; skip it.
			log.Warn("storage journal: skipping bad record", logx.Err(err))
			continue
		}
		applyRecord(out, r)
	}
	return sc.Err()
}

func applyRecord(st *fileState, r journalRecord) {
	switch r.Op {
	case "sub":
		if r.Sub != nil && r.Sub.ID != "" {
			st.Subscriptions[r.Sub.ID] = *r.Sub
		}
	case "fired":
		sub, ok := st.Subscriptions[r.ID]
		if ok && sub.Active() {
			t := time.UnixMilli(r.FiredAt)
			sub.FiredAt = &t
			st.Subscriptions[r.ID] = sub
		}
	case "snap":
		if r.Snapshot != nil {
			st.Snapshots[r.Snapshot.Key.String()] = *r.Snapshot
		}
	}
}
