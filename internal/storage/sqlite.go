package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seatwatch/internal/course"
	logx "seatwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// snapshotDetail holds descriptive snapshot fields that are not part of the key or the diff.
type snapshotDetail struct {
	Component    string    `json:"component,omitempty"`
	ClassNumber  int       `json:"class_number,omitempty"`
	Location     string    `json:"location,omitempty"`
	MeetingStart time.Time `json:"meeting_start,omitempty"`
	MeetingEnd   time.Time `json:"meeting_end,omitempty"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer; this also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// Mutations must survive a crash right after the call returns.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSubscriptions(ctx context.Context) ([]course.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, term, subject, catalog_number, section, created_at, fired_at
		 FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []course.Subscription
	for rows.Next() {
		var (
			sub     course.Subscription
			created int64
			fired   sql.NullInt64
		)
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Key.Term, &sub.Key.Subject, &sub.Key.CatalogNumber,
			&sub.Key.Section, &created, &fired); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.CreatedAt = time.UnixMilli(created)
		if fired.Valid {
			t := time.UnixMilli(fired.Int64)
			sub.FiredAt = &t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertSubscription(ctx context.Context, sub course.Subscription) error {
	var fired any
	if sub.FiredAt != nil {
		fired = sub.FiredAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(id, email, term, subject, catalog_number, section, created_at, fired_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		sub.ID, sub.Email, sub.Key.Term, sub.Key.Subject, sub.Key.CatalogNumber, sub.Key.Section,
		sub.CreatedAt.UnixMilli(), fired,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *sqliteStore) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET fired_at = ? WHERE id = ? AND fired_at IS NULL`,
		at.UnixMilli(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark fired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark fired: %w", err)
	}
	return n == 1, nil
}

func (s *sqliteStore) LoadSnapshots(ctx context.Context) ([]course.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, subject, catalog_number, section, capacity, enrolled, observed_at, detail FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []course.Snapshot
	for rows.Next() {
		var (
			snap     course.Snapshot
			observed int64
			detail   sql.NullString
		)
		if err := rows.Scan(&snap.Key.Term, &snap.Key.Subject, &snap.Key.CatalogNumber, &snap.Key.Section,
			&snap.Capacity, &snap.Enrolled, &observed, &detail); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.ObservedAt = time.UnixMilli(observed)
		if detail.Valid && detail.String != "" {
			var d snapshotDetail
			if err := json.Unmarshal([]byte(detail.String), &d); err == nil {
				snap.Component = d.Component
				snap.ClassNumber = d.ClassNumber
				snap.Location = d.Location
				snap.MeetingStart = d.MeetingStart
				snap.MeetingEnd = d.MeetingEnd
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutSnapshot(ctx context.Context, snap course.Snapshot) error {
	detail, err := json.Marshal(snapshotDetail{
		Component:    snap.Component,
		ClassNumber:  snap.ClassNumber,
		Location:     snap.Location,
		MeetingStart: snap.MeetingStart,
		MeetingEnd:   snap.MeetingEnd,
	})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(term, subject, catalog_number, section, capacity, enrolled, observed_at, detail)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(term, subject, catalog_number, section) DO UPDATE SET
		   capacity=excluded.capacity, enrolled=excluded.enrolled,
		   observed_at=excluded.observed_at, detail=excluded.detail`,
		snap.Key.Term, snap.Key.Subject, snap.Key.CatalogNumber, snap.Key.Section,
		snap.Capacity, snap.Enrolled, snap.ObservedAt.UnixMilli(), string(detail),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
