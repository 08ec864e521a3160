// Package storage is the durable backing for the subscription registry and
// the section state store.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "file":   JSON Lines journal + periodic snapshot
//   - "memory": process-lifetime only (tests, dry runs)
//
// Every mutation is written synchronously; callers publish in-memory state
// only after the write succeeded.
package storage
