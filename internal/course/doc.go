// Package course holds the seat-tracking domain types shared by every
// component: section keys, availability snapshots, subscriptions and the
// transition events that drive notifications.
package course
