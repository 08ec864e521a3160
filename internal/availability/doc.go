// Package availability implements the two user-facing operations: a
// synchronous availability check and subscribing to a section.
package availability
