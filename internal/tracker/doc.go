// Package tracker keeps the last observed snapshot of every watched section
// and turns successive observations into seat transitions.
package tracker
