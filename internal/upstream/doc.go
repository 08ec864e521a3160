// Package upstream is the client for the University of Waterloo OpenData v3
// class schedule API.
//
// Failures are classified into Transient (retried here with bounded, jittered
// exponential backoff), Permanent (surfaced immediately) and Unauthorized
// (surfaced immediately; callers treat it as fatal for the poll loop).
package upstream
