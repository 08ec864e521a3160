// Package notifier turns SeatOpened transitions into one notification per
// active subscription.
//
// # Delivery guarantee
//
// A subscription is marked fired in the registry before anything is sent.
// Only the caller that wins MarkFired dispatches, so each subscription is
// notified at most once. A send that keeps failing after retries is logged
// and recorded in history; the subscription stays fired.
//
// # Pipeline
//
// When started, dispatches go through a bounded queue served by a worker
// pool, gated by a token-bucket limiter and retried with capped exponential
// backoff. When not started, HandleTransition dispatches inline.
//
// # History
//
// The service keeps a bounded in-memory history of dispatch outcomes for the
// HTTP API.
package notifier
