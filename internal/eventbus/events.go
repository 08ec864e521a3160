package eventbus

// Event types published by seatwatch components.
const (
	TypePollCycle       = "poller.cycle"
	TypeFetchFailed     = "poller.fetch_failed"
	TypeTransition      = "tracker.transition"
	TypeSubscriptionNew = "subscription.created"
	TypeNotifySent      = "notifier.sent"
	TypeNotifyFailed    = "notifier.failed"
	TypeConfigReloaded  = "config.reloaded"
)
