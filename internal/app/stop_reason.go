package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopUnknown       StopReason = "unknown"
	StopSIGINT        StopReason = "sigint"
	StopSIGTERM       StopReason = "sigterm"
	StopFatalError    StopReason = "fatal_error"
	StopUnauthorized  StopReason = "upstream_unauthorized"
	StopCommandFinish StopReason = "command_finished"
)
