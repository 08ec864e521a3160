package transport

import (
	"context"

	logx "seatwatch/pkg/logx"
)

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("notification",
		logx.String("subscription", m.SubscriptionID),
		logx.String("to", m.To),
		logx.String("section", m.Key.String()),
		logx.Int("available", m.Snapshot.Available()),
		logx.String("subject", m.Subject),
	)
	return nil
}
