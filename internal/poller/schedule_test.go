package poller

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   ScheduleKind
		source string
		every  time.Duration
	}{
		{name: "default duration", raw: "30s", kind: ScheduleInterval, source: "duration", every: 30 * time.Second},
		{name: "prefixed interval", raw: "interval:2m", kind: ScheduleInterval, source: "duration", every: 2 * time.Minute},
		{name: "hhmm", raw: "00:05", kind: ScheduleInterval, source: "hhmm", every: 5 * time.Minute},
		{name: "cron with seconds", raw: "*/30 * * * * *", kind: ScheduleCron, source: "cron"},
		{name: "cron five fields", raw: "*/5 * * * *", kind: ScheduleCron, source: "cron"},
		{name: "descriptor", raw: "@every 45s", kind: ScheduleCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 * * * *", kind: ScheduleCron, source: "cron"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if tt.kind == ScheduleInterval && got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
			if _, err := got.CronSchedule(); err != nil {
				t.Fatalf("CronSchedule: %v", err)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "500ms", "00:00", "01:75", "cron:", "* * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) accepted", raw)
		}
	}
}
