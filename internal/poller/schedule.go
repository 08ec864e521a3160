package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind is either a cron expression or a fixed interval.
type ScheduleKind int

const (
	ScheduleInterval ScheduleKind = iota
	ScheduleCron
)

// ParsedSchedule is a normalized poll schedule.
//
// Supported forms:
//   - Interval duration: "30s", "2m"
//   - Interval HH:MM: "00:05" (five minutes)
//   - Cron: "*/30 * * * * *" (seconds optional), "@every 45s", "@hourly"
//
// Optional prefixes "cron:" and "interval:" force the interpretation.
type ParsedSchedule struct {
	Kind   ScheduleKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule parses raw and validates cron expressions eagerly.
func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	default:
		return parseInterval(s)
	}
}

// CronSchedule returns the robfig/cron schedule for p.
func (p ParsedSchedule) CronSchedule() (cron.Schedule, error) {
	if p.Kind == ScheduleCron {
		return cronParser.Parse(p.Cron)
	}
	return cron.Every(p.Every), nil
}

func (p ParsedSchedule) String() string {
	if p.Kind == ScheduleCron {
		return p.Cron
	}
	return p.Every.String()
}

func parseCron(expr string) (ParsedSchedule, error) {
	if expr == "" {
		return ParsedSchedule{}, fmt.Errorf("cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedSchedule{Kind: ScheduleCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedSchedule, error) {
	if v == "" {
		return ParsedSchedule{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		var hh, mm int
		_, _ = fmt.Sscanf(m[1], "%d", &hh)
		_, _ = fmt.Sscanf(m[2], "%d", &mm)
		if mm > 59 {
			return ParsedSchedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedSchedule{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSchedule{Kind: ScheduleInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid schedule %q (use a duration like '30s', HH:MM like '00:05', or a cron expression)", v)
	}
	if d < time.Second {
		return ParsedSchedule{}, fmt.Errorf("interval must be at least 1s")
	}
	return ParsedSchedule{Kind: ScheduleInterval, Every: d, Source: "duration"}, nil
}
