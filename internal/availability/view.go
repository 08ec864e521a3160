package availability

import (
	"strings"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/upstream"
)

// SectionView is one section formatted for display.
type SectionView struct {
	Section     string        `json:"section"`
	Component   string        `json:"component"`
	ClassNumber int           `json:"classNumber"`
	Capacity    int           `json:"capacity"`
	Enrolled    int           `json:"enrolled"`
	Available   int           `json:"available"`
	Status      course.Status `json:"status"`
	Location    string        `json:"location"`
	Time        string        `json:"time"`
}

const meetingLayout = "03:04 PM"

func viewOf(s course.Snapshot) SectionView {
	v := SectionView{
		Section:     s.Key.Section,
		Component:   orNA(s.Component),
		ClassNumber: s.ClassNumber,
		Capacity:    s.Capacity,
		Enrolled:    s.Enrolled,
		Available:   s.Available(),
		Status:      s.Status(),
		Location:    orNA(s.Location),
		Time:        "N/A",
	}
	if !s.MeetingStart.IsZero() && !s.MeetingEnd.IsZero() {
		v.Time = s.MeetingStart.Format(meetingLayout) + " - " + s.MeetingEnd.Format(meetingLayout)
	}
	return v
}

func viewsOf(ck course.CourseKey, recs []upstream.Record, section string) []SectionView {
	out := make([]SectionView, 0, len(recs))
	for _, r := range recs {
		snap := r.Snapshot(ck, time.Time{})
		if section != "" && snap.Key.Section != section {
			continue
		}
		out = append(out, viewOf(snap))
	}
	return out
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
