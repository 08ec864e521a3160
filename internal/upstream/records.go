package upstream

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"seatwatch/internal/course"
)

// Record is one class section as returned by /v3/ClassSchedules.
// Only fields seatwatch uses are decoded.
type Record struct {
	CourseID              string         `json:"courseId"`
	CourseOfferNumber     int            `json:"courseOfferNumber"`
	TermCode              flexString     `json:"termCode"`
	ClassSection          flexString     `json:"classSection"`
	ClassNumber           int            `json:"classNumber"`
	CourseComponent       string         `json:"courseComponent"`
	MaxEnrollmentCapacity int            `json:"maxEnrollmentCapacity"`
	EnrolledStudents      int            `json:"enrolledStudents"`
	ScheduleData          []ScheduleData `json:"scheduleData"`
	InstructorData        []Instructor   `json:"instructorData"`
}

type ScheduleData struct {
	LocationName               string `json:"locationName"`
	ClassMeetingStartTime      string `json:"classMeetingStartTime"`
	ClassMeetingEndTime        string `json:"classMeetingEndTime"`
	ClassMeetingDayPatternCode string `json:"classMeetingDayPatternCode"`
}

type Instructor struct {
	InstructorFirstName string `json:"instructorFirstName"`
	InstructorLastName  string `json:"instructorLastName"`
}

// Term is one entry of /v3/Terms.
type Term struct {
	TermCode  flexString `json:"termCode"`
	Name      string     `json:"name"`
	IsCurrent bool       `json:"isCurrent"`
}

// flexString decodes either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Snapshot normalizes a raw record into a course snapshot for the given course.
// Negative counts from upstream are clamped to zero.
func (r Record) Snapshot(c course.CourseKey, observedAt time.Time) course.Snapshot {
	snap := course.Snapshot{
		Key: course.SectionKey{
			Term:          c.Term,
			Subject:       c.Subject,
			CatalogNumber: c.CatalogNumber,
			Section:       course.NormalizeSection(string(r.ClassSection)),
		},
		Capacity:    clampNonNegative(r.MaxEnrollmentCapacity),
		Enrolled:    clampNonNegative(r.EnrolledStudents),
		ObservedAt:  observedAt,
		Component:   strings.TrimSpace(r.CourseComponent),
		ClassNumber: r.ClassNumber,
	}
	if len(r.ScheduleData) > 0 {
		sd := r.ScheduleData[0]
		snap.Location = strings.TrimSpace(sd.LocationName)
		snap.MeetingStart, _ = parseMeetingTime(sd.ClassMeetingStartTime)
		snap.MeetingEnd, _ = parseMeetingTime(sd.ClassMeetingEndTime)
	}
	return snap
}

// meetingLayouts covers RFC 3339 (with zone or trailing Z) and the zone-less
// form the API uses for wall-clock meeting times.
var meetingLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func parseMeetingTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range meetingLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (t Term) Code() string { return strings.TrimSpace(string(t.TermCode)) }

// SectionLabel returns the normalized section label of the record.
func (r Record) SectionLabel() string { return course.NormalizeSection(string(r.ClassSection)) }
