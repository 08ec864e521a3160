package course

import (
	"fmt"
	"strconv"
	"strings"
)

// CourseKey identifies one upstream fetch unit: every section of a course in a term.
type CourseKey struct {
	Term          string `json:"term"`
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalog_number"`
}

func (k CourseKey) String() string {
	return k.Term + "/" + k.Subject + "/" + k.CatalogNumber
}

// SectionKey identifies one monitored class section. It is comparable and
// used directly as a map key; build it with NewSectionKey so fields are normalized.
type SectionKey struct {
	Term          string `json:"term"`
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalog_number"`
	Section       string `json:"section"`
}

func NewCourseKey(term, subject, catalog string) CourseKey {
	return CourseKey{
		Term:          strings.TrimSpace(term),
		Subject:       strings.ToUpper(strings.TrimSpace(subject)),
		CatalogNumber: strings.ToUpper(strings.TrimSpace(catalog)),
	}
}

func NewSectionKey(term, subject, catalog, section string) SectionKey {
	c := NewCourseKey(term, subject, catalog)
	return SectionKey{
		Term:          c.Term,
		Subject:       c.Subject,
		CatalogNumber: c.CatalogNumber,
		Section:       NormalizeSection(section),
	}
}

func (k SectionKey) Course() CourseKey {
	return CourseKey{Term: k.Term, Subject: k.Subject, CatalogNumber: k.CatalogNumber}
}

func (k SectionKey) String() string {
	return k.Course().String() + "#" + k.Section
}

// NormalizeSection zero-pads purely numeric labels to three digits ("1" -> "001")
// so user input and upstream integers compare equal. Other labels are upper-cased.
func NormalizeSection(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return fmt.Sprintf("%03d", n)
	}
	return s
}
