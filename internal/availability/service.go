package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"seatwatch/internal/course"
	"seatwatch/internal/eventbus"
	"seatwatch/internal/upstream"
	logx "seatwatch/pkg/logx"
)

type Upstream interface {
	Fetch(ctx context.Context, key course.CourseKey) ([]upstream.Record, error)
	CurrentTerm(ctx context.Context) (upstream.Term, error)
}

type Registry interface {
	Add(ctx context.Context, email string, key course.SectionKey) (course.Subscription, error)
}

type Outcome string

const (
	Created   Outcome = "created"
	Duplicate Outcome = "duplicate"
	Invalid   Outcome = "invalid"
)

// SubscribeResult reports how a Subscribe call was resolved.
type SubscribeResult struct {
	Outcome      Outcome               `json:"outcome"`
	Subscription *course.Subscription  `json:"subscription,omitempty"`
	Problems     []course.FieldProblem `json:"problems,omitempty"`
}

type Service struct {
	up  Upstream
	reg Registry
	bus eventbus.Bus
	log logx.Logger
}

func New(up Upstream, reg Registry, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{up: up, reg: reg, bus: bus, log: log}
}

// CheckAvailability fetches the course now and returns its sections, filtered
// to section when it is non-empty. An empty term resolves to the current term.
// A course with no sections (or no matching section) yields course.ErrNotFound.
func (s *Service) CheckAvailability(ctx context.Context, term, subject, catalog, section string) ([]SectionView, error) {
	term, err := s.ResolveTerm(ctx, term)
	if err != nil {
		return nil, err
	}

	var v course.ValidationError
	course.ValidateCourse(&v, term, subject, catalog)
	if strings.TrimSpace(section) != "" {
		course.ValidateSection(&v, section)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	ck := course.NewCourseKey(term, subject, catalog)
	recs, err := s.up.Fetch(ctx, ck)
	if err != nil {
		if upstream.KindOf(err) == upstream.Permanent && isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ck, course.ErrNotFound)
		}
		return nil, err
	}

	filter := ""
	if strings.TrimSpace(section) != "" {
		filter = course.NormalizeSection(section)
	}
	views := viewsOf(ck, recs, filter)
	if len(views) == 0 {
		return nil, fmt.Errorf("%s: %w", ck, course.ErrNotFound)
	}
	return views, nil
}

// ResolveTerm returns term trimmed, or the current term code when it is empty.
func (s *Service) ResolveTerm(ctx context.Context, term string) (string, error) {
	if term = strings.TrimSpace(term); term != "" {
		return term, nil
	}
	t, err := s.up.CurrentTerm(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve current term: %w", err)
	}
	return t.Code(), nil
}

// Subscribe validates the request and registers a subscription. Invalid input
// and duplicates are outcomes, not errors; the error is for storage failures.
func (s *Service) Subscribe(ctx context.Context, email, term, subject, catalog, section string) (SubscribeResult, error) {
	var v course.ValidationError
	course.ValidateEmail(&v, email)
	course.ValidateCourse(&v, term, subject, catalog)
	course.ValidateSection(&v, section)
	if len(v.Problems) > 0 {
		return SubscribeResult{Outcome: Invalid, Problems: v.Problems}, nil
	}

	key := course.NewSectionKey(term, subject, catalog, section)
	sub, err := s.reg.Add(ctx, email, key)
	switch {
	case errors.Is(err, course.ErrDuplicateSubscription):
		return SubscribeResult{Outcome: Duplicate}, nil
	case err != nil:
		return SubscribeResult{}, err
	}

	s.log.Info("subscription created", logx.String("id", sub.ID), logx.String("section", key.String()))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSubscriptionNew, Data: sub})
	}
	return SubscribeResult{Outcome: Created, Subscription: &sub}, nil
}

func isNotFound(err error) bool {
	var ue *upstream.Error
	return errors.As(err, &ue) && ue.Status == 404
}
