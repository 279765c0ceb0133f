package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrPractitionerNotFound = errors.New("practitioner not found")

// Repository contains all DB interactions needed by the availability model.
type Repository interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	RulesForWeekday(ctx context.Context, practitionerID uuid.UUID, weekday time.Weekday) ([]Rule, error)

	// ReplaceWeeklyTemplate swaps the practitioner's full weekly template.
	// Rules must already be validated.
	ReplaceWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, rules []Rule) error
}

// Schedule answers "which windows does this practitioner offer on this date".
type Schedule struct {
	repo Repository
}

func NewSchedule(repo Repository) *Schedule {
	return &Schedule{repo: repo}
}

// SlotsForDate returns the template windows for the weekday of date, ordered
// by start time. A weekday with no rules yields an empty list; the
// practitioner is simply unavailable that day.
func (s *Schedule) SlotsForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]TemplateSlot, error) {
	rules, err := s.repo.RulesForWeekday(ctx, practitionerID, date.Weekday())
	if err != nil {
		return nil, err
	}

	slots := make([]TemplateSlot, 0, len(rules))
	for _, r := range rules {
		slots = append(slots, TemplateSlot{Start: r.Start, End: r.End, Mode: r.Mode})
	}
	return slots, nil
}

// SetWeeklyTemplate validates and stores a practitioner's weekly template.
func (s *Schedule) SetWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, rules []Rule) error {
	if err := ValidateRules(rules); err != nil {
		return err
	}
	return s.repo.ReplaceWeeklyTemplate(ctx, practitionerID, rules)
}
