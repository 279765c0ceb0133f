package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeOnline   Mode = "online"
	ModeInPerson Mode = "in-person"
)

func (m Mode) Valid() bool {
	return m == ModeOnline || m == ModeInPerson
}

type Practitioner struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	FeeOnline   float64
	FeeInPerson float64
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeeFor resolves the consultation fee for a mode. Callers snapshot the
// result at lock time; later fee edits never touch existing bookings.
func (p *Practitioner) FeeFor(mode Mode) float64 {
	if mode == ModeInPerson {
		return p.FeeInPerson
	}
	return p.FeeOnline
}

// Rule is one weekly template entry: a time-of-day range on a weekday,
// offered in a single consultation mode.
type Rule struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Weekday        time.Weekday
	Start          string // "HH:MM"
	End            string // "HH:MM"
	Mode           Mode
}

// TemplateSlot is a bookable window on a concrete date, before lock and
// appointment state is applied.
type TemplateSlot struct {
	Start string
	End   string
	Mode  Mode
}

var ErrRuleOverlap = errors.New("template rules overlap for the same weekday and mode")

// ParseClock parses a zero-padded "HH:MM" string into minutes since midnight.
// Every position is checked, so signed or non-digit components never slip
// through.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("time %q must be in HH:MM format", s)
	}
	for _, i := range [...]int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("time %q must be in HH:MM format", s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("time %q must be in HH:MM format", s)
	}
	return h*60 + m, nil
}

// ValidateRules checks every rule's time range and rejects overlapping
// ranges within one weekday for the same mode.
func ValidateRules(rules []Rule) error {
	type dayMode struct {
		day  time.Weekday
		mode Mode
	}
	grouped := make(map[dayMode][]Rule)

	for _, r := range rules {
		if !r.Mode.Valid() {
			return fmt.Errorf("invalid mode %q", r.Mode)
		}
		start, err := ParseClock(r.Start)
		if err != nil {
			return err
		}
		end, err := ParseClock(r.End)
		if err != nil {
			return err
		}
		if start >= end {
			return fmt.Errorf("rule %s-%s: start must be before end", r.Start, r.End)
		}
		key := dayMode{r.Weekday, r.Mode}
		grouped[key] = append(grouped[key], r)
	}

	for _, group := range grouped {
		sort.Slice(group, func(i, j int) bool { return group[i].Start < group[j].Start })
		for i := 1; i < len(group); i++ {
			if group[i].Start < group[i-1].End {
				return ErrRuleOverlap
			}
		}
	}

	return nil
}
