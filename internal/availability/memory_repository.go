package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps practitioners and templates in process. Used by the
// test suite.
type MemoryRepository struct {
	mu            sync.Mutex
	practitioners map[uuid.UUID]*Practitioner
	rules         map[uuid.UUID][]Rule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		practitioners: make(map[uuid.UUID]*Practitioner),
		rules:         make(map[uuid.UUID][]Rule),
	}
}

// AddPractitioner registers a practitioner for lookups.
func (r *MemoryRepository) AddPractitioner(p Practitioner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.practitioners[p.ID] = &p
}

func (r *MemoryRepository) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) RulesForWeekday(_ context.Context, practitionerID uuid.UUID, weekday time.Weekday) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Rule
	for _, rule := range r.rules[practitionerID] {
		if rule.Weekday == weekday {
			result = append(result, rule)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ReplaceWeeklyTemplate(_ context.Context, practitionerID uuid.UUID, rules []Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := make([]Rule, len(rules))
	copy(replaced, rules)
	r.rules[practitionerID] = replaced
	return nil
}
