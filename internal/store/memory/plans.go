// Package memory keeps plans and proposals in process memory. It backs
// local runs (STORE=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/briangreenhill/formcoach/internal/plan"
)

type PlanStore struct {
	mu      sync.Mutex
	plans   map[string]*plan.Plan
	history map[string][]plan.HistoryEntry
	now     func() time.Time
}

func NewPlanStore() *PlanStore {
	return &PlanStore{
		plans:   map[string]*plan.Plan{},
		history: map[string][]plan.HistoryEntry{},
		now:     time.Now,
	}
}

// Create stores p as version 1.
func (s *PlanStore) Create(_ context.Context, p *plan.Plan) (*plan.Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.CycleTag]; ok {
		return nil, fmt.Errorf("cycle %s already exists", p.CycleTag)
	}
	c := p.Clone()
	c.Version = 1
	c.UpdatedAt = s.now().UTC()
	s.plans[c.CycleTag] = c
	s.history[c.CycleTag] = []plan.HistoryEntry{{
		Version:          1,
		ModifiedAt:       c.UpdatedAt,
		ModificationType: plan.ModificationCreated,
		Details:          map[string]any{"sessions": len(c.Sessions)},
	}}
	return c.Clone(), nil
}

func (s *PlanStore) Get(_ context.Context, cycleTag string) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[cycleTag]
	if !ok {
		return nil, plan.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *PlanStore) Commit(_ context.Context, next *plan.Plan, expectedVersion int64, entry plan.HistoryEntry) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.plans[next.CycleTag]
	if !ok {
		return nil, plan.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return nil, &plan.ConflictError{Known: expectedVersion, Current: cur.Version}
	}
	c := next.Clone()
	c.Version = expectedVersion + 1
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	entry.Version = c.Version
	if entry.ModifiedAt.IsZero() {
		entry.ModifiedAt = c.UpdatedAt
	}
	s.plans[c.CycleTag] = c
	s.history[c.CycleTag] = append(s.history[c.CycleTag], entry)
	return c.Clone(), nil
}

func (s *PlanStore) History(_ context.Context, cycleTag string) ([]plan.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[cycleTag]
	if !ok {
		return nil, plan.ErrNotFound
	}
	return slices.Clone(h), nil
}
