package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/briangreenhill/formcoach/internal/proposal"
)

type ProposalStore struct {
	mu   sync.Mutex
	byID map[string]*proposal.Proposal
}

func NewProposalStore() *ProposalStore {
	return &ProposalStore{byID: map[string]*proposal.Proposal{}}
}

func (s *ProposalStore) Create(_ context.Context, p *proposal.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return fmt.Errorf("proposal %s already exists", p.ID)
	}
	if !p.Stage.Terminal() {
		for _, other := range s.byID {
			if other.CycleTag == p.CycleTag && !other.Stage.Terminal() {
				return proposal.ErrOpenExists
			}
		}
	}
	p.Revision = 1
	s.byID[p.ID] = p.Clone()
	return nil
}

func (s *ProposalStore) Get(_ context.Context, id string) (*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, proposal.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *ProposalStore) Update(_ context.Context, p *proposal.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[p.ID]
	if !ok {
		return proposal.ErrNotFound
	}
	if cur.Revision != p.Revision {
		return proposal.ErrStale
	}
	p.Revision++
	s.byID[p.ID] = p.Clone()
	return nil
}

// ListOpen returns non-terminal proposals ordered by creation time.
func (s *ProposalStore) ListOpen(_ context.Context, cycleTag string) ([]*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*proposal.Proposal
	for _, p := range s.byID {
		if p.CycleTag == cycleTag && !p.Stage.Terminal() {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *proposal.Proposal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
