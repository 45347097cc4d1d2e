package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briangreenhill/formcoach/internal/proposal"
)

const (
	uniqueViolation   = "23505"
	openPerCycleIndex = "proposals_one_open_per_cycle"
)

type ProposalStore struct {
	pool *pgxpool.Pool
}

func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

func (s *ProposalStore) Create(ctx context.Context, p *proposal.Proposal) error {
	p.Revision = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO proposals (id, cycle_tag, athlete_id, stage, revision, expires_at, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.CycleTag, p.AthleteID, string(p.Stage), p.Revision, p.ExpiresAt, p.CreatedAt, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openPerCycleIndex {
			return proposal.ErrOpenExists
		}
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

func (s *ProposalStore) Get(ctx context.Context, id string) (*proposal.Proposal, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM proposals WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proposal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return decodeProposal(doc)
}

// Update writes p only if the stored revision still equals p.Revision.
func (s *ProposalStore) Update(ctx context.Context, p *proposal.Proposal) error {
	c := p.Clone()
	c.Revision = p.Revision + 1
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE proposals
		SET stage = $1, revision = $2, expires_at = $3, document = $4
		WHERE id = $5 AND revision = $6
	`, string(c.Stage), c.Revision, c.ExpiresAt, doc, c.ID, p.Revision)
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check proposal: %w", err)
		}
		if !exists {
			return proposal.ErrNotFound
		}
		return proposal.ErrStale
	}
	p.Revision = c.Revision
	return nil
}

func (s *ProposalStore) ListOpen(ctx context.Context, cycleTag string) ([]*proposal.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document
		FROM proposals
		WHERE cycle_tag = $1 AND stage NOT IN ('confirmed', 'cancelled', 'expired', 'failed')
		ORDER BY created_at, id
	`, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var out []*proposal.Proposal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		p, err := decodeProposal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeProposal(doc []byte) (*proposal.Proposal, error) {
	p := &proposal.Proposal{}
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("decoding proposal: %w", err)
	}
	return p, nil
}
