package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briangreenhill/formcoach/internal/plan"
)

type PlanStore struct {
	pool *pgxpool.Pool
}

func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// Create stores p as version 1 with a "created" history entry.
func (s *PlanStore) Create(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := p.Clone()
	c.Version = 1
	c.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO plans (cycle_tag, athlete_id, version, start_date, end_date, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cycle_tag) DO NOTHING
	`, c.CycleTag, c.AthleteID, c.Version, c.StartDate.Time(), c.EndDate.Time(), doc, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("cycle %s already exists", c.CycleTag)
	}
	entry := plan.HistoryEntry{
		Version:          1,
		ModifiedAt:       c.UpdatedAt,
		ModificationType: plan.ModificationCreated,
		Details:          map[string]any{"sessions": len(c.Sessions)},
	}
	if err := insertHistory(ctx, tx, c.CycleTag, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PlanStore) Get(ctx context.Context, cycleTag string) (*plan.Plan, error) {
	var (
		version int64
		doc     []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT version, document FROM plans WHERE cycle_tag = $1`, cycleTag).Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plan.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	p := &plan.Plan{}
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("decoding plan %s: %w", cycleTag, err)
	}
	p.Version = version
	return p, nil
}

// Commit is a compare-and-swap on the version column.
func (s *PlanStore) Commit(ctx context.Context, next *plan.Plan, expectedVersion int64, entry plan.HistoryEntry) (*plan.Plan, error) {
	c := next.Clone()
	c.Version = expectedVersion + 1
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE plans
		SET version = $1, document = $2, updated_at = $3, start_date = $4, end_date = $5
		WHERE cycle_tag = $6 AND version = $7
	`, c.Version, doc, c.UpdatedAt, c.StartDate.Time(), c.EndDate.Time(), c.CycleTag, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := tx.QueryRow(ctx, `SELECT version FROM plans WHERE cycle_tag = $1`, c.CycleTag).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, plan.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read plan version: %w", err)
		}
		return nil, &plan.ConflictError{Known: expectedVersion, Current: current}
	}

	entry.Version = c.Version
	if entry.ModifiedAt.IsZero() {
		entry.ModifiedAt = c.UpdatedAt
	}
	if err := insertHistory(ctx, tx, c.CycleTag, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PlanStore) History(ctx context.Context, cycleTag string) ([]plan.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT version, modified_at, modification_type, details
		FROM plan_history
		WHERE cycle_tag = $1
		ORDER BY version
	`, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []plan.HistoryEntry
	for rows.Next() {
		var (
			e       plan.HistoryEntry
			kind    string
			details []byte
		)
		if err := rows.Scan(&e.Version, &e.ModifiedAt, &kind, &details); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.ModificationType = plan.ModificationType(kind)
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decoding history details: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, plan.ErrNotFound
	}
	return out, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, cycleTag string, e plan.HistoryEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	if e.Details == nil {
		details = []byte("{}")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO plan_history (cycle_tag, version, modified_at, modification_type, details)
		VALUES ($1, $2, $3, $4, $5)
	`, cycleTag, e.Version, e.ModifiedAt, string(e.ModificationType), details)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}
