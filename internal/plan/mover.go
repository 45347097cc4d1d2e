package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

// Recalculator asks the metrics backend to recompute compliance for dates.
type Recalculator interface {
	EnqueueRecalculation(ctx context.Context, cycleTag string, version int64, dates []calendar.Date) error
}

// MoveMetrics is the slice of the metrics recorder the mover reports to.
type MoveMetrics interface {
	PlanCommit(kind, outcome string)
	MoveWarning(code, severity string)
}

type MovedSession struct {
	SessionID string        `json:"session_id"`
	Title     string        `json:"title"`
	Intensity Intensity     `json:"intensity"`
	FromDate  calendar.Date `json:"from_date"`
	ToDate    calendar.Date `json:"to_date"`
}

type MoveResponse struct {
	Success          bool              `json:"success"`
	MovedSession     *MovedSession     `json:"moved_session_info"`
	Warnings         []Warning         `json:"warnings"`
	ComplianceImpact *ComplianceImpact `json:"compliance_impact"`
	ErrorMessage     *string           `json:"error_message"`
	PlanVersion      int64             `json:"plan_version"`
}

type MoverOption func(*Mover)

// WithBlockOnHigh rejects moves that raise any high-severity warning.
func WithBlockOnHigh(block bool) MoverOption {
	return func(m *Mover) { m.blockOnHigh = block }
}

func WithRecalculator(r Recalculator) MoverOption {
	return func(m *Mover) { m.recalc = r }
}

func WithMoveMetrics(mm MoveMetrics) MoverOption {
	return func(m *Mover) { m.metrics = mm }
}

func WithMoverClock(now func() time.Time) MoverOption {
	return func(m *Mover) { m.now = now }
}

// Mover is the commit path for session moves.
type Mover struct {
	store       Store
	validator   *Validator
	log         zerolog.Logger
	blockOnHigh bool
	recalc      Recalculator
	metrics     MoveMetrics
	now         func() time.Time
}

func NewMover(store Store, validator *Validator, log zerolog.Logger, opts ...MoverOption) *Mover {
	m := &Mover{store: store, validator: validator, log: log, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Move validates and commits a session move. knownVersion is the plan
// version the caller last saw; zero means "the version read here".
//
// A stale version returns a response with Success false together with a
// *ConflictError. A policy block returns the warnings together with a
// *BlockedError. Validation problems return only a *ValidationError.
func (m *Mover) Move(ctx context.Context, cycleTag string, req MoveRequest, knownVersion int64) (*MoveResponse, error) {
	p, err := m.store.Get(ctx, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", cycleTag, err)
	}
	if knownVersion == 0 {
		knownVersion = p.Version
	}
	if knownVersion != p.Version {
		return m.conflict(cycleTag, &ConflictError{Known: knownVersion, Current: p.Version})
	}

	warnings, err := m.validator.Validate(req, p)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		m.reportWarning(w)
	}

	if m.blockOnHigh && HighestSeverity(warnings) == SeverityHigh {
		blocked := &BlockedError{}
		for _, w := range warnings {
			if w.Severity == SeverityHigh {
				blocked.Codes = append(blocked.Codes, w.Code)
			}
		}
		m.reportCommit("blocked")
		msg := blocked.Error()
		return &MoveResponse{Warnings: warnings, ErrorMessage: &msg, PlanVersion: p.Version}, blocked
	}

	moved, _ := m.validator.Resolve(req, p)
	next := p.Clone()
	for i := range next.Sessions {
		if next.Sessions[i].ID == moved.ID {
			next.Sessions[i].Date = req.TargetDate
		}
	}
	next.sortSessions()
	next.RestDays = removeDate(next.RestDays, req.TargetDate)
	// invalidated compliance records are gone until the recalculation lands
	impact := m.validator.Impact(req, p)
	for _, day := range impact.DatesAffected {
		next.ComplianceDates = removeDate(next.ComplianceDates, day)
	}
	next.UpdatedAt = m.now().UTC()

	codes := make([]any, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	entry := HistoryEntry{
		ModifiedAt:       next.UpdatedAt,
		ModificationType: ModificationSessionMoved,
		Details: map[string]any{
			"session_id":  moved.ID,
			"source_date": req.SourceDate.String(),
			"target_date": req.TargetDate.String(),
			"warnings":    codes,
		},
	}

	committed, err := m.store.Commit(ctx, next, knownVersion, entry)
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			return m.conflict(cycleTag, ce)
		}
		m.reportCommit("error")
		return nil, fmt.Errorf("committing move on %s: %w", cycleTag, err)
	}
	m.reportCommit("ok")

	if impact.RecalculationTriggered && m.recalc != nil {
		if err := m.recalc.EnqueueRecalculation(ctx, cycleTag, committed.Version, impact.DatesAffected); err != nil {
			m.log.Error().Err(err).Str("cycle", cycleTag).Int64("version", committed.Version).Msg("enqueue compliance recalculation failed")
		}
	}

	m.log.Info().
		Str("cycle", cycleTag).
		Str("session", moved.ID).
		Str("from", req.SourceDate.String()).
		Str("to", req.TargetDate.String()).
		Int64("version", committed.Version).
		Int("warnings", len(warnings)).
		Msg("session moved")

	return &MoveResponse{
		Success: true,
		MovedSession: &MovedSession{
			SessionID: moved.ID,
			Title:     moved.Title,
			Intensity: moved.Intensity,
			FromDate:  req.SourceDate,
			ToDate:    req.TargetDate,
		},
		Warnings:         warnings,
		ComplianceImpact: &impact,
		PlanVersion:      committed.Version,
	}, nil
}

func (m *Mover) conflict(cycleTag string, ce *ConflictError) (*MoveResponse, error) {
	m.reportCommit("conflict")
	m.log.Warn().Str("cycle", cycleTag).Int64("known", ce.Known).Int64("current", ce.Current).Msg("move rejected on stale plan version")
	msg := ce.Error()
	return &MoveResponse{Warnings: []Warning{}, ErrorMessage: &msg, PlanVersion: ce.Current}, ce
}

func (m *Mover) reportCommit(outcome string) {
	if m.metrics != nil {
		m.metrics.PlanCommit(string(ModificationSessionMoved), outcome)
	}
}

func (m *Mover) reportWarning(w Warning) {
	if m.metrics != nil {
		m.metrics.MoveWarning(w.Code, w.Severity.String())
	}
}

func removeDate(ds []calendar.Date, d calendar.Date) []calendar.Date {
	out := ds[:0:0]
	for _, x := range ds {
		if x != d {
			out = append(out, x)
		}
	}
	return out
}
