// Package plan holds the versioned training plan, session-move validation
// and the commit path that moves sessions under optimistic concurrency.
package plan

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

type Intensity string

const (
	IntensityEasy     Intensity = "easy"
	IntensityModerate Intensity = "moderate"
	IntensityHard     Intensity = "hard"
)

type Session struct {
	ID          string        `json:"id"`
	Date        calendar.Date `json:"date"`
	Title       string        `json:"title"`
	Sport       string        `json:"sport,omitempty"`
	Intensity   Intensity     `json:"intensity"`
	PlannedLoad float64       `json:"planned_load"`
	IsKey       bool          `json:"is_key"`
}

// Plan is one training cycle. Version increases by one on every commit.
type Plan struct {
	CycleTag  string          `json:"cycle_tag"`
	AthleteID string          `json:"athlete_id"`
	Version   int64           `json:"version"`
	StartDate calendar.Date   `json:"start_date"`
	EndDate   calendar.Date   `json:"end_date"`
	Sessions  []Session       `json:"sessions"`
	RestDays  []calendar.Date `json:"rest_days"`

	// ComplianceDates are the days that already have a computed compliance record.
	ComplianceDates []calendar.Date `json:"compliance_dates"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Plan) Clone() *Plan {
	c := *p
	c.Sessions = slices.Clone(p.Sessions)
	c.RestDays = slices.Clone(p.RestDays)
	c.ComplianceDates = slices.Clone(p.ComplianceDates)
	return &c
}

func (p *Plan) Validate() error {
	if p.CycleTag == "" {
		return &ValidationError{Field: "cycle_tag", Reason: "required"}
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() || p.EndDate.Before(p.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "cycle must have a start and an end on or after it"}
	}
	seen := make(map[string]struct{}, len(p.Sessions))
	for _, s := range p.Sessions {
		if s.ID == "" {
			return &ValidationError{Field: "sessions.id", Reason: "required"}
		}
		if _, dup := seen[s.ID]; dup {
			return &ValidationError{Field: "sessions.id", Reason: fmt.Sprintf("duplicate session id %q", s.ID)}
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func (p *Plan) SessionByID(id string) (Session, bool) {
	for _, s := range p.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// SessionsOn returns the sessions on d in plan order.
func (p *Plan) SessionsOn(d calendar.Date) []Session {
	var out []Session
	for _, s := range p.Sessions {
		if s.Date == d {
			out = append(out, s)
		}
	}
	return out
}

func (p *Plan) InCycle(d calendar.Date) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

func (p *Plan) IsRestDay(d calendar.Date) bool {
	return slices.Contains(p.RestDays, d)
}

func (p *Plan) HasCompliance(d calendar.Date) bool {
	return slices.Contains(p.ComplianceDates, d)
}

// Week returns the zero-based plan week of d. Weeks are seven-day blocks
// counted from the cycle start; days before the start have negative weeks.
func (p *Plan) Week(d calendar.Date) int {
	days := d.DaysSince(p.StartDate)
	if days < 0 {
		return -((-days + 6) / 7)
	}
	return days / 7
}

func (p *Plan) WeekStart(week int) calendar.Date {
	return p.StartDate.AddDays(week * 7)
}

// sortSessions keeps sessions ordered by date, preserving order within a day.
func (p *Plan) sortSessions() {
	slices.SortStableFunc(p.Sessions, func(a, b Session) int {
		return calendar.Compare(a.Date, b.Date)
	})
}

type ModificationType string

const (
	ModificationCreated         ModificationType = "created"
	ModificationSessionMoved    ModificationType = "session-moved"
	ModificationProposalApplied ModificationType = "proposal-applied"
)

type HistoryEntry struct {
	Version          int64            `json:"version"`
	ModifiedAt       time.Time        `json:"modified_at"`
	ModificationType ModificationType `json:"modification_type"`
	Details          map[string]any   `json:"details"`
}

// Store is the authoritative, versioned home of plans.
//
// Commit writes next only if the stored version still equals expectedVersion,
// then stores it as expectedVersion+1 and appends entry to the history. A
// mismatch returns a *ConflictError and leaves the plan untouched.
type Store interface {
	Get(ctx context.Context, cycleTag string) (*Plan, error)
	Commit(ctx context.Context, next *Plan, expectedVersion int64, entry HistoryEntry) (*Plan, error)
	History(ctx context.Context, cycleTag string) ([]HistoryEntry, error)
}
