// Package proposal runs the propose, select, confirm workflow that adapts a
// training plan after an adverse load classification.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
)

type Stage string

const (
	StageCreated              Stage = "created"
	StagePresented            Stage = "presented"
	StageOptionSelected       Stage = "option_selected"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	StageApplying             Stage = "applying"
	StageConfirmed            Stage = "confirmed"
	StageCancelled            Stage = "cancelled"
	StageExpired              Stage = "expired"
	StageFailed               Stage = "failed"
)

func (s Stage) Terminal() bool {
	switch s {
	case StageConfirmed, StageCancelled, StageExpired, StageFailed:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type OptionKind string

const (
	KindRecoveryDays  OptionKind = "recovery-days"
	KindReduceVolume  OptionKind = "reduce-volume"
	KindSkipIntensity OptionKind = "skip-intensity"
)

// Option is one way of adapting the plan. It scales the planned load of
// every session in [EffectiveDate, EffectiveDate+WindowDays) by
// ModulationFactor; HardOnly narrows that to hard sessions.
type Option struct {
	ID               string        `json:"id"`
	Kind             OptionKind    `json:"kind"`
	Description      string        `json:"description"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	AffectedDays     int           `json:"affected_days"`
	ModulationFactor float64       `json:"modulation_factor"`
	Rationale        string        `json:"rationale"`
	EffectiveDate    calendar.Date `json:"effective_date"`
	WindowDays       int           `json:"window_days"`
	HardOnly         bool          `json:"hard_only"`
	SessionIDs       []string      `json:"session_ids"`
}

// Result is attached to confirmed and failed proposals.
type Result struct {
	PlanVersion      int64     `json:"plan_version,omitempty"`
	AppliedAt        time.Time `json:"applied_at"`
	SessionsModified int       `json:"sessions_modified"`
	Error            string    `json:"error,omitempty"`
}

type Proposal struct {
	ID                string        `json:"id"`
	AthleteID         string        `json:"athlete_id"`
	CycleTag          string        `json:"cycle_tag"`
	Stage             Stage         `json:"stage"`
	Context           string        `json:"context"`
	Options           []Option      `json:"options"`
	SelectedOptionID  string        `json:"selected_option_id,omitempty"`
	AlertLevel        load.Severity `json:"alert_level"`
	ExpiresAt         time.Time     `json:"expires_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	LockedPlanVersion int64         `json:"locked_plan_version,omitempty"`
	Result            *Result       `json:"result,omitempty"`

	// Revision guards concurrent writes to the same proposal.
	Revision int64 `json:"revision"`
}

// IsUrgent is true when the proposal is critical or expires within the window.
func (p *Proposal) IsUrgent(now time.Time, within time.Duration) bool {
	if p.AlertLevel == load.SeverityCritical {
		return true
	}
	return p.ExpiresAt.Sub(now) < within
}

func (p *Proposal) Option(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Options = make([]Option, len(p.Options))
	for i, o := range p.Options {
		o.SessionIDs = slices.Clone(o.SessionIDs)
		c.Options[i] = o
	}
	if p.Result != nil {
		r := *p.Result
		c.Result = &r
	}
	return &c
}

var (
	ErrNotFound          = errors.New("proposal not found")
	ErrStale             = errors.New("proposal was modified concurrently")
	ErrInvalidTransition = errors.New("invalid proposal transition")
	ErrExpired           = errors.New("proposal expired")
	ErrApplying          = errors.New("proposal is being applied")
	ErrOpenExists        = errors.New("cycle already has an open proposal")
)

type TransitionError struct {
	From Stage
	To   Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move proposal from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Repository persists proposals. Update is a compare-and-swap on Revision:
// it succeeds only when the stored revision equals p.Revision, and then
// increments p.Revision. Otherwise it returns ErrStale. Create returns
// ErrOpenExists when the cycle already has a non-terminal proposal.
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, id string) (*Proposal, error)
	Update(ctx context.Context, p *Proposal) error
	ListOpen(ctx context.Context, cycleTag string) ([]*Proposal, error)
}
