package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

// WarningSeverity ranks structural warnings: low < medium < high.
type WarningSeverity int

const (
	SeverityLow WarningSeverity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s WarningSeverity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	}
	return "unknown"
}

func (s WarningSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *WarningSeverity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "high":
		*s = SeverityHigh
	case "medium":
		*s = SeverityMedium
	case "low":
		*s = SeverityLow
	default:
		// unknown severities degrade to low rather than failing the payload
		*s = SeverityLow
	}
	return nil
}

const (
	WarnConflictSameDay      = "conflict-same-day"
	WarnConsecutiveIntensity = "consecutive-intensity"
	WarnRestDayRemoved       = "rest-day-removed"
	WarnOutOfCycleRange      = "out-of-cycle-range"
	WarnCrossWeekMove        = "cross-week-move"
	WarnKeySessionMoved      = "key-session-moved"
)

type Warning struct {
	Code     string          `json:"code"`
	Severity WarningSeverity `json:"severity"`
	Message  string          `json:"message"`
	Details  map[string]any  `json:"details"`
}

type MoveRequest struct {
	SourceDate calendar.Date
	TargetDate calendar.Date

	// SessionID picks one of several sessions on SourceDate. Empty means the first.
	SessionID string
}

// ParseMoveRequest builds a MoveRequest from wire dates.
func ParseMoveRequest(source, target, sessionID string) (MoveRequest, error) {
	src, err := calendar.Parse(source)
	if err != nil {
		return MoveRequest{}, &ValidationError{Field: "source_date", Reason: err.Error()}
	}
	dst, err := calendar.Parse(target)
	if err != nil {
		return MoveRequest{}, &ValidationError{Field: "target_date", Reason: err.Error()}
	}
	return MoveRequest{SourceDate: src, TargetDate: dst, SessionID: sessionID}, nil
}

type ComplianceImpact struct {
	RecordsInvalidated     int             `json:"records_invalidated"`
	RecalculationTriggered bool            `json:"recalculation_triggered"`
	DatesAffected          []calendar.Date `json:"dates_affected"`
}

// Validator checks a session move against a plan snapshot. It never
// mutates the plan and is safe for concurrent use.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Resolve finds the session a request moves.
func (v *Validator) Resolve(req MoveRequest, p *Plan) (Session, error) {
	if req.SourceDate.IsZero() {
		return Session{}, &ValidationError{Field: "source_date", Reason: "required"}
	}
	if req.TargetDate.IsZero() {
		return Session{}, &ValidationError{Field: "target_date", Reason: "required"}
	}
	if req.SourceDate == req.TargetDate {
		return Session{}, &ValidationError{Field: "target_date", Reason: "must differ from source_date"}
	}
	if req.SessionID != "" {
		s, ok := p.SessionByID(req.SessionID)
		if !ok {
			return Session{}, &ValidationError{Field: "session_id", Reason: fmt.Sprintf("no session %q in cycle", req.SessionID)}
		}
		if s.Date != req.SourceDate {
			return Session{}, &ValidationError{Field: "session_id", Reason: fmt.Sprintf("session %q is planned on %s, not %s", s.ID, s.Date, req.SourceDate)}
		}
		return s, nil
	}
	on := p.SessionsOn(req.SourceDate)
	if len(on) == 0 {
		return Session{}, &ValidationError{Field: "source_date", Reason: fmt.Sprintf("no session planned on %s", req.SourceDate)}
	}
	return on[0], nil
}

// Validate runs every rule and returns warnings in rule order.
func (v *Validator) Validate(req MoveRequest, p *Plan) ([]Warning, error) {
	moved, err := v.Resolve(req, p)
	if err != nil {
		return nil, err
	}
	warnings := []Warning{}
	for _, rule := range rules {
		if w, ok := rule(moved, req, p); ok {
			warnings = append(warnings, w)
		}
	}
	return warnings, nil
}

type rule func(moved Session, req MoveRequest, p *Plan) (Warning, bool)

var rules = []rule{
	conflictSameDay,
	consecutiveIntensity,
	restDayRemoved,
	outOfCycleRange,
	crossWeekMove,
	keySessionMoved,
}

func conflictSameDay(moved Session, req MoveRequest, p *Plan) (Warning, bool) {
	var ids []any
	clash := false
	for _, s := range p.SessionsOn(req.TargetDate) {
		if s.ID == moved.ID {
			continue
		}
		ids = append(ids, s.ID)
		if s.Intensity == IntensityHard && moved.Intensity == IntensityHard {
			clash = true
		}
	}
	if len(ids) == 0 {
		return Warning{}, false
	}
	sev := SeverityMedium
	if clash {
		sev = SeverityHigh
	}
	return Warning{
		Code:     WarnConflictSameDay,
		Severity: sev,
		Message:  fmt.Sprintf("%s already has %d planned session(s).", req.TargetDate, len(ids)),
		Details: map[string]any{
			"existing_session_ids": ids,
			"intensity_clash":      clash,
		},
	}, true
}

func consecutiveIntensity(moved Session, req MoveRequest, p *Plan) (Warning, bool) {
	if moved.Intensity != IntensityHard {
		return Warning{}, false
	}
	var adjacent []any
	for _, d := range []calendar.Date{req.TargetDate.AddDays(-1), req.TargetDate.AddDays(1)} {
		for _, s := range p.SessionsOn(d) {
			if s.ID != moved.ID && s.Intensity == IntensityHard {
				adjacent = append(adjacent, d.String())
				break
			}
		}
	}
	if len(adjacent) == 0 {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnConsecutiveIntensity,
		Severity: SeverityMedium,
		Message:  "Hard sessions would fall on back-to-back days.",
		Details:  map[string]any{"adjacent_hard_dates": adjacent},
	}, true
}

func restDayRemoved(_ Session, req MoveRequest, p *Plan) (Warning, bool) {
	if !p.IsRestDay(req.TargetDate) {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnRestDayRemoved,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("%s is a planned rest day.", req.TargetDate),
		Details:  map[string]any{"rest_date": req.TargetDate.String()},
	}, true
}

func outOfCycleRange(_ Session, req MoveRequest, p *Plan) (Warning, bool) {
	if p.InCycle(req.TargetDate) {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnOutOfCycleRange,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("%s is outside the cycle (%s to %s).", req.TargetDate, p.StartDate, p.EndDate),
		Details: map[string]any{
			"cycle_start": p.StartDate.String(),
			"cycle_end":   p.EndDate.String(),
		},
	}, true
}

func crossWeekMove(_ Session, req MoveRequest, p *Plan) (Warning, bool) {
	from, to := p.Week(req.SourceDate), p.Week(req.TargetDate)
	if from == to {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnCrossWeekMove,
		Severity: SeverityLow,
		Message:  fmt.Sprintf("Session moves from week %d to week %d; weekly totals will shift.", from+1, to+1),
		Details: map[string]any{
			"source_week": from + 1,
			"target_week": to + 1,
		},
	}, true
}

func keySessionMoved(moved Session, _ MoveRequest, _ *Plan) (Warning, bool) {
	if !moved.IsKey {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnKeySessionMoved,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("%q is a key session.", moved.Title),
		Details:  map[string]any{"session_id": moved.ID},
	}, true
}

// Impact lists the dates whose compliance depends on the move: both ends
// and the first day of every plan week boundary crossed.
func (v *Validator) Impact(req MoveRequest, p *Plan) ComplianceImpact {
	dates := []calendar.Date{req.SourceDate, req.TargetDate}
	from, to := p.Week(req.SourceDate), p.Week(req.TargetDate)
	if from > to {
		from, to = to, from
	}
	for w := from + 1; w <= to; w++ {
		dates = append(dates, p.WeekStart(w))
	}
	slices.SortFunc(dates, calendar.Compare)
	dates = slices.Compact(dates)

	impact := ComplianceImpact{DatesAffected: dates}
	for _, d := range dates {
		if p.HasCompliance(d) {
			impact.RecordsInvalidated++
		}
	}
	impact.RecalculationTriggered = impact.RecordsInvalidated > 0
	return impact
}

// HighestSeverity is zero for an empty list.
func HighestSeverity(ws []Warning) WarningSeverity {
	var highest WarningSeverity
	for _, w := range ws {
		if w.Severity > highest {
			highest = w.Severity
		}
	}
	return highest
}
