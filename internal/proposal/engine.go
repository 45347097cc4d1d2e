package proposal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
)

// Policy decides when a proposal is warranted and how long it lives.
type Policy struct {
	TTL                time.Duration
	UrgentWithin       time.Duration
	OverloadStreakDays int
	OpenOnCritical     bool
}

func DefaultPolicy() Policy {
	return Policy{
		TTL:                48 * time.Hour,
		UrgentWithin:       12 * time.Hour,
		OverloadStreakDays: 3,
		OpenOnCritical:     true,
	}
}

// Notifier hears about newly opened urgent proposals.
type Notifier interface {
	ProposalOpened(ctx context.Context, p *Proposal) error
}

type Metrics interface {
	Classified(status string, alerts []load.Alert)
	ProposalTransition(from, to string)
	PlanCommit(kind, outcome string)
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithIDs(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// Engine owns the proposal lifecycle. Expiry is checked lazily on every
// read and write; there is no timer to recover after a restart.
type Engine struct {
	classifier *load.Classifier
	plans      plan.Store
	repo       Repository
	policy     Policy
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
	notifier   Notifier
	metrics    Metrics
}

func NewEngine(classifier *load.Classifier, plans plan.Store, repo Repository, policy Policy, log zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		classifier: classifier,
		plans:      plans,
		repo:       repo,
		policy:     policy,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// Now is the engine's clock.
func (e *Engine) Now() time.Time { return e.now() }

// Evaluation is what Evaluate saw and did.
type Evaluation struct {
	Classification load.Classification `json:"classification"`
	OverloadStreak int                 `json:"overload_streak"`
	Proposal       *Proposal           `json:"proposal,omitempty"`
	Opened         bool                `json:"opened"`
}

// Evaluate classifies the latest snapshot and opens a proposal when policy
// says so. A cycle has at most one open proposal; if one exists it is
// returned instead of opening another.
func (e *Engine) Evaluate(ctx context.Context, athleteID, cycleTag string, snapshots []load.Snapshot) (*Evaluation, error) {
	if len(snapshots) == 0 {
		return nil, &plan.ValidationError{Field: "snapshots", Reason: "at least one snapshot is required"}
	}
	ordered := slices.Clone(snapshots)
	slices.SortStableFunc(ordered, func(a, b load.Snapshot) int { return calendar.Compare(a.Date, b.Date) })
	latest := ordered[len(ordered)-1]

	cls := e.classifier.Classify(latest)
	if e.metrics != nil {
		e.metrics.Classified(string(cls.Status), cls.Alerts)
	}
	ev := &Evaluation{Classification: cls}
	for i := len(ordered) - 1; i >= 0; i-- {
		if st, _ := e.classifier.Status(ordered[i].Balance); st != load.StatusOverload {
			break
		}
		ev.OverloadStreak++
	}

	warranted := (e.policy.OpenOnCritical && cls.HasCritical()) ||
		(e.policy.OverloadStreakDays > 0 && ev.OverloadStreak >= e.policy.OverloadStreakDays)
	if !warranted {
		return ev, nil
	}

	existing, err := e.openFor(ctx, cycleTag)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		ev.Proposal = existing
		return ev, nil
	}

	p, err := e.plans.Get(ctx, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", cycleTag, err)
	}
	now := e.now().UTC()
	effective := latest.Date.AddDays(1)
	if latest.Date.IsZero() {
		effective = calendar.FromTime(now).AddDays(1)
	}
	options := buildOptions(p, effective)
	if len(options) == 0 {
		e.log.Info().Str("cycle", cycleTag).Str("from", effective.String()).Msg("proposal warranted but no upcoming sessions to adapt")
		return ev, nil
	}

	prop := &Proposal{
		ID:         e.newID(),
		AthleteID:  athleteID,
		CycleTag:   cycleTag,
		Stage:      StageCreated,
		Context:    describe(cls, latest),
		Options:    options,
		AlertLevel: cls.MaxSeverity(),
		ExpiresAt:  now.Add(e.policy.TTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.repo.Create(ctx, prop); err != nil {
		if !errors.Is(err, ErrOpenExists) {
			return nil, fmt.Errorf("creating proposal: %w", err)
		}
		// a concurrent evaluation opened one first
		existing, err := e.openFor(ctx, cycleTag)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("creating proposal: %w", ErrOpenExists)
		}
		ev.Proposal = existing
		return ev, nil
	}
	e.transitioned("", StageCreated)
	e.log.Info().
		Str("proposal", prop.ID).
		Str("cycle", cycleTag).
		Str("status", string(cls.Status)).
		Int("streak", ev.OverloadStreak).
		Int("options", len(options)).
		Msg("proposal opened")

	if e.notifier != nil && prop.IsUrgent(now, e.policy.UrgentWithin) {
		if err := e.notifier.ProposalOpened(ctx, prop); err != nil {
			e.log.Error().Err(err).Str("proposal", prop.ID).Msg("notify proposal opened failed")
		}
	}
	ev.Proposal = prop
	ev.Opened = true
	return ev, nil
}

// Get returns the proposal, expiring it first when its time has passed.
func (e *Engine) Get(ctx context.Context, id string) (*Proposal, error) {
	return e.load(ctx, id)
}

// Pending lists the open proposals of a cycle, most urgent first. Created
// proposals are presented on the way out; overdue ones are expired and left out.
func (e *Engine) Pending(ctx context.Context, cycleTag string) ([]*Proposal, error) {
	out, err := e.listOpen(ctx, cycleTag)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		if p.Stage == StageCreated && len(p.Options) > 0 {
			if err := e.move(ctx, p, StagePresented); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// listOpen returns the live proposals of a cycle, most urgent first, expiring
// overdue ones on the way. It never presents anything.
func (e *Engine) listOpen(ctx context.Context, cycleTag string) ([]*Proposal, error) {
	list, err := e.repo.ListOpen(ctx, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("listing proposals for %s: %w", cycleTag, err)
	}
	out := make([]*Proposal, 0, len(list))
	for _, p := range list {
		if err := e.expireIfDue(ctx, p); err != nil {
			return nil, err
		}
		if !p.Stage.Terminal() {
			out = append(out, p)
		}
	}
	SortByUrgency(out, e.now(), e.policy.UrgentWithin)
	return out, nil
}

func (e *Engine) openFor(ctx context.Context, cycleTag string) (*Proposal, error) {
	out, err := e.listOpen(ctx, cycleTag)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// Present makes a created proposal visible to the athlete.
func (e *Engine) Present(ctx context.Context, id string) (*Proposal, error) {
	p, err := e.loadOpen(ctx, id)
	if err != nil {
		return p, err
	}
	switch p.Stage {
	case StagePresented:
		return p, nil
	case StageCreated:
	default:
		return p, &TransitionError{From: p.Stage, To: StagePresented}
	}
	if len(p.Options) == 0 {
		return p, &plan.ValidationError{Field: "options", Reason: "proposal has no options to present"}
	}
	return p, e.move(ctx, p, StagePresented)
}

// Select records the athlete's choice. The choice may be changed until it is locked.
func (e *Engine) Select(ctx context.Context, id, optionID string) (*Proposal, error) {
	p, err := e.loadOpen(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Stage != StagePresented && p.Stage != StageOptionSelected {
		return p, &TransitionError{From: p.Stage, To: StageOptionSelected}
	}
	if _, ok := p.Option(optionID); !ok {
		return p, &plan.ValidationError{Field: "option_id", Reason: fmt.Sprintf("%q is not one of this proposal's options", optionID)}
	}
	p.SelectedOptionID = optionID
	return p, e.move(ctx, p, StageOptionSelected)
}

// Summary is what the athlete confirms.
type Summary struct {
	ProposalID       string          `json:"proposal_id"`
	OptionID         string          `json:"option_id"`
	Description      string          `json:"description"`
	AffectedDays     int             `json:"affected_days"`
	ModulationFactor float64         `json:"modulation_factor"`
	EffectiveDate    calendar.Date   `json:"effective_date"`
	SessionDates     []calendar.Date `json:"session_dates"`
	PlanVersion      int64           `json:"plan_version"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// Lock freezes the selected option against the current plan and waits for
// confirmation. From here on the options are immutable.
func (e *Engine) Lock(ctx context.Context, id string) (*Proposal, *Summary, error) {
	p, err := e.loadOpen(ctx, id)
	if err != nil {
		return p, nil, err
	}
	if p.Stage == StageAwaitingConfirmation {
		sum, err := e.summary(ctx, p)
		return p, sum, err
	}
	if p.Stage != StageOptionSelected {
		return p, nil, &TransitionError{From: p.Stage, To: StageAwaitingConfirmation}
	}

	current, err := e.plans.Get(ctx, p.CycleTag)
	if err != nil {
		return p, nil, fmt.Errorf("loading plan %s: %w", p.CycleTag, err)
	}
	idx := slices.IndexFunc(p.Options, func(o Option) bool { return o.ID == p.SelectedOptionID })
	opt := p.Options[idx]
	opt.SessionIDs = sessionsInWindow(current, opt)
	opt.AffectedDays = len(opt.SessionIDs)
	if opt.AffectedDays == 0 {
		return p, nil, &plan.ValidationError{Field: "option_id", Reason: "the plan no longer has sessions this option would change"}
	}
	p.Options[idx] = opt
	p.LockedPlanVersion = current.Version
	if err := e.move(ctx, p, StageAwaitingConfirmation); err != nil {
		return p, nil, err
	}
	return p, summarize(p, opt, current), nil
}

// Confirm applies the locked option. knownVersion must equal the plan
// version seen at lock time and the plan must not have moved since;
// otherwise the proposal falls back to presented and a *plan.ConflictError
// is returned. Confirming a confirmed proposal returns it unchanged.
//
// The proposal is claimed (moved to applying) before the plan is touched, so
// a concurrent Cancel, Select or second Confirm cannot interleave with the
// commit. While another caller holds the claim Confirm returns ErrApplying.
func (e *Engine) Confirm(ctx context.Context, id string, knownVersion int64) (*Proposal, error) {
	p, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Stage == StageConfirmed:
		return p, nil
	case p.Stage == StageExpired:
		return p, ErrExpired
	case p.Stage == StageApplying:
		return e.resume(ctx, p, knownVersion)
	case p.Stage != StageAwaitingConfirmation:
		return p, &TransitionError{From: p.Stage, To: StageConfirmed}
	}
	return e.apply(ctx, p, knownVersion)
}

func (e *Engine) apply(ctx context.Context, p *Proposal, knownVersion int64) (*Proposal, error) {
	current, err := e.plans.Get(ctx, p.CycleTag)
	if err != nil {
		return p, fmt.Errorf("loading plan %s: %w", p.CycleTag, err)
	}
	if knownVersion != p.LockedPlanVersion || current.Version != p.LockedPlanVersion {
		return p, e.fallBack(ctx, p, &plan.ConflictError{Known: knownVersion, Current: current.Version})
	}
	if err := e.move(ctx, p, StageApplying); err != nil {
		return p, err
	}

	opt, _ := p.Option(p.SelectedOptionID)
	next := current.Clone()
	n := applyOption(next, opt)
	now := e.now().UTC()
	next.UpdatedAt = now
	ids := make([]any, 0, len(opt.SessionIDs))
	for _, sid := range opt.SessionIDs {
		ids = append(ids, sid)
	}
	entry := plan.HistoryEntry{
		ModifiedAt:       now,
		ModificationType: plan.ModificationProposalApplied,
		Details: map[string]any{
			"proposal_id":       p.ID,
			"option_id":         opt.ID,
			"modulation_factor": opt.ModulationFactor,
			"session_ids":       ids,
			"sessions_modified": n,
		},
	}
	committed, err := e.plans.Commit(ctx, next, p.LockedPlanVersion, entry)
	if err != nil {
		var ce *plan.ConflictError
		if errors.As(err, &ce) {
			e.commitOutcome("conflict")
			// a resumed claim may find its own earlier commit
			if prior, ok, herr := e.appliedEntry(ctx, p); herr == nil && ok {
				return e.finish(ctx, p, prior)
			}
			return p, e.fallBack(ctx, p, ce)
		}
		e.commitOutcome("error")
		p.Result = &Result{AppliedAt: now, Error: err.Error()}
		if merr := e.move(ctx, p, StageFailed); merr != nil {
			e.log.Error().Err(merr).Str("proposal", p.ID).Msg("recording failed proposal")
		}
		return p, fmt.Errorf("applying proposal %s: %w", p.ID, err)
	}
	e.commitOutcome("ok")
	entry.Version = committed.Version
	return e.finish(ctx, p, entry)
}

// resume handles a proposal found in applying. If its commit already landed
// the proposal is marked confirmed from the history entry. A claim older than
// applyTimeout is taken over and applied again; the plan version guard keeps
// that from applying twice.
func (e *Engine) resume(ctx context.Context, p *Proposal, knownVersion int64) (*Proposal, error) {
	entry, ok, err := e.appliedEntry(ctx, p)
	if err != nil {
		return p, err
	}
	if ok {
		return e.finish(ctx, p, entry)
	}
	if e.now().Sub(p.UpdatedAt) < applyTimeout {
		return p, ErrApplying
	}
	e.log.Warn().Str("proposal", p.ID).Time("claimed_at", p.UpdatedAt).Msg("taking over abandoned confirmation")
	return e.apply(ctx, p, knownVersion)
}

const applyTimeout = time.Minute

// appliedEntry finds the history entry this proposal committed, if any.
func (e *Engine) appliedEntry(ctx context.Context, p *Proposal) (plan.HistoryEntry, bool, error) {
	history, err := e.plans.History(ctx, p.CycleTag)
	if err != nil {
		return plan.HistoryEntry{}, false, fmt.Errorf("loading history %s: %w", p.CycleTag, err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Version <= p.LockedPlanVersion {
			break
		}
		if h.ModificationType == plan.ModificationProposalApplied && h.Details["proposal_id"] == p.ID {
			return h, true, nil
		}
	}
	return plan.HistoryEntry{}, false, nil
}

func (e *Engine) finish(ctx context.Context, p *Proposal, entry plan.HistoryEntry) (*Proposal, error) {
	p.Result = &Result{PlanVersion: entry.Version, AppliedAt: entry.ModifiedAt, SessionsModified: countOf(entry.Details["sessions_modified"])}
	if err := e.move(ctx, p, StageConfirmed); err != nil {
		if errors.Is(err, ErrStale) {
			if cur, gerr := e.repo.Get(ctx, p.ID); gerr == nil && cur.Stage == StageConfirmed {
				return cur, nil
			}
		}
		e.log.Error().Err(err).Str("proposal", p.ID).Int64("plan_version", entry.Version).Msg("plan updated but proposal not marked confirmed")
		return p, err
	}
	e.log.Info().Str("proposal", p.ID).Str("option", p.SelectedOptionID).Int64("plan_version", entry.Version).Int("sessions", p.Result.SessionsModified).Msg("proposal confirmed")
	return p, nil
}

// countOf reads a count back from history details, which come out of JSON as float64.
func countOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Cancel closes an open proposal. Cancelling a cancelled proposal is a no-op.
func (e *Engine) Cancel(ctx context.Context, id string) (*Proposal, error) {
	p, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Stage {
	case StageCancelled:
		return p, nil
	case StageExpired:
		return p, ErrExpired
	case StageConfirmed, StageFailed, StageApplying:
		return p, &TransitionError{From: p.Stage, To: StageCancelled}
	}
	return p, e.move(ctx, p, StageCancelled)
}

func (e *Engine) fallBack(ctx context.Context, p *Proposal, conflict *plan.ConflictError) error {
	p.SelectedOptionID = ""
	p.LockedPlanVersion = 0
	if err := e.move(ctx, p, StagePresented); err != nil {
		return err
	}
	e.log.Warn().Str("proposal", p.ID).Int64("known", conflict.Known).Int64("current", conflict.Current).Msg("confirm rejected on stale plan version")
	return conflict
}

func (e *Engine) summary(ctx context.Context, p *Proposal) (*Summary, error) {
	current, err := e.plans.Get(ctx, p.CycleTag)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", p.CycleTag, err)
	}
	opt, _ := p.Option(p.SelectedOptionID)
	return summarize(p, opt, current), nil
}

func summarize(p *Proposal, opt Option, pl *plan.Plan) *Summary {
	s := &Summary{
		ProposalID:       p.ID,
		OptionID:         opt.ID,
		Description:      opt.Description,
		AffectedDays:     opt.AffectedDays,
		ModulationFactor: opt.ModulationFactor,
		EffectiveDate:    opt.EffectiveDate,
		PlanVersion:      p.LockedPlanVersion,
		ExpiresAt:        p.ExpiresAt,
		SessionDates:     []calendar.Date{},
	}
	for _, id := range opt.SessionIDs {
		if sess, ok := pl.SessionByID(id); ok {
			s.SessionDates = append(s.SessionDates, sess.Date)
		}
	}
	return s
}

func (e *Engine) load(ctx context.Context, id string) (*Proposal, error) {
	p, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.expireIfDue(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// loadOpen is load for operations that need a non-terminal proposal.
func (e *Engine) loadOpen(ctx context.Context, id string) (*Proposal, error) {
	p, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Stage == StageExpired {
		return p, ErrExpired
	}
	return p, nil
}

func (e *Engine) expireIfDue(ctx context.Context, p *Proposal) error {
	if p.Stage.Terminal() || p.Stage == StageApplying || e.now().Before(p.ExpiresAt) {
		return nil
	}
	return e.move(ctx, p, StageExpired)
}

func (e *Engine) move(ctx context.Context, p *Proposal, to Stage) error {
	from := p.Stage
	p.Stage = to
	p.UpdatedAt = e.now().UTC()
	if err := e.repo.Update(ctx, p); err != nil {
		p.Stage = from
		return fmt.Errorf("saving proposal %s: %w", p.ID, err)
	}
	e.transitioned(from, to)
	e.log.Debug().Str("proposal", p.ID).Str("from", string(from)).Str("to", string(to)).Msg("proposal transition")
	return nil
}

func (e *Engine) transitioned(from, to Stage) {
	if e.metrics != nil {
		e.metrics.ProposalTransition(string(from), string(to))
	}
}

func (e *Engine) commitOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.PlanCommit(string(plan.ModificationProposalApplied), outcome)
	}
}
