package proposal

import (
	"fmt"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
)

type optionTemplate struct {
	kind        OptionKind
	risk        RiskLevel
	factor      float64
	window      int
	hardOnly    bool
	description string
	rationale   string
}

var templates = []optionTemplate{
	{
		kind:        KindRecoveryDays,
		risk:        RiskLow,
		factor:      0.5,
		window:      3,
		description: "Halve the load of the next three days",
		rationale:   "A short recovery block lets short-term load fall back toward your fitness.",
	},
	{
		kind:        KindSkipIntensity,
		risk:        RiskLow,
		factor:      0,
		window:      7,
		hardOnly:    true,
		description: "Drop the hard sessions of the coming week",
		rationale:   "Easy volume keeps fitness ticking over while the intensity that drives fatigue is removed.",
	},
	{
		kind:        KindReduceVolume,
		risk:        RiskMedium,
		factor:      0.8,
		window:      7,
		description: "Cut the coming week's load by 20%",
		rationale:   "A moderate cut keeps the week's structure but slows fatigue build-up.",
	},
}

// buildOptions turns the templates into options against p. Options that
// would touch no session are dropped.
func buildOptions(p *plan.Plan, effective calendar.Date) []Option {
	out := make([]Option, 0, len(templates))
	for _, t := range templates {
		o := Option{
			ID:               string(t.kind),
			Kind:             t.kind,
			Description:      t.description,
			RiskLevel:        t.risk,
			ModulationFactor: t.factor,
			Rationale:        t.rationale,
			EffectiveDate:    effective,
			WindowDays:       t.window,
			HardOnly:         t.hardOnly,
		}
		o.SessionIDs = sessionsInWindow(p, o)
		o.AffectedDays = len(o.SessionIDs)
		if o.AffectedDays > 0 {
			out = append(out, o)
		}
	}
	return out
}

// sessionsInWindow returns, in plan order, the ids of the sessions o would modify.
func sessionsInWindow(p *plan.Plan, o Option) []string {
	end := o.EffectiveDate.AddDays(o.WindowDays)
	var ids []string
	for _, s := range p.Sessions {
		if s.Date.Before(o.EffectiveDate) || !s.Date.Before(end) {
			continue
		}
		if s.PlannedLoad <= 0 {
			continue
		}
		if o.HardOnly && s.Intensity != plan.IntensityHard {
			continue
		}
		ids = append(ids, s.ID)
	}
	return ids
}

// applyOption scales the listed sessions and reports how many it changed.
func applyOption(p *plan.Plan, o Option) int {
	want := make(map[string]struct{}, len(o.SessionIDs))
	for _, id := range o.SessionIDs {
		want[id] = struct{}{}
	}
	n := 0
	for i := range p.Sessions {
		if _, ok := want[p.Sessions[i].ID]; ok {
			p.Sessions[i].PlannedLoad *= o.ModulationFactor
			n++
		}
	}
	return n
}

func describe(c load.Classification, s load.Snapshot) string {
	msg := fmt.Sprintf("Form is %s (balance %.1f)", c.Status, s.Balance)
	if len(c.Alerts) > 0 {
		msg += ": " + c.Alerts[0].Message
	}
	return msg
}
