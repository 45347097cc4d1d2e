// Package presentation maps domain enums to display labels, colors and
// icons. Only the HTTP and email layers use it; domain packages stay free
// of UI vocabulary.
package presentation

import (
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

type Style struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

const (
	red    = "#d64545"
	orange = "#e8833a"
	yellow = "#e0b83c"
	green  = "#3fa66b"
	blue   = "#3b82c4"
	grey   = "#8a8f98"
)

var unknown = Style{Label: "Unknown", Color: grey, Icon: "❔"}

var statuses = map[load.FormStatus]Style{
	load.StatusOverload: {"Overload", red, "🛑"},
	load.StatusFatigued: {"Fatigued", orange, "😮‍💨"},
	load.StatusNeutral:  {"Neutral", grey, "➖"},
	load.StatusFresh:    {"Fresh", green, "🌱"},
	load.StatusPeaking:  {"Peaking", blue, "🏁"},
}

var ramps = map[load.RampBand]Style{
	load.RampDeclining: {"Declining", grey, "↘"},
	load.RampStable:    {"Stable", green, "→"},
	load.RampIdeal:     {"Ideal", blue, "↗"},
	load.RampFast:      {"Fast", orange, "⤴"},
	load.RampDangerous: {"Dangerous", red, "⚠"},
}

var severities = map[load.Severity]Style{
	load.SeverityInfo:     {"Info", blue, "ℹ"},
	load.SeverityWarning:  {"Warning", orange, "⚠"},
	load.SeverityCritical: {"Critical", red, "🛑"},
}

var warnings = map[plan.WarningSeverity]Style{
	plan.SeverityLow:    {"Low", yellow, "•"},
	plan.SeverityMedium: {"Medium", orange, "⚠"},
	plan.SeverityHigh:   {"High", red, "🛑"},
}

var risks = map[proposal.RiskLevel]Style{
	proposal.RiskLow:    {"Low", green, "🟢"},
	proposal.RiskMedium: {"Medium", yellow, "🟡"},
	proposal.RiskHigh:   {"High", red, "🔴"},
}

var stages = map[proposal.Stage]Style{
	proposal.StageCreated:              {"New", grey, "✳"},
	proposal.StagePresented:            {"Awaiting choice", blue, "💬"},
	proposal.StageOptionSelected:       {"Option chosen", blue, "☑"},
	proposal.StageAwaitingConfirmation: {"Awaiting confirmation", orange, "⏳"},
	proposal.StageApplying:             {"Applying", orange, "⚙"},
	proposal.StageConfirmed:            {"Applied", green, "✅"},
	proposal.StageCancelled:            {"Cancelled", grey, "✖"},
	proposal.StageExpired:              {"Expired", grey, "⌛"},
	proposal.StageFailed:               {"Failed", red, "❗"},
}

func ForStatus(s load.FormStatus) Style { return lookup(statuses, s) }
func ForRamp(r load.RampBand) Style { return lookup(ramps, r) }
func ForSeverity(s load.Severity) Style { return lookup(severities, s) }
func ForWarningSeverity(s plan.WarningSeverity) Style { return lookup(warnings, s) }
func ForRisk(r proposal.RiskLevel) Style { return lookup(risks, r) }
func ForStage(s proposal.Stage) Style { return lookup(stages, s) }

func lookup[K comparable](m map[K]Style, k K) Style {
	if s, ok := m[k]; ok {
		return s
	}
	return unknown
}
