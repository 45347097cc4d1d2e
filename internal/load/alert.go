// Package load interprets training-load snapshots: form status, ramp bands and alerts.
package load

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity ranks alerts. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "critical":
		*s = SeverityCritical
	case "warning":
		*s = SeverityWarning
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Known alert codes.
const (
	CodeOverloadCritical     = "overload-critical"
	CodeOverloadWarning      = "overload-warning"
	CodeRampCritical         = "ramp-critical"
	CodeRampHigh             = "ramp-high"
	CodeRampDeclining        = "ramp-declining"
	CodeDetectedOverreaching = "detected-overreaching"
	CodeFreshnessOptimal     = "freshness-optimal"
)

type Alert struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type catalogEntry struct {
	severity Severity
	message  string
}

// Catalog maps alert codes to a severity and message. Resolve never fails:
// codes it does not know come back as info alerts with a readable message.
// A Catalog must not be modified after it is shared between goroutines.
type Catalog struct {
	entries map[string]catalogEntry
}

func NewCatalog() *Catalog {
	c := &Catalog{entries: map[string]catalogEntry{}}
	c.Register(CodeOverloadCritical, SeverityCritical, "Training stress far exceeds your fitness. Take recovery now.")
	c.Register(CodeOverloadWarning, SeverityWarning, "Fatigue is building. Keep the next sessions easy.")
	c.Register(CodeRampCritical, SeverityCritical, "Fitness is ramping dangerously fast. Injury risk is high.")
	c.Register(CodeRampHigh, SeverityWarning, "Fitness is ramping faster than recommended.")
	c.Register(CodeRampDeclining, SeverityInfo, "Fitness is declining.")
	c.Register(CodeDetectedOverreaching, SeverityWarning, "Today's stress is well above your usual load.")
	c.Register(CodeFreshnessOptimal, SeverityInfo, "You are fresh and ready for a hard effort.")
	return c
}

// Register adds or replaces a code.
func (c *Catalog) Register(code string, sev Severity, message string) {
	c.entries[code] = catalogEntry{severity: sev, message: message}
}

func (c *Catalog) Resolve(code string) Alert {
	if e, ok := c.entries[code]; ok {
		return Alert{Code: code, Severity: e.severity, Message: e.message}
	}
	return Alert{Code: code, Severity: SeverityInfo, Message: Humanize(code)}
}

// Humanize turns an alert code like "hr-drift_high" into "Hr Drift High".
func Humanize(code string) string {
	s := strings.ToValidUTF8(code, "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', ':', '/':
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	words := strings.Fields(s)
	if len(words) == 0 {
		return "Unknown Alert"
	}
	// A Caser is not safe for concurrent use.
	return cases.Title(language.Und).String(strings.Join(words, " "))
}
