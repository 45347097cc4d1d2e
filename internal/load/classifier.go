package load

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/creasty/defaults"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

// FormStatus is derived from balance alone.
type FormStatus string

const (
	StatusOverload FormStatus = "overload"
	StatusFatigued FormStatus = "fatigued"
	StatusNeutral  FormStatus = "neutral"
	StatusFresh    FormStatus = "fresh"
	StatusPeaking  FormStatus = "peaking"
)

// RampBand classifies how fast long-term load is progressing.
type RampBand string

const (
	RampDeclining RampBand = "declining"
	RampStable    RampBand = "stable"
	RampIdeal     RampBand = "ideal"
	RampFast      RampBand = "fast"
	RampDangerous RampBand = "dangerous"
)

// Snapshot is one day of load indicators for an athlete.
type Snapshot struct {
	Date          calendar.Date `json:"date"`
	LongTermLoad  float64       `json:"long_term_load"`
	ShortTermLoad float64       `json:"short_term_load"`
	Balance       float64       `json:"balance"`
	RampRate      *float64      `json:"ramp_rate,omitempty"`
	DailyStress   *float64      `json:"daily_stress,omitempty"`
}

func NewSnapshot(date calendar.Date, longTerm, shortTerm float64) Snapshot {
	return Snapshot{Date: date, LongTermLoad: longTerm, ShortTermLoad: shortTerm, Balance: longTerm - shortTerm}
}

// UnmarshalJSON derives balance from the two loads when the sender omits it.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	type raw Snapshot
	var r struct {
		raw
		Balance *float64 `json:"balance"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*s = Snapshot(r.raw)
	if r.Balance != nil {
		s.Balance = *r.Balance
	} else {
		s.Balance = s.LongTermLoad - s.ShortTermLoad
	}
	return nil
}

// Thresholds hold the lower bound (inclusive) of every zone above the first.
type Thresholds struct {
	Balance         BalanceThresholds `yaml:"balance"`
	Ramp            RampThresholds    `yaml:"ramp"`
	OverreachFactor float64           `yaml:"overreach_factor" default:"1.5"`
}

type BalanceThresholds struct {
	FatiguedFrom float64 `yaml:"fatigued_from" default:"-20"`
	NeutralFrom  float64 `yaml:"neutral_from" default:"-10"`
	FreshFrom    float64 `yaml:"fresh_from" default:"5"`
	PeakingFrom  float64 `yaml:"peaking_from" default:"15"`
}

type RampThresholds struct {
	StableFrom    float64 `yaml:"stable_from" default:"0"`
	IdealFrom     float64 `yaml:"ideal_from" default:"3"`
	FastFrom      float64 `yaml:"fast_from" default:"5"`
	DangerousFrom float64 `yaml:"dangerous_from" default:"7"`
}

func DefaultThresholds() Thresholds {
	var t Thresholds
	defaults.MustSet(&t)
	return t
}

var ErrBadThresholds = errors.New("invalid thresholds")

func (t Thresholds) Validate() error {
	b := []float64{t.Balance.FatiguedFrom, t.Balance.NeutralFrom, t.Balance.FreshFrom, t.Balance.PeakingFrom}
	if !strictlyAscending(b) {
		return fmt.Errorf("%w: balance bounds must be finite and strictly ascending, got %v", ErrBadThresholds, b)
	}
	r := []float64{t.Ramp.StableFrom, t.Ramp.IdealFrom, t.Ramp.FastFrom, t.Ramp.DangerousFrom}
	if !strictlyAscending(r) {
		return fmt.Errorf("%w: ramp bounds must be finite and strictly ascending, got %v", ErrBadThresholds, r)
	}
	if !(t.OverreachFactor > 0) || math.IsInf(t.OverreachFactor, 0) {
		return fmt.Errorf("%w: overreach_factor must be positive, got %v", ErrBadThresholds, t.OverreachFactor)
	}
	return nil
}

func strictlyAscending(v []float64) bool {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
		if i > 0 && x <= v[i-1] {
			return false
		}
	}
	return true
}

// Classification is the interpreted snapshot. Zone numbers the status
// bands from 1 (overload) to 5 (peaking).
type Classification struct {
	Status FormStatus `json:"status"`
	Zone   int        `json:"zone"`
	Ramp   RampBand   `json:"ramp_band,omitempty"`
	Alerts []Alert    `json:"alerts"`
}

// HasCritical reports whether any alert is critical.
func (c Classification) HasCritical() bool {
	return c.MaxSeverity() == SeverityCritical
}

// MaxSeverity is info when there are no alerts.
func (c Classification) MaxSeverity() Severity {
	if len(c.Alerts) == 0 {
		return SeverityInfo
	}
	// alerts are sorted, most severe first
	return c.Alerts[0].Severity
}

// Classifier is safe for concurrent use.
type Classifier struct {
	catalog *Catalog
	th      Thresholds
}

func NewClassifier(catalog *Catalog, th Thresholds) *Classifier {
	return &Classifier{catalog: catalog, th: th}
}

func (c *Classifier) Thresholds() Thresholds { return c.th }

// Status maps balance onto exactly one zone. NaN is treated as peaking.
func (c *Classifier) Status(balance float64) (FormStatus, int) {
	b := c.th.Balance
	switch {
	case balance < b.FatiguedFrom:
		return StatusOverload, 1
	case balance < b.NeutralFrom:
		return StatusFatigued, 2
	case balance < b.FreshFrom:
		return StatusNeutral, 3
	case balance < b.PeakingFrom:
		return StatusFresh, 4
	default:
		return StatusPeaking, 5
	}
}

func (c *Classifier) Ramp(rate float64) RampBand {
	r := c.th.Ramp
	switch {
	case rate < r.StableFrom:
		return RampDeclining
	case rate < r.IdealFrom:
		return RampStable
	case rate < r.FastFrom:
		return RampIdeal
	case rate < r.DangerousFrom:
		return RampFast
	default:
		return RampDangerous
	}
}

// Classify interprets one snapshot. extra carries alert codes raised
// elsewhere; they are resolved through the catalog and merged in.
func (c *Classifier) Classify(s Snapshot, extra ...string) Classification {
	status, zone := c.Status(s.Balance)
	out := Classification{Status: status, Zone: zone}

	var codes []string
	switch status {
	case StatusOverload:
		codes = append(codes, CodeOverloadCritical)
	case StatusFatigued:
		codes = append(codes, CodeOverloadWarning)
	case StatusFresh:
		codes = append(codes, CodeFreshnessOptimal)
	}

	if s.RampRate != nil && !math.IsNaN(*s.RampRate) {
		out.Ramp = c.Ramp(*s.RampRate)
		switch out.Ramp {
		case RampDangerous:
			codes = append(codes, CodeRampCritical)
		case RampFast:
			codes = append(codes, CodeRampHigh)
		case RampDeclining:
			codes = append(codes, CodeRampDeclining)
		}
	}

	if s.DailyStress != nil && s.Balance < 0 && s.LongTermLoad > 0 &&
		*s.DailyStress >= c.th.OverreachFactor*s.LongTermLoad {
		codes = append(codes, CodeDetectedOverreaching)
	}

	codes = append(codes, extra...)
	out.Alerts = make([]Alert, 0, len(codes))
	for _, code := range codes {
		out.Alerts = append(out.Alerts, c.catalog.Resolve(code))
	}
	slices.SortStableFunc(out.Alerts, func(a, b Alert) int {
		return int(b.Severity) - int(a.Severity)
	})
	return out
}
