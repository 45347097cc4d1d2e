package load

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

func f(v float64) *float64 { return &v }

func newClassifier() *Classifier {
	return NewClassifier(NewCatalog(), DefaultThresholds())
}

func TestStatusBoundaries(t *testing.T) {
	c := newClassifier()
	tests := []struct {
		balance float64
		want    FormStatus
		zone    int
	}{
		{-1000, StatusOverload, 1},
		{-20.0001, StatusOverload, 1},
		{-20, StatusFatigued, 2},
		{-10.0001, StatusFatigued, 2},
		{-10, StatusNeutral, 3},
		{0, StatusNeutral, 3},
		{4.9999, StatusNeutral, 3},
		{5, StatusFresh, 4},
		{14.9999, StatusFresh, 4},
		{15, StatusPeaking, 5},
		{1000, StatusPeaking, 5},
	}
	for _, tt := range tests {
		got, zone := c.Status(tt.balance)
		if got != tt.want || zone != tt.zone {
			t.Errorf("Status(%v) = %s/%d, want %s/%d", tt.balance, got, zone, tt.want, tt.zone)
		}
	}
}

func TestRampBoundaries(t *testing.T) {
	c := newClassifier()
	tests := []struct {
		rate float64
		want RampBand
	}{
		{-0.0001, RampDeclining},
		{0, RampStable},
		{2.999, RampStable},
		{3, RampIdeal},
		{5, RampFast},
		{6.999, RampFast},
		{7, RampDangerous},
	}
	for _, tt := range tests {
		if got := c.Ramp(tt.rate); got != tt.want {
			t.Errorf("Ramp(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestZonesPartitionRandomBalances(t *testing.T) {
	c := newClassifier()
	b := c.Thresholds().Balance
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		x := (rng.Float64() - 0.5) * 200
		members := 0
		if x < b.FatiguedFrom {
			members++
		}
		if x >= b.FatiguedFrom && x < b.NeutralFrom {
			members++
		}
		if x >= b.NeutralFrom && x < b.FreshFrom {
			members++
		}
		if x >= b.FreshFrom && x < b.PeakingFrom {
			members++
		}
		if x >= b.PeakingFrom {
			members++
		}
		require.Equal(t, 1, members, "balance %v", x)

		s1, z1 := c.Status(x)
		s2, z2 := c.Status(x)
		require.Equal(t, s1, s2)
		require.Equal(t, z1, z2)
	}
}

func TestClassifyOverloadIsCritical(t *testing.T) {
	c := newClassifier()
	got := c.Classify(Snapshot{Date: calendar.MustParse("2025-05-01"), LongTermLoad: 55, ShortTermLoad: 80, Balance: -25})
	assert.Equal(t, StatusOverload, got.Status)
	assert.True(t, got.HasCritical())
	assert.Equal(t, CodeOverloadCritical, got.Alerts[0].Code)
}

func TestClassifyFreshHasNoCritical(t *testing.T) {
	c := newClassifier()
	got := c.Classify(Snapshot{LongTermLoad: 60, ShortTermLoad: 50, Balance: 10})
	assert.Equal(t, StatusFresh, got.Status)
	assert.False(t, got.HasCritical())
	for _, a := range got.Alerts {
		assert.NotEqual(t, SeverityCritical, a.Severity)
	}
}

func TestClassifyOrdersBySeverityStable(t *testing.T) {
	c := newClassifier()
	s := Snapshot{LongTermLoad: 50, ShortTermLoad: 62, Balance: -12, RampRate: f(5.5)}
	got := c.Classify(s, "custom-note", CodeRampCritical)

	codes := make([]string, 0, len(got.Alerts))
	for _, a := range got.Alerts {
		codes = append(codes, a.Code)
	}
	// ramp-critical outranks both warnings; the warnings keep insertion order
	assert.Equal(t, []string{CodeRampCritical, CodeOverloadWarning, CodeRampHigh, "custom-note"}, codes)
	assert.Equal(t, RampFast, got.Ramp)

	again := c.Classify(s, "custom-note", CodeRampCritical)
	assert.Equal(t, got, again)
}

func TestClassifyMissingOptionalFields(t *testing.T) {
	c := newClassifier()
	got := c.Classify(Snapshot{LongTermLoad: 40, ShortTermLoad: 40, Balance: 0})
	assert.Equal(t, StatusNeutral, got.Status)
	assert.Empty(t, got.Ramp)
	assert.Empty(t, got.Alerts)
	assert.NotNil(t, got.Alerts)
}

func TestClassifyNaNRampIsAbsent(t *testing.T) {
	c := newClassifier()
	got := c.Classify(Snapshot{LongTermLoad: 40, ShortTermLoad: 40, Balance: 0, RampRate: f(math.NaN())})
	assert.Empty(t, got.Ramp)
	assert.Empty(t, got.Alerts)
	assert.False(t, got.HasCritical())
}

func TestClassifyOverreaching(t *testing.T) {
	c := newClassifier()
	s := Snapshot{LongTermLoad: 40, ShortTermLoad: 45, Balance: -5, DailyStress: f(70)}
	got := c.Classify(s)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, CodeDetectedOverreaching, got.Alerts[0].Code)

	s.DailyStress = f(50)
	assert.Empty(t, c.Classify(s).Alerts)

	// positive balance never flags overreaching
	s = Snapshot{LongTermLoad: 40, ShortTermLoad: 30, Balance: 10, DailyStress: f(200)}
	for _, a := range c.Classify(s).Alerts {
		assert.NotEqual(t, CodeDetectedOverreaching, a.Code)
	}
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.Balance.FatiguedFrom = -30
	require.NoError(t, th.Validate())
	c := NewClassifier(NewCatalog(), th)
	got, _ := c.Status(-25)
	assert.Equal(t, StatusFatigued, got)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	th := DefaultThresholds()
	th.Balance.NeutralFrom = th.Balance.FatiguedFrom
	assert.ErrorIs(t, th.Validate(), ErrBadThresholds)

	th = DefaultThresholds()
	th.Ramp.IdealFrom = 10
	assert.ErrorIs(t, th.Validate(), ErrBadThresholds)

	th = DefaultThresholds()
	th.OverreachFactor = 0
	assert.ErrorIs(t, th.Validate(), ErrBadThresholds)
}

func TestSnapshotUnmarshalDerivesBalance(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-01-02","long_term_load":50,"short_term_load":62.5}`), &s))
	assert.InDelta(t, -12.5, s.Balance, 1e-9)
	assert.Nil(t, s.RampRate)
	assert.Equal(t, "2025-01-02", s.Date.String())

	require.NoError(t, json.Unmarshal([]byte(`{"long_term_load":50,"short_term_load":40,"balance":3,"ramp_rate":4.2}`), &s))
	assert.InDelta(t, 3, s.Balance, 1e-9)
	require.NotNil(t, s.RampRate)
	assert.InDelta(t, 4.2, *s.RampRate, 1e-9)
}
