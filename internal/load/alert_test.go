package load

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKnownCodes(t *testing.T) {
	c := NewCatalog()
	tests := map[string]Severity{
		CodeOverloadCritical:     SeverityCritical,
		CodeOverloadWarning:      SeverityWarning,
		CodeRampCritical:         SeverityCritical,
		CodeRampHigh:             SeverityWarning,
		CodeDetectedOverreaching: SeverityWarning,
		CodeFreshnessOptimal:     SeverityInfo,
	}
	for code, want := range tests {
		a := c.Resolve(code)
		assert.Equal(t, code, a.Code)
		assert.Equal(t, want, a.Severity, code)
		assert.NotEmpty(t, a.Message)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	a := NewCatalog().Resolve("hr_drift-high")
	assert.Equal(t, SeverityInfo, a.Severity)
	assert.Equal(t, "Hr Drift High", a.Message)
}

func TestHumanize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "Unknown Alert"},
		{"---", "Unknown Alert"},
		{"sleep.debt", "Sleep Debt"},
		{"  heat:stress  ", "Heat Stress"},
		{"a__b", "A B"},
		{"\xff\xfe", "Unknown Alert"},
	}
	for _, tt := range tests {
		if got := Humanize(tt.in); got != tt.want {
			t.Errorf("Humanize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveIsTotalOnRandomInput(t *testing.T) {
	c := NewCatalog()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		b := make([]byte, rng.Intn(24))
		rng.Read(b)
		a := c.Resolve(string(b))
		require.NotEmpty(t, a.Message)
		require.Contains(t, []Severity{SeverityInfo, SeverityWarning, SeverityCritical}, a.Severity)
	}
}

func TestRegisterOverrides(t *testing.T) {
	c := NewCatalog()
	c.Register("heat-stress", SeverityWarning, "It is hot out there.")
	a := c.Resolve("heat-stress")
	assert.Equal(t, SeverityWarning, a.Severity)
	assert.Equal(t, "It is hot out there.", a.Message)
}

func TestSeverityJSON(t *testing.T) {
	b, err := json.Marshal(Alert{Code: "x", Severity: SeverityCritical, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"x","severity":"critical","message":"m"}`, string(b))

	var a Alert
	require.NoError(t, json.Unmarshal([]byte(`{"code":"y","severity":"warning","message":"n"}`), &a))
	assert.Equal(t, SeverityWarning, a.Severity)
	assert.Error(t, json.Unmarshal([]byte(`{"severity":"fatal"}`), &a))

	assert.True(t, SeverityCritical > SeverityWarning && SeverityWarning > SeverityInfo)
}
