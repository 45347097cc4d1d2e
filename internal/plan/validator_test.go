package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/formcoach/internal/calendar"
)

func d(s string) calendar.Date { return calendar.MustParse(s) }

// fixture is a four-week cycle starting Monday 2025-05-05.
func fixture() *Plan {
	return &Plan{
		CycleTag:  "spring-25",
		AthleteID: "ath-1",
		Version:   1,
		StartDate: d("2025-05-05"),
		EndDate:   d("2025-06-01"),
		Sessions: []Session{
			{ID: "s1", Date: d("2025-05-06"), Title: "Threshold Intervals", Intensity: IntensityHard, PlannedLoad: 90},
			{ID: "s2", Date: d("2025-05-07"), Title: "Easy Run", Intensity: IntensityEasy, PlannedLoad: 35},
			{ID: "s3", Date: d("2025-05-08"), Title: "Tempo", Intensity: IntensityHard, PlannedLoad: 80},
			{ID: "s4", Date: d("2025-05-10"), Title: "Long Ride", Intensity: IntensityModerate, PlannedLoad: 120},
			{ID: "s5", Date: d("2025-05-11"), Title: "Benchmark 5k", Intensity: IntensityHard, PlannedLoad: 70, IsKey: true},
		},
		RestDays:        []calendar.Date{d("2025-05-05"), d("2025-05-09")},
		ComplianceDates: []calendar.Date{d("2025-05-05"), d("2025-05-06"), d("2025-05-07")},
	}
}

func codes(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestValidateRules(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name     string
		req      MoveRequest
		want     []string
		severity map[string]WarningSeverity
	}{
		{
			name:     "easy session onto a hard day",
			req:      MoveRequest{SourceDate: d("2025-05-07"), TargetDate: d("2025-05-08")},
			want:     []string{WarnConflictSameDay},
			severity: map[string]WarningSeverity{WarnConflictSameDay: SeverityMedium},
		},
		{
			name:     "hard session onto a hard day",
			req:      MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-08")},
			want:     []string{WarnConflictSameDay},
			severity: map[string]WarningSeverity{WarnConflictSameDay: SeverityHigh},
		},
		{
			name: "hard session onto a rest day next to a hard day",
			req:  MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-09")},
			want: []string{WarnConsecutiveIntensity, WarnRestDayRemoved},
		},
		{
			name: "key session into the next week",
			req:  MoveRequest{SourceDate: d("2025-05-11"), TargetDate: d("2025-05-12")},
			want: []string{WarnCrossWeekMove, WarnKeySessionMoved},
			severity: map[string]WarningSeverity{
				WarnCrossWeekMove:   SeverityLow,
				WarnKeySessionMoved: SeverityHigh,
			},
		},
		{
			name:     "past the end of the cycle",
			req:      MoveRequest{SourceDate: d("2025-05-10"), TargetDate: d("2025-06-02")},
			want:     []string{WarnOutOfCycleRange, WarnCrossWeekMove},
			severity: map[string]WarningSeverity{WarnOutOfCycleRange: SeverityHigh},
		},
		{
			name: "moderate session onto a rest day",
			req:  MoveRequest{SourceDate: d("2025-05-10"), TargetDate: d("2025-05-09")},
			want: []string{WarnRestDayRemoved},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := v.Validate(tt.req, fixture())
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(ws))
			for _, w := range ws {
				assert.NotEmpty(t, w.Message)
				assert.NotNil(t, w.Details)
				if want, ok := tt.severity[w.Code]; ok {
					assert.Equal(t, want, w.Severity, w.Code)
				}
			}
		})
	}
}

func TestValidateDoesNotMutatePlan(t *testing.T) {
	p := fixture()
	before := fixture()
	_, err := NewValidator().Validate(MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-09")}, p)
	require.NoError(t, err)
	assert.Equal(t, before, p)
}

func TestValidateIsDeterministic(t *testing.T) {
	v := NewValidator()
	req := MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-12")}
	a, err := v.Validate(req, fixture())
	require.NoError(t, err)
	b, err := v.Validate(req, fixture())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.Equal(t, string(ja), string(jb))
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name  string
		req   MoveRequest
		field string
	}{
		{"no session on source", MoveRequest{SourceDate: d("2025-05-09"), TargetDate: d("2025-05-12")}, "source_date"},
		{"same day", MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-06")}, "target_date"},
		{"unknown session", MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-12"), SessionID: "nope"}, "session_id"},
		{"session on another day", MoveRequest{SourceDate: d("2025-05-06"), TargetDate: d("2025-05-12"), SessionID: "s3"}, "session_id"},
		{"missing target", MoveRequest{SourceDate: d("2025-05-06")}, "target_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.req, fixture())
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseMoveRequest(t *testing.T) {
	req, err := ParseMoveRequest("2025-05-06", "2025-05-07", "")
	require.NoError(t, err)
	assert.Equal(t, d("2025-05-07"), req.TargetDate)

	_, err = ParseMoveRequest("2025-5-6", "2025-05-07", "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source_date", ve.Field)

	_, err = ParseMoveRequest("2025-05-06", "2025-05-07T00:00:00Z", "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "target_date", ve.Field)
}

func TestImpact(t *testing.T) {
	v := NewValidator()
	p := fixture()

	got := v.Impact(MoveRequest{SourceDate: d("2025-05-07"), TargetDate: d("2025-05-13")}, p)
	assert.Equal(t, []calendar.Date{d("2025-05-07"), d("2025-05-12"), d("2025-05-13")}, got.DatesAffected)
	assert.Equal(t, 1, got.RecordsInvalidated)
	assert.True(t, got.RecalculationTriggered)

	got = v.Impact(MoveRequest{SourceDate: d("2025-05-10"), TargetDate: d("2025-05-08")}, p)
	assert.Equal(t, []calendar.Date{d("2025-05-08"), d("2025-05-10")}, got.DatesAffected)
	assert.Zero(t, got.RecordsInvalidated)
	assert.False(t, got.RecalculationTriggered)

	// moving back two weeks crosses two boundaries
	got = v.Impact(MoveRequest{SourceDate: d("2025-05-20"), TargetDate: d("2025-05-06")}, p)
	assert.Equal(t, []calendar.Date{d("2025-05-06"), d("2025-05-12"), d("2025-05-19"), d("2025-05-20")}, got.DatesAffected)
	assert.Equal(t, 1, got.RecordsInvalidated)
}

func TestWeek(t *testing.T) {
	p := fixture()
	assert.Equal(t, 0, p.Week(d("2025-05-05")))
	assert.Equal(t, 0, p.Week(d("2025-05-11")))
	assert.Equal(t, 1, p.Week(d("2025-05-12")))
	assert.Equal(t, -1, p.Week(d("2025-05-04")))
	assert.Equal(t, -1, p.Week(d("2025-04-28")))
	assert.Equal(t, -2, p.Week(d("2025-04-27")))
	assert.Equal(t, d("2025-05-19"), p.WeekStart(2))
}

func TestWarningSeverityJSON(t *testing.T) {
	b, err := json.Marshal(Warning{Code: WarnCrossWeekMove, Severity: SeverityLow, Message: "m", Details: map[string]any{"n": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"cross-week-move","severity":"low","message":"m","details":{"n":1}}`, string(b))
}
