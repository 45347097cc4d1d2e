package proposal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/briangreenhill/formcoach/internal/load"
)

func TestSortByUrgency(t *testing.T) {
	now := time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)
	within := 12 * time.Hour
	mk := func(id string, level load.Severity, expiresIn time.Duration) *Proposal {
		return &Proposal{ID: id, AlertLevel: level, ExpiresAt: now.Add(expiresIn)}
	}

	ps := []*Proposal{
		mk("warn-late", load.SeverityWarning, 40*time.Hour),
		mk("warn-soon", load.SeverityWarning, 2*time.Hour),
		mk("crit-b", load.SeverityCritical, 30*time.Hour),
		mk("crit-a", load.SeverityCritical, 30*time.Hour),
		mk("info", load.SeverityInfo, time.Hour),
		mk("crit-soon", load.SeverityCritical, 10*time.Hour),
	}
	in := append([]*Proposal(nil), ps...)

	top := MostUrgent(ps, now, within)
	assert.Equal(t, "crit-soon", top.ID)
	assert.Equal(t, in, ps, "MostUrgent must not reorder its input")

	SortByUrgency(ps, now, within)
	var ids []string
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"crit-soon", "crit-a", "crit-b", "warn-soon", "warn-late", "info"}, ids)
}

func TestMostUrgentEmpty(t *testing.T) {
	assert.Nil(t, MostUrgent(nil, time.Now(), time.Hour))
}

func TestIsUrgent(t *testing.T) {
	now := time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)
	p := &Proposal{AlertLevel: load.SeverityWarning, ExpiresAt: now.Add(13 * time.Hour)}
	assert.False(t, p.IsUrgent(now, 12*time.Hour))
	assert.True(t, p.IsUrgent(now.Add(2*time.Hour), 12*time.Hour))

	p.AlertLevel = load.SeverityCritical
	assert.True(t, p.IsUrgent(now, 12*time.Hour))
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageConfirmed, StageCancelled, StageExpired, StageFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Stage{StageCreated, StagePresented, StageOptionSelected, StageAwaitingConfirmation} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := &Proposal{
		ID:      "p",
		Options: []Option{{ID: "a", SessionIDs: []string{"s1"}}},
		Result:  &Result{SessionsModified: 1},
	}
	c := p.Clone()
	c.Options[0].SessionIDs[0] = "changed"
	c.Result.SessionsModified = 9
	assert.Equal(t, "s1", p.Options[0].SessionIDs[0])
	assert.Equal(t, 1, p.Result.SessionsModified)
}
