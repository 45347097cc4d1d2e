package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

// testPool connects to DATABASE_URL and skips the test when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping postgres tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func uniqueTag(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestPlanStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewPlanStore(pool)
	tag := uniqueTag(t)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM plans WHERE cycle_tag = $1`, tag) })

	d := calendar.MustParse
	created, err := s.Create(ctx, &plan.Plan{
		CycleTag:  tag,
		AthleteID: "ath-1",
		StartDate: d("2025-05-05"),
		EndDate:   d("2025-06-01"),
		Sessions:  []plan.Session{{ID: "s1", Date: d("2025-05-06"), Intensity: plan.IntensityHard, PlannedLoad: 90}},
		RestDays:  []calendar.Date{d("2025-05-09")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	got, err := s.Get(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, d("2025-05-06"), got.Sessions[0].Date)
	assert.Equal(t, []calendar.Date{d("2025-05-09")}, got.RestDays)

	next := got.Clone()
	next.Sessions[0].Date = d("2025-05-07")
	committed, err := s.Commit(ctx, next, 1, plan.HistoryEntry{ModificationType: plan.ModificationSessionMoved, Details: map[string]any{"session_id": "s1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), committed.Version)

	_, err = s.Commit(ctx, next, 1, plan.HistoryEntry{ModificationType: plan.ModificationSessionMoved})
	var ce *plan.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(2), ce.Current)

	h, err := s.History(ctx, tag)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, plan.ModificationCreated, h[0].ModificationType)
	assert.Equal(t, "s1", h[1].Details["session_id"])

	_, err = s.Get(ctx, tag+"-missing")
	assert.ErrorIs(t, err, plan.ErrNotFound)
	_, err = s.Commit(ctx, &plan.Plan{CycleTag: tag + "-missing"}, 1, plan.HistoryEntry{})
	assert.ErrorIs(t, err, plan.ErrNotFound)
}

func TestPlanStoreConcurrentCommits(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewPlanStore(pool)
	tag := uniqueTag(t)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM plans WHERE cycle_tag = $1`, tag) })

	p, err := s.Create(ctx, &plan.Plan{CycleTag: tag, StartDate: calendar.MustParse("2025-05-05"), EndDate: calendar.MustParse("2025-05-11")})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Commit(ctx, p, 1, plan.HistoryEntry{ModificationType: plan.ModificationSessionMoved}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestProposalStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewProposalStore(pool)
	tag := uniqueTag(t)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM proposals WHERE cycle_tag = $1`, tag) })

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &proposal.Proposal{
		ID:         tag + "-p1",
		AthleteID:  "ath-1",
		CycleTag:   tag,
		Stage:      proposal.StageCreated,
		AlertLevel: load.SeverityCritical,
		Options: []proposal.Option{{
			ID: "recovery-days", Kind: proposal.KindRecoveryDays, ModulationFactor: 0.5,
			EffectiveDate: calendar.MustParse("2025-05-07"), WindowDays: 3, SessionIDs: []string{"s1"}, AffectedDays: 1,
		}},
		ExpiresAt: now.Add(48 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Create(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)
	assert.Equal(t, load.SeverityCritical, got.AlertLevel)
	assert.Equal(t, p.Options, got.Options)

	stale, _ := s.Get(ctx, p.ID)
	got.Stage = proposal.StagePresented
	require.NoError(t, s.Update(ctx, got))
	assert.Equal(t, int64(2), got.Revision)
	stale.Stage = proposal.StageCancelled
	assert.ErrorIs(t, s.Update(ctx, stale), proposal.ErrStale)

	open, err := s.ListOpen(ctx, tag)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, proposal.StagePresented, open[0].Stage)

	second := p.Clone()
	second.ID = tag + "-p2"
	second.Stage = proposal.StageCreated
	assert.ErrorIs(t, s.Create(ctx, second), proposal.ErrOpenExists)

	got.Stage = proposal.StageConfirmed
	require.NoError(t, s.Update(ctx, got))
	open, err = s.ListOpen(ctx, tag)
	require.NoError(t, err)
	assert.Empty(t, open)

	// once the first is closed the cycle can open another
	require.NoError(t, s.Create(ctx, second))

	_, err = s.Get(ctx, "nope-"+tag)
	assert.ErrorIs(t, err, proposal.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, &proposal.Proposal{ID: "nope-" + tag, Revision: 1}), proposal.ErrNotFound)
}
