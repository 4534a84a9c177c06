/*
repair_test.go - Operator reset, backfill replay, and snapshot rebuild

PURPOSE:
  The repair tools rebuild derived state (predicted dates, cached
  balances) from the immutable origin fields. The backfill replay must
  produce exactly the history the daily pass would have, had it run
  every day - both paths share ResolveCohorts, and these tests prove
  the replay converges to the same outcome.
*/
package discipline_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/discipline/store"
)

// =============================================================================
// RESET - Un-expire one point
// =============================================================================

func TestResetPoint_RestoresActiveStateAndDeadline(t *testing.T) {
	// GIVEN: A point erroneously retired by a good-behavior sweep
	// WHEN: The operator resets it
	// THEN: It is active again, every GBRO trace is gone, and its SRO
	//       deadline matches a freshly created point's

	mem, coord, _ := newEngine()
	p1 := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	seedPoint(t, mem, "emp-1", day(10), discipline.ViolationTardy, true)
	runPass(t, coord, discipline.PassOptions{Now: day(20)})
	runPass(t, coord, discipline.PassOptions{Now: day(75)})
	require.True(t, getPoint(t, mem, p1.ID).IsExpired)

	repairer := discipline.NewRepairer(mem, nil)
	restored, err := repairer.ResetPoint(context.Background(), p1.ID, day(80))
	require.NoError(t, err)

	assert.False(t, restored.IsExpired)
	assert.Nil(t, restored.ExpiredAt)
	assert.Equal(t, discipline.ExpirationNone, restored.Expiration)
	assert.Nil(t, restored.GBROExpiresAt)
	assert.Nil(t, restored.GBROAppliedAt)
	assert.Empty(t, restored.GBROBatchID)
	assert.Equal(t, discipline.SROExpiry(day(0), discipline.ViolationTardy, false), restored.ExpiresAt)
}

func TestResetPoint_RejectsActivePoint(t *testing.T) {
	// GIVEN: A point that never expired
	// THEN: Reset is refused; the tool exists only to correct errors

	mem := store.NewMemory()
	p := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)

	repairer := discipline.NewRepairer(mem, nil)
	_, err := repairer.ResetPoint(context.Background(), p.ID, day(10))
	assert.ErrorIs(t, err, discipline.ErrPointNotExpired)
	assert.False(t, getPoint(t, mem, p.ID).IsExpired)
}

// =============================================================================
// BACKFILL REPLAY - Reconstruct missed cascade history
// =============================================================================

func TestRecomputeCohortDates_ReplaysMissedCascade(t *testing.T) {
	// GIVEN: Four eligible points (days 0, 10, 20, 30) that never saw a
	//        daily pass
	// WHEN: The backfill runs on day 160
	// THEN: The full cascade replays - the newest pair at its scheduled
	//       day 90, the older pair at day 150 - and all four are forgiven

	mem := store.NewMemory()
	p1 := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	p2 := seedPoint(t, mem, "emp-1", day(10), discipline.ViolationTardy, true)
	p3 := seedPoint(t, mem, "emp-1", day(20), discipline.ViolationTardy, true)
	p4 := seedPoint(t, mem, "emp-1", day(30), discipline.ViolationTardy, true)

	repairer := discipline.NewRepairer(mem, nil)
	forgiven, err := repairer.RecomputeCohortDates(context.Background(), "emp-1", day(160), "backfill-1")
	require.NoError(t, err)
	assert.Equal(t, 4, forgiven)

	for _, id := range []discipline.PointID{p1.ID, p2.ID, p3.ID, p4.ID} {
		got := getPoint(t, mem, id)
		assert.True(t, got.IsExpired)
		assert.Equal(t, discipline.ExpirationGBRO, got.Expiration)
		assert.Equal(t, "backfill-1", got.GBROBatchID)
	}

	// The scheduled dates on the records reflect the cascade, not the
	// replay date.
	newest := getPoint(t, mem, p4.ID)
	require.NotNil(t, newest.GBROExpiresAt)
	assert.Equal(t, day(90), *newest.GBROExpiresAt)

	oldest := getPoint(t, mem, p1.ID)
	require.NotNil(t, oldest.GBROExpiresAt)
	assert.Equal(t, day(150), *oldest.GBROExpiresAt)
}

func TestRecomputeCohortDates_StopsAtUnresolvedCohort(t *testing.T) {
	// GIVEN: Three eligible points (days 0, 10, 20)
	// WHEN: The backfill runs on day 100
	// THEN: The newest pair is forgiven at day 80; the lone survivor gets a
	//       predicted date (day 140) but is held

	mem := store.NewMemory()
	oldest := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	seedPoint(t, mem, "emp-1", day(10), discipline.ViolationTardy, true)
	seedPoint(t, mem, "emp-1", day(20), discipline.ViolationTardy, true)

	repairer := discipline.NewRepairer(mem, nil)
	forgiven, err := repairer.RecomputeCohortDates(context.Background(), "emp-1", day(100), "backfill-2")
	require.NoError(t, err)
	assert.Equal(t, 2, forgiven)

	survivor := getPoint(t, mem, oldest.ID)
	assert.False(t, survivor.IsExpired)
	require.NotNil(t, survivor.GBROExpiresAt)
	assert.Equal(t, day(140), *survivor.GBROExpiresAt)
}

func TestRecomputeCohortDates_MatchesDailyPassOutcome(t *testing.T) {
	// GIVEN: The same four violations in two stores - one swept daily, one
	//        backfilled in a single replay
	// THEN: Both end in the same terminal state with the same scheduled dates

	daily := store.NewMemory()
	replayed := store.NewMemory()
	coord := discipline.NewCoordinator(daily, daily, nil, nil)

	shifts := []int{0, 10, 20, 30}
	for _, d := range shifts {
		seedPoint(t, daily, "emp-1", day(d), discipline.ViolationTardy, true)
		seedPoint(t, replayed, "emp-1", day(d), discipline.ViolationTardy, true)
	}

	for d := 31; d <= 160; d += 10 {
		runPass(t, coord, discipline.PassOptions{Now: day(d)})
	}

	repairer := discipline.NewRepairer(replayed, nil)
	_, err := repairer.RecomputeCohortDates(context.Background(), "emp-1", day(160), "backfill-3")
	require.NoError(t, err)

	ctx := context.Background()
	dailyPoints, err := daily.PointsByUser(ctx, "emp-1")
	require.NoError(t, err)
	replayPoints, err := replayed.PointsByUser(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, replayPoints, len(dailyPoints))

	for i := range dailyPoints {
		assert.Equal(t, dailyPoints[i].ShiftDate, replayPoints[i].ShiftDate)
		assert.Equal(t, dailyPoints[i].IsExpired, replayPoints[i].IsExpired)
		assert.Equal(t, dailyPoints[i].Expiration, replayPoints[i].Expiration)
		require.NotNil(t, replayPoints[i].GBROExpiresAt)
		assert.Equal(t, *dailyPoints[i].GBROExpiresAt, *replayPoints[i].GBROExpiresAt)
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestRebuildSnapshots(t *testing.T) {
	// GIVEN: Two employees, one with an excused point
	// WHEN: Snapshots are rebuilt as of day 30
	// THEN: Each cached aggregate matches the evaluator's answer

	mem := store.NewMemory()
	ctx := context.Background()

	seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	excused := seedPoint(t, mem, "emp-1", day(5), discipline.ViolationTardy, true)
	seedPoint(t, mem, "emp-2", day(10), discipline.ViolationTardy, true)

	svc := &discipline.Service{Store: mem}
	_, err := svc.ExcusePoint(ctx, excused.ID, day(15))
	require.NoError(t, err)

	repairer := discipline.NewRepairer(mem, nil)
	require.NoError(t, repairer.RebuildSnapshots(ctx, mem, day(30)))

	snap1, err := mem.GetSnapshot(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, snap1)
	assert.True(t, snap1.Balance.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, snap1.ActivePoints)

	snap2, err := mem.GetSnapshot(ctx, "emp-2")
	require.NoError(t, err)
	require.NotNil(t, snap2)
	assert.True(t, snap2.Balance.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, snap2.ActivePoints)
}
