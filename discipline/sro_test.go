/*
sro_test.go - Standard roll-off selection and application
*/
package discipline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/discipline/store"
)

func TestSRO_DateOnlyBoundary(t *testing.T) {
	// GIVEN: A point whose deadline is 2025-07-01
	// THEN: A pass at 00:10 on the deadline day already selects it, and a
	//       pass late on June 30 does not - time of day never matters

	mem := store.NewMemory()
	ctx := context.Background()
	seedPoint(t, mem, "emp-1", discipline.Day(2025, time.January, 1), discipline.ViolationHalfDayAbsence, false)

	expirer := &discipline.SROExpirer{Store: mem}

	due, err := expirer.ExpireDueSRO(ctx, discipline.Day(2025, time.June, 30).Add(23*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = expirer.ExpireDueSRO(ctx, discipline.Day(2025, time.July, 1).Add(10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSRO_ExcludesExcusedAndExpired(t *testing.T) {
	// GIVEN: Three overdue points: one live, one excused, one already expired
	// THEN: Only the live one is selected

	mem := store.NewMemory()
	ctx := context.Background()

	live := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationHalfDayAbsence, false)
	excused := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationHalfDayAbsence, false)
	expired := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationHalfDayAbsence, false)

	svc := &discipline.Service{Store: mem}
	_, err := svc.ExcusePoint(ctx, excused.ID, day(10))
	require.NoError(t, err)

	expirer := &discipline.SROExpirer{Store: mem}
	already, err := mem.GetPoint(ctx, expired.ID)
	require.NoError(t, err)
	_, err = expirer.ApplySRO(ctx, *already, day(190))
	require.NoError(t, err)

	due, err := expirer.ExpireDueSRO(ctx, day(200))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, live.ID, due[0].ID)
}

func TestApplySRO_GuardsAndPredictionClearing(t *testing.T) {
	// GIVEN: An overdue point still carrying a stale good-behavior prediction
	// WHEN: SRO retires it
	// THEN: The prediction is cleared; excused and already-expired points
	//       are refused outright

	mem := store.NewMemory()
	ctx := context.Background()
	expirer := &discipline.SROExpirer{Store: mem}

	p := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	stale := day(60)
	p.GBROExpiresAt = &stale
	require.NoError(t, mem.UpdatePoint(ctx, p))

	updated, err := expirer.ApplySRO(ctx, p, day(190))
	require.NoError(t, err)
	assert.True(t, updated.IsExpired)
	assert.Equal(t, discipline.ExpirationSRO, updated.Expiration)
	assert.Nil(t, updated.GBROExpiresAt)
	require.NotNil(t, updated.ExpiredAt)
	assert.True(t, discipline.SameDay(*updated.ExpiredAt, day(190)))

	_, err = expirer.ApplySRO(ctx, updated, day(191))
	assert.ErrorIs(t, err, discipline.ErrPointExpired)

	excused := updated
	excused.IsExpired = false
	excused.IsExcused = true
	_, err = expirer.ApplySRO(ctx, excused, day(191))
	assert.ErrorIs(t, err, discipline.ErrPointExcused)
}
