package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/api"
	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/discipline/store"
)

func TestScheduler_FiresOnStartAndStopsCleanly(t *testing.T) {
	// GIVEN: A running scheduler over a store with one overdue point
	// THEN: The immediate fire expires it; Stop returns without hanging

	mem := store.NewMemory()
	coord := discipline.NewCoordinator(mem, mem, nil, nil)
	p := seedOverduePoint(t, mem)

	scheduler := api.NewExpirationScheduler(coord, nil)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		got, err := mem.GetPoint(context.Background(), p.ID)
		return err == nil && got.IsExpired
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_Disabled_NeverFires(t *testing.T) {
	mem := store.NewMemory()
	coord := discipline.NewCoordinator(mem, mem, nil, nil)
	p := seedOverduePoint(t, mem)

	scheduler := api.NewExpirationScheduler(coord, nil)
	scheduler.Enabled = false
	scheduler.Start()

	time.Sleep(50 * time.Millisecond)
	got, err := mem.GetPoint(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsExpired)
}

func seedOverduePoint(t *testing.T, mem *store.Memory) discipline.Point {
	t.Helper()
	svc := &discipline.Service{Store: mem}
	p, err := svc.CreatePoint(context.Background(), discipline.CreatePointInput{
		UserID:    "emp-1",
		ShiftDate: time.Now().UTC().AddDate(0, -8, 0),
		Violation: discipline.ViolationHalfDayAbsence,
	})
	require.NoError(t, err)
	return p
}
