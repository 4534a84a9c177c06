/*
service_test.go - Point intake and excusal validation
*/
package discipline_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/discipline/store"
)

// =============================================================================
// CREATE - Deadline fixing and validation
// =============================================================================

func TestCreatePoint_DeadlineByViolationType(t *testing.T) {
	// GIVEN: Violations on 2025-01-15
	// THEN: A no-call-no-show gets 12 months, an advised one 6 months,
	//       everything else 6 months

	mem := store.NewMemory()
	svc := &discipline.Service{Store: mem}
	ctx := context.Background()
	shift := discipline.Day(2025, time.January, 15)

	cases := []struct {
		name      string
		violation discipline.ViolationType
		isAdvised bool
		want      time.Time
	}{
		{"ncns", discipline.ViolationNoCallNoShow, false, discipline.Day(2026, time.January, 15)},
		{"advised ncns", discipline.ViolationNoCallNoShow, true, discipline.Day(2025, time.July, 15)},
		{"tardy", discipline.ViolationTardy, false, discipline.Day(2025, time.July, 15)},
		{"half day", discipline.ViolationHalfDayAbsence, false, discipline.Day(2025, time.July, 15)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := svc.CreatePoint(ctx, discipline.CreatePointInput{
				UserID:    "emp-1",
				ShiftDate: shift,
				Violation: tc.violation,
				IsAdvised: tc.isAdvised,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.ExpiresAt)
		})
	}
}

func TestCreatePoint_MonthEndDeadline(t *testing.T) {
	// GIVEN: A violation on 2025-08-31
	// THEN: Six months later lands on the calendar-normalized 2026-03-03
	//       (Feb 31 does not exist), per time.AddDate semantics

	mem := store.NewMemory()
	svc := &discipline.Service{Store: mem}

	p, err := svc.CreatePoint(context.Background(), discipline.CreatePointInput{
		UserID:    "emp-1",
		ShiftDate: discipline.Day(2025, time.August, 31),
		Violation: discipline.ViolationTardy,
	})
	require.NoError(t, err)
	assert.Equal(t, discipline.Day(2026, time.March, 3), p.ExpiresAt)
}

func TestCreatePoint_DefaultsValueFromViolation(t *testing.T) {
	// GIVEN: No explicit value
	// THEN: The violation type's conventional value applies

	mem := store.NewMemory()
	svc := &discipline.Service{Store: mem}

	p, err := svc.CreatePoint(context.Background(), discipline.CreatePointInput{
		UserID:    "emp-1",
		ShiftDate: day(0),
		Violation: discipline.ViolationTardy,
	})
	require.NoError(t, err)
	assert.True(t, p.Value.Equal(decimal.NewFromFloat(0.25)))

	explicit, err := svc.CreatePoint(context.Background(), discipline.CreatePointInput{
		UserID:    "emp-1",
		ShiftDate: day(0),
		Violation: discipline.ViolationTardy,
		Value:     decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.True(t, explicit.Value.Equal(decimal.NewFromInt(2)))
}

func TestCreatePoint_RejectsInvalidInput(t *testing.T) {
	mem := store.NewMemory()
	svc := &discipline.Service{Store: mem}
	ctx := context.Background()

	// GIVEN: An unknown violation type
	_, err := svc.CreatePoint(ctx, discipline.CreatePointInput{
		UserID: "emp-1", ShiftDate: day(0), Violation: "overslept",
	})
	assert.ErrorIs(t, err, discipline.ErrInvalidViolation)
	assert.True(t, discipline.IsValidation(err))

	// GIVEN: No user
	_, err = svc.CreatePoint(ctx, discipline.CreatePointInput{
		ShiftDate: day(0), Violation: discipline.ViolationTardy,
	})
	assert.Error(t, err)

	// GIVEN: No shift date
	_, err = svc.CreatePoint(ctx, discipline.CreatePointInput{
		UserID: "emp-1", Violation: discipline.ViolationTardy,
	})
	assert.Error(t, err)
}

// =============================================================================
// EXCUSE - State-transition guards
// =============================================================================

func TestExcusePoint_ClearsPredictionAndSticks(t *testing.T) {
	// GIVEN: A point carrying a predicted roll-off date
	// WHEN: It is excused
	// THEN: The prediction is cleared, the excusal instant recorded, and a
	//       second excusal is a no-op returning the same state

	mem, coord, _ := newEngine()
	p := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationTardy, true)
	seedPoint(t, mem, "emp-1", day(5), discipline.ViolationTardy, true)
	runPass(t, coord, discipline.PassOptions{Now: day(10)})
	require.NotNil(t, getPoint(t, mem, p.ID).GBROExpiresAt)

	svc := &discipline.Service{Store: mem}
	excused, err := svc.ExcusePoint(context.Background(), p.ID, day(20))
	require.NoError(t, err)
	assert.True(t, excused.IsExcused)
	assert.Nil(t, excused.GBROExpiresAt)
	require.NotNil(t, excused.ExcusedAt)
	assert.True(t, discipline.SameDay(*excused.ExcusedAt, day(20)))

	again, err := svc.ExcusePoint(context.Background(), p.ID, day(25))
	require.NoError(t, err)
	assert.True(t, discipline.SameDay(*again.ExcusedAt, day(20)), "repeat excusal must not move the instant")
}

func TestExcusePoint_RejectsExpiredPoint(t *testing.T) {
	// GIVEN: A point already retired by SRO
	// THEN: Excusal is refused with the point-expired state error

	mem, coord, _ := newEngine()
	p := seedPoint(t, mem, "emp-1", day(0), discipline.ViolationHalfDayAbsence, false)
	runPass(t, coord, discipline.PassOptions{Now: day(200)})
	require.True(t, getPoint(t, mem, p.ID).IsExpired)

	svc := &discipline.Service{Store: mem}
	_, err := svc.ExcusePoint(context.Background(), p.ID, day(201))
	assert.ErrorIs(t, err, discipline.ErrPointExpired)

	var state *discipline.StateError
	require.ErrorAs(t, err, &state)
	assert.Equal(t, p.ID, state.PointID)
}

func TestExcusePoint_UnknownPoint(t *testing.T) {
	mem := store.NewMemory()
	svc := &discipline.Service{Store: mem}

	_, err := svc.ExcusePoint(context.Background(), "missing", day(0))
	assert.True(t, discipline.IsNotFound(err))
}
