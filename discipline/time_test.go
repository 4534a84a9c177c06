package discipline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/discipline-engine/discipline"
)

func TestDateOf_NormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2025-03-01 03:00 +09 is 2025-02-28 18:00 UTC.
	got := discipline.DateOf(time.Date(2025, time.March, 1, 3, 0, 0, 0, loc))
	assert.Equal(t, discipline.Day(2025, time.February, 28), got)
}

func TestOnOrBeforeDay_IgnoresTimeOfDay(t *testing.T) {
	deadline := discipline.Day(2025, time.July, 1)

	assert.True(t, discipline.OnOrBeforeDay(deadline, deadline.Add(5*time.Minute)))
	assert.True(t, discipline.OnOrBeforeDay(deadline, discipline.Day(2025, time.July, 2)))
	assert.False(t, discipline.OnOrBeforeDay(deadline, discipline.Day(2025, time.June, 30).Add(23*time.Hour+59*time.Minute)))
}

func TestAddMonths_CalendarNormalization(t *testing.T) {
	// Aug 31 + 6 months lands past the nonexistent Feb 31.
	got := discipline.AddMonths(discipline.Day(2025, time.August, 31), 6)
	assert.Equal(t, discipline.Day(2026, time.March, 3), got)

	got = discipline.AddMonths(discipline.Day(2025, time.January, 15), 6)
	assert.Equal(t, discipline.Day(2025, time.July, 15), got)
}
