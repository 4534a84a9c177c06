package discipline

import "time"

// =============================================================================
// CALENDAR MATH - Date-only helpers over time.Time
// =============================================================================
// The engine stores full timestamps (excusals and expirations carry the
// instant they happened) but every expiry *decision* compares calendar days,
// so a pass that runs at 23:50 and one that runs at 00:10 agree.

// Day constructs a UTC midnight timestamp for a calendar day.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two instants fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// OnOrBeforeDay reports date(a) <= date(b). This is the comparison every
// expiry predicate uses, per policy: day precision, not timestamp precision.
func OnOrBeforeDay(a, b time.Time) bool {
	return !DateOf(a).After(DateOf(b))
}

// AddDays returns t shifted by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddMonths returns t shifted by n calendar months.
func AddMonths(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}

// Today returns the current UTC calendar day.
func Today() time.Time {
	return DateOf(time.Now())
}
