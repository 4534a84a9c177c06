/*
gbro.go - Good-Behavior Roll-Off cohort engine

PURPOSE:
  Forgives the two most recently-incurred, still-active, GBRO-eligible
  points once 60 days have elapsed with no new violation, cascading to
  the next pair for employees carrying more than two eligible points.

COHORTING:
  A user's pending points (active, eligible, not yet forgiven) are ordered
  newest-first and partitioned into consecutive pairs: cohort 0 is the
  newest two, cohort 1 the next two, and so on. Only cohort 0 ever carries
  a predicted roll-off date; everything behind it stays null until promoted.

ANCHORING:
  When cohort 0 needs a date (first assignment, or a new violation changed
  the pending set), the reference is the newest violation date among the
  user's active points - unless a later forgiveness (gbro_applied_at)
  exists, which resets the good-behavior clock instead. Predicted roll-off
  is reference + 60 days.

CASCADE:
  When cohort 0 resolves, the next cohort is anchored at the *scheduled*
  roll-off date of the cohort just expired, plus 60 days. Using the
  scheduled date rather than the actual run date keeps the clock fair to a
  late-running batch and deterministic regardless of cron jitter.

PURITY:
  ResolveCohorts is a pure function over a user's point set. Both the
  daily pass (batch.go) and the backfill/repair tooling (repair.go) call
  it, so the two can never drift apart.
*/
package discipline

import (
	"sort"
	"time"
)

// =============================================================================
// RESOLUTION - The plan ResolveCohorts produces
// =============================================================================

// CohortResolution describes every GBRO mutation one user needs at `now`.
// The caller applies it; ResolveCohorts itself never touches storage.
type CohortResolution struct {
	// Assign carries points whose predicted date must be rewritten:
	// cohort 0 members receiving a fresh prediction, and stale predictions
	// on points demoted out of cohort 0 being cleared.
	Assign []Point

	// Due is the resolving cohort: exactly CohortSize points whose
	// scheduled date has been reached, or nil. A partial cohort is never
	// due - a lone eligible point is held until a second accrues.
	Due []Point

	// ScheduledAt is Due's scheduled roll-off date. The cascade anchors on
	// this, never on the run date.
	ScheduledAt time.Time

	// Promote carries the next cohort's points with their new predicted
	// date (ScheduledAt + 60 days), to be written together with Due's
	// expiration.
	Promote []Point
}

// Pending reports whether the resolution leaves anything to do.
func (r *CohortResolution) Pending() bool {
	return len(r.Assign) > 0 || len(r.Due) > 0
}

// =============================================================================
// RESOLVE - Pure cohort computation
// =============================================================================

// ResolveCohorts computes the GBRO plan for one user's complete point set
// as of `now`. Input order does not matter; output is deterministic.
func ResolveCohorts(points []Point, now time.Time) CohortResolution {
	var res CohortResolution

	pending := pendingNewestFirst(points)
	if len(pending) == 0 {
		return res
	}

	cohortLen := CohortSize
	if len(pending) < cohortLen {
		cohortLen = len(pending)
	}
	cohort := pending[:cohortLen]
	rest := pending[cohortLen:]

	// Demoted points must not carry a prediction. Only the lowest
	// unresolved cohort ever does.
	for _, p := range rest {
		if p.GBROExpiresAt != nil {
			p.GBROExpiresAt = nil
			res.Assign = append(res.Assign, p)
		}
	}

	// Recompute cohort 0's date opportunistically: whenever any member has
	// no date, or the pair disagrees (the pending set changed under them).
	scheduled, known := cohortDate(cohort)
	if !known {
		scheduled = DateOf(AddDays(anchor(points), GBRODays))
		for i := range cohort {
			d := scheduled
			cohort[i].GBROExpiresAt = &d
			res.Assign = append(res.Assign, cohort[i])
		}
	}

	// A partial cohort never resolves; the pair size is fixed.
	if len(cohort) == CohortSize && OnOrBeforeDay(scheduled, now) {
		res.Due = cohort
		res.ScheduledAt = scheduled

		next := rest
		if len(next) > CohortSize {
			next = next[:CohortSize]
		}
		promoted := DateOf(AddDays(scheduled, GBRODays))
		for i := range next {
			d := promoted
			next[i].GBROExpiresAt = &d
			res.Promote = append(res.Promote, next[i])
		}
	}

	return res
}

// anchor returns the good-behavior reference date for a fresh prediction:
// the newest violation date among active points, or a later forgiveness
// instant if one exists.
func anchor(points []Point) time.Time {
	var ref time.Time
	for i := range points {
		p := &points[i]
		if p.Active() && p.ShiftDate.After(ref) {
			ref = p.ShiftDate
		}
		if p.GBROAppliedAt != nil && p.GBROAppliedAt.After(ref) {
			ref = *p.GBROAppliedAt
		}
	}
	return DateOf(ref)
}

// cohortDate returns the cohort's agreed scheduled date, if every member
// carries the same one.
func cohortDate(cohort []Point) (time.Time, bool) {
	var scheduled time.Time
	for i := range cohort {
		d := cohort[i].GBROExpiresAt
		if d == nil {
			return time.Time{}, false
		}
		if i == 0 {
			scheduled = DateOf(*d)
			continue
		}
		if !SameDay(scheduled, *d) {
			return time.Time{}, false
		}
	}
	return scheduled, true
}

// pendingNewestFirst filters a user's points down to the good-behavior
// pipeline and orders them newest violation first. Ties break on creation
// time, then ID, so cohort membership is stable across runs.
func pendingNewestFirst(points []Point) []Point {
	var pending []Point
	for _, p := range points {
		if p.GBROPending() {
			pending = append(pending, p)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.ShiftDate.Equal(b.ShiftDate) {
			return a.ShiftDate.After(b.ShiftDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return pending
}

// applyGBROExpiry transitions one cohort member to Expired(gbro).
// The scheduled date stays on the record: it is what the cascade anchored
// on, and repair tooling reads it back.
func applyGBROExpiry(p *Point, now, scheduled time.Time, batchID string) {
	expiredAt := now
	appliedAt := now
	sched := scheduled
	p.IsExpired = true
	p.ExpiredAt = &expiredAt
	p.Expiration = ExpirationGBRO
	p.GBROAppliedAt = &appliedAt
	p.GBROBatchID = batchID
	p.GBROExpiresAt = &sched
}
