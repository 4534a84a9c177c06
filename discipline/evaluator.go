/*
evaluator.go - As-of-instant balance reconstruction

PURPOSE:
  Answers "was point P active at instant T" and "what was user U's point
  total at instant T" from the stored timestamps alone. This is the single
  source of truth for historical balances: when a past leave request's
  eligibility must be judged with the discipline state that existed at
  submission time, this is what judges it.

WHY NO EVENT LOG:
  Every lifecycle transition leaves its instant behind on the point
  (excused_at, expired_at). A point that expired after T was, at T, still
  active - so the current record is enough to replay any past balance.
  The repair tooling relies on the same property (recompute from origin
  fields, not replay of a log).

PURITY:
  ActiveAsOf is a pure function of one point and one instant. It never
  mutates and never reads the clock.
*/
package discipline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ActiveAsOf reports whether a point counted against its owner at instant t.
//
// A point is active as of t iff the violation had already occurred
// (shift_date < t) and the point had not yet left the active state:
// either it is still active now, or it was excused/expired only after t.
func ActiveAsOf(p *Point, t time.Time) bool {
	if !p.ShiftDate.Before(t) {
		// The violation had not yet occurred at t.
		return false
	}
	if p.IsExcused {
		return p.ExcusedAt != nil && p.ExcusedAt.After(t)
	}
	if p.IsExpired {
		return p.ExpiredAt != nil && p.ExpiredAt.After(t)
	}
	return true
}

// Evaluator reconstructs balances from a point store.
type Evaluator struct {
	Store Store
}

// SumActiveAsOf returns the sum of point values active for a user at t.
func (e *Evaluator) SumActiveAsOf(ctx context.Context, userID UserID, t time.Time) (decimal.Decimal, error) {
	points, err := e.Store.PointsByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for i := range points {
		if ActiveAsOf(&points[i], t) {
			sum = sum.Add(points[i].Value)
		}
	}
	return sum, nil
}

// CurrentBalance returns the user's point total as of now.
func (e *Evaluator) CurrentBalance(ctx context.Context, userID UserID) (decimal.Decimal, error) {
	return e.SumActiveAsOf(ctx, userID, time.Now().UTC())
}

// ActivePoints returns a user's currently active points, newest first.
func (e *Evaluator) ActivePoints(ctx context.Context, userID UserID) ([]Point, error) {
	points, err := e.Store.PointsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var active []Point
	for _, p := range points {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active, nil
}
