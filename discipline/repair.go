/*
repair.go - Operator repair and recompute utilities

PURPOSE:
  The engine stores derived state - predicted roll-off dates and cached
  balance aggregates - rather than recomputing on every read. When that
  derived state is wrong (a bug, a bad data import, an erroneous
  expiration), these tools rebuild it from the immutable origin fields of
  each point. Nothing here is part of the automatic pass.

TOOLS:
  ResetPoint:          Un-expire one point, recomputing its SRO deadline
                       from shift_date as if newly created.
  RecomputeCohortDates: Rebuild every user's predicted roll-off dates,
                       replaying the cascade up to `now` (initial backfill
                       and post-bug repair share this path).
  RebuildSnapshots:    Recompute every cached balance aggregate.

SEE ALSO:
  - gbro.go: ResolveCohorts, shared with the daily pass so the two never drift
*/
package discipline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Repairer holds the operator-invoked recompute tools.
type Repairer struct {
	Store TxStore
	Log   *zap.Logger
}

func NewRepairer(store TxStore, log *zap.Logger) *Repairer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repairer{Store: store, Log: log}
}

// ResetPoint returns an erroneously expired point to the active set.
// The SRO deadline is recomputed from the original shift_date, as if the
// point were newly created, and all GBRO and expiry fields are cleared.
// Rejected if the point never expired.
func (r *Repairer) ResetPoint(ctx context.Context, id PointID, now time.Time) (Point, error) {
	p, err := r.Store.GetPoint(ctx, id)
	if err != nil {
		return Point{}, err
	}
	if !p.IsExpired {
		return Point{}, &StateError{PointID: id, Op: "reset", Reason: ErrPointNotExpired}
	}

	p.IsExpired = false
	p.ExpiredAt = nil
	p.Expiration = ExpirationNone
	p.GBROExpiresAt = nil
	p.GBROAppliedAt = nil
	p.GBROBatchID = ""
	p.ExpiresAt = SROExpiry(p.ShiftDate, p.Violation, p.IsAdvised)

	if err := r.Store.UpdatePoint(ctx, *p); err != nil {
		return Point{}, err
	}

	r.Log.Info("point reset",
		zap.String("point_id", string(id)),
		zap.String("user_id", string(p.UserID)),
		zap.Time("expires_at", p.ExpiresAt))
	return *p, nil
}

// RecomputeCohortDates rebuilds predicted roll-off dates for one user,
// replaying the cohort cascade up to now. Repeated application of the same
// resolution the daily pass uses: assign, expire if due, promote, repeat.
// Returns how many points were forgiven during the replay.
func (r *Repairer) RecomputeCohortDates(ctx context.Context, userID UserID, now time.Time, batchID string) (int, error) {
	forgiven := 0

	for {
		points, err := r.Store.PointsByUser(ctx, userID)
		if err != nil {
			return forgiven, err
		}

		res := ResolveCohorts(points, now)
		if !res.Pending() {
			return forgiven, nil
		}

		err = r.Store.WithTx(ctx, func(s Store) error {
			for _, p := range res.Assign {
				if err := s.UpdatePoint(ctx, p); err != nil {
					return err
				}
			}
			for _, p := range res.Due {
				applyGBROExpiry(&p, now, res.ScheduledAt, batchID)
				if err := s.UpdatePoint(ctx, p); err != nil {
					return err
				}
			}
			for _, p := range res.Promote {
				if err := s.UpdatePoint(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return forgiven, fmt.Errorf("recompute cohorts for %s: %w", userID, err)
		}

		forgiven += len(res.Due)
		if len(res.Due) == 0 {
			// Dates are assigned and nothing more is due; replay complete.
			return forgiven, nil
		}
	}
}

// RecomputeAll replays the cohort cascade for every user. Used for initial
// setup (no point has ever carried a predicted date) and wholesale repair.
func (r *Repairer) RecomputeAll(ctx context.Context, now time.Time, batchID string) (int, error) {
	users, err := r.Store.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.RecomputeCohortDates(ctx, userID, now, batchID)
		total += n
		if err != nil {
			r.Log.Warn("cohort recompute failed", zap.String("user_id", string(userID)), zap.Error(err))
		}
	}

	r.Log.Info("cohort recompute completed", zap.Int("users", len(users)), zap.Int("forgiven", total))
	return total, nil
}

// RebuildSnapshots recomputes every user's cached balance aggregate from
// the point set as of now.
func (r *Repairer) RebuildSnapshots(ctx context.Context, snapshots SnapshotStore, now time.Time) error {
	if snapshots == nil {
		return ErrStoreRequired
	}

	users, err := r.Store.UserIDs(ctx)
	if err != nil {
		return err
	}

	eval := &Evaluator{Store: r.Store}
	for _, userID := range users {
		balance, err := eval.SumActiveAsOf(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("rebuild snapshot for %s: %w", userID, err)
		}
		active, err := eval.ActivePoints(ctx, userID)
		if err != nil {
			return fmt.Errorf("rebuild snapshot for %s: %w", userID, err)
		}

		snap := BalanceSnapshot{
			UserID:       userID,
			AsOf:         now,
			Balance:      balance,
			ActivePoints: len(active),
			TakenAt:      time.Now().UTC(),
		}
		if err := snapshots.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("rebuild snapshot for %s: %w", userID, err)
		}
	}
	return nil
}
