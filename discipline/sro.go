/*
sro.go - Standard Roll-Off

PURPOSE:
  The stateless half of the expiration engine: a point whose absolute
  deadline has passed, and which is not excused, transitions to expired.
  No interaction between points; each one succeeds or fails alone.

DEADLINES:
  Fixed at creation by SROExpiry (types.go): violation date + 6 months,
  or + 12 months for an unexcused no-call-no-show. Never recomputed by
  the automatic pass; only the operator reset tool recomputes.

DATE-ONLY COMPARISON:
  Selection compares calendar days, not timestamps, so the outcome does
  not depend on what time of day the batch happens to run.
*/
package discipline

import (
	"context"
	"time"
)

// SROExpirer selects and retires points past their standard roll-off date.
type SROExpirer struct {
	Store Store
}

// ExpireDueSRO returns the points eligible for standard roll-off at now:
// not expired, not excused, date(expires_at) <= date(now).
// Pure selection; no mutation.
func (s *SROExpirer) ExpireDueSRO(ctx context.Context, now time.Time) ([]Point, error) {
	return s.Store.DueSRO(ctx, now)
}

// ApplySRO transitions a single due point to Expired(sro).
func (s *SROExpirer) ApplySRO(ctx context.Context, p Point, now time.Time) (Point, error) {
	if p.IsExcused {
		return p, &StateError{PointID: p.ID, Op: "sro", Reason: ErrPointExcused}
	}
	if p.IsExpired {
		return p, &StateError{PointID: p.ID, Op: "sro", Reason: ErrPointExpired}
	}

	expiredAt := now
	p.IsExpired = true
	p.ExpiredAt = &expiredAt
	p.Expiration = ExpirationSRO
	// A point leaving the active set also leaves the good-behavior pipeline;
	// its prediction no longer means anything.
	p.GBROExpiresAt = nil

	if err := s.Store.UpdatePoint(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}
