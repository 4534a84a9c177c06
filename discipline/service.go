/*
service.go - Point intake and manual excusal

PURPOSE:
  The write surface exposed to collaborators: the attendance processor
  records finalized violations here, and administrators excuse points
  here. All validation happens synchronously; an invalid call leaves the
  store untouched.

SEE ALSO:
  - repair.go: The operator-only reset escape hatch
  - batch.go:  The only other writer
*/
package discipline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatePointInput carries the origin facts of one finalized violation.
// The attendance processor decides whether a violation occurred; this
// engine only governs the resulting point's lifecycle.
type CreatePointInput struct {
	UserID          UserID
	ShiftDate       time.Time
	Violation       ViolationType
	Value           decimal.Decimal // zero means the violation's default
	EligibleForGBRO bool
	IsAdvised       bool
}

// Service is the synchronous write surface for collaborators.
type Service struct {
	Store Store
}

// CreatePoint records a new disciplinary point and fixes its standard
// roll-off deadline: violation date + 6 months, or + 12 months for an
// unexcused no-call-no-show.
func (s *Service) CreatePoint(ctx context.Context, in CreatePointInput) (Point, error) {
	if !in.Violation.Valid() {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidViolation, in.Violation)
	}
	if in.UserID == "" {
		return Point{}, fmt.Errorf("user id is required")
	}
	if in.ShiftDate.IsZero() {
		return Point{}, fmt.Errorf("shift date is required")
	}

	value := in.Value
	if value.IsZero() {
		value = in.Violation.DefaultValue()
	}

	p := Point{
		ID:              PointID(uuid.NewString()),
		UserID:          in.UserID,
		ShiftDate:       DateOf(in.ShiftDate),
		Violation:       in.Violation,
		Value:           value,
		EligibleForGBRO: in.EligibleForGBRO,
		IsAdvised:       in.IsAdvised,
		ExpiresAt:       SROExpiry(DateOf(in.ShiftDate), in.Violation, in.IsAdvised),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.Store.SavePoint(ctx, p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// ExcusePoint removes a point from both expiration pipelines permanently.
// Permitted only while the point has not already expired; excused_at is
// set once and never cleared back.
func (s *Service) ExcusePoint(ctx context.Context, id PointID, now time.Time) (Point, error) {
	p, err := s.Store.GetPoint(ctx, id)
	if err != nil {
		return Point{}, err
	}
	if p.IsExpired {
		return Point{}, &StateError{PointID: id, Op: "excuse", Reason: ErrPointExpired}
	}
	if p.IsExcused {
		// Already excused; idempotent.
		return *p, nil
	}

	excusedAt := now.UTC()
	p.IsExcused = true
	p.ExcusedAt = &excusedAt
	p.GBROExpiresAt = nil

	if err := s.Store.UpdatePoint(ctx, *p); err != nil {
		return Point{}, err
	}
	return *p, nil
}
