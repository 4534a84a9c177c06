/*
batch.go - Expiration pass coordinator

PURPOSE:
  Orchestrates one pass of SRO + GBRO across all users: runs the standard
  roll-off first, then resolves at most one good-behavior cohort per user,
  records the run, and emits one notification per expired point.

GUARANTEES:
  - A single point's update failure is reported in the summary and never
    aborts the rest of the pass.
  - A cohort's pair of points expires atomically (WithTx): both or neither.
  - Dry-run uses the identical selection logic with no mutation and no
    notifications, so a preview equals the next real run's effect.
  - A completed sweep refuses to run again the same calendar day unless
    forced, via an explicit run record - not by inferring from point data.
  - Notification failures are logged, never propagated: expiration is the
    durable fact, notification is best-effort.

CANCELLATION:
  The pass may be aborted between users without corrupting state; each
  user's cohort resolution is self-contained and the next run simply
  re-evaluates current conditions.

SEE ALSO:
  - sro.go, gbro.go: The two expiration rules
  - api/scheduler.go: Invokes the pass daily
*/
package discipline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// NOTIFICATION - Outbound collaborator contract
// =============================================================================

// ExpiryEvent describes one point leaving the active set.
type ExpiryEvent struct {
	UserID    UserID
	Violation ViolationType
	ShiftDate time.Time
	Value     decimal.Decimal
	Kind      ExpirationType
	BatchID   string
}

// Notifier delivers expiry events to an external system. Fire-and-forget:
// the coordinator logs failures and moves on.
type Notifier interface {
	PointExpired(ctx context.Context, ev ExpiryEvent) error
}

// =============================================================================
// COORDINATOR
// =============================================================================

// PassOptions configures one expiration pass. Mirrors the CLI's
// --dry-run / --force / --no-notify semantics.
type PassOptions struct {
	Now    time.Time // zero means time.Now
	DryRun bool
	Force  bool
	Notify bool
}

// PassSummary reports what a pass did (or, in dry-run, would do).
type PassSummary struct {
	RunID          string
	RunDate        time.Time
	DryRun         bool
	SROExpired     int
	SROFailed      int
	GBROExpired    int
	CohortsFailed  int
	SkippedSameDay bool
	Warnings       []string
}

// Coordinator runs expiration passes. The only writer to the point store
// during normal operation.
type Coordinator struct {
	Store    TxStore
	Runs     RunStore
	Notifier Notifier
	Log      *zap.Logger
}

func NewCoordinator(store TxStore, runs RunStore, notifier Notifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{Store: store, Runs: runs, Notifier: notifier, Log: log}
}

// RunExpirationPass executes one full SRO + GBRO sweep.
func (c *Coordinator) RunExpirationPass(ctx context.Context, opts PassOptions) (PassSummary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	summary := PassSummary{
		RunID:   uuid.NewString(),
		RunDate: DateOf(now),
		DryRun:  opts.DryRun,
	}
	log := c.Log.With(zap.String("run_id", summary.RunID), zap.Bool("dry_run", opts.DryRun))

	run := BatchRun{
		ID:        summary.RunID,
		RunDate:   summary.RunDate,
		DryRun:    opts.DryRun,
		Forced:    opts.Force,
		Status:    "running",
		StartedAt: now,
	}
	if !opts.DryRun && c.Runs != nil {
		if err := c.Runs.SaveRun(ctx, run); err != nil {
			return summary, fmt.Errorf("save run record: %w", err)
		}
	}

	if err := c.runSRO(ctx, now, opts, &summary, log); err != nil {
		c.finishRun(ctx, run, &summary, now, err)
		return summary, err
	}
	if err := c.runGBRO(ctx, now, opts, &summary, log); err != nil {
		c.finishRun(ctx, run, &summary, now, err)
		return summary, err
	}

	c.finishRun(ctx, run, &summary, now, nil)
	log.Info("expiration pass completed",
		zap.Int("sro_expired", summary.SROExpired),
		zap.Int("gbro_expired", summary.GBROExpired),
		zap.Int("sro_failed", summary.SROFailed),
		zap.Int("cohorts_failed", summary.CohortsFailed),
		zap.Bool("skipped_same_day", summary.SkippedSameDay))
	return summary, nil
}

// runSRO retires every point past its absolute deadline. Per-point failure
// isolation: one bad update never blocks the rest.
func (c *Coordinator) runSRO(ctx context.Context, now time.Time, opts PassOptions, summary *PassSummary, log *zap.Logger) error {
	expirer := &SROExpirer{Store: c.Store}

	due, err := expirer.ExpireDueSRO(ctx, now)
	if err != nil {
		return fmt.Errorf("select due points: %w", err)
	}

	for _, p := range due {
		if opts.DryRun {
			summary.SROExpired++
			continue
		}

		updated, err := expirer.ApplySRO(ctx, p, now)
		if err != nil {
			summary.SROFailed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("sro: point %s: %v", p.ID, err))
			log.Warn("sro expiration failed", zap.String("point_id", string(p.ID)), zap.Error(err))
			continue
		}
		summary.SROExpired++
		c.notify(ctx, opts, updated, summary.RunID, log)
	}
	return nil
}

// runGBRO resolves at most one cohort per user, guarded against a second
// sweep on the same calendar day.
func (c *Coordinator) runGBRO(ctx context.Context, now time.Time, opts PassOptions, summary *PassSummary, log *zap.Logger) error {
	if !opts.Force && !opts.DryRun && c.Runs != nil {
		ran, err := c.Runs.CompletedRunOn(ctx, DateOf(now))
		if err != nil {
			return fmt.Errorf("check run guard: %w", err)
		}
		if ran {
			guard := &GuardError{RunDate: DateOf(now)}
			summary.SkippedSameDay = true
			summary.Warnings = append(summary.Warnings, guard.Error())
			log.Warn("gbro sweep skipped", zap.Error(guard))
			return nil
		}
	}

	users, err := c.Store.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		points, err := c.Store.PointsByUser(ctx, userID)
		if err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("gbro: user %s: %v", userID, err))
			log.Warn("gbro load failed", zap.String("user_id", string(userID)), zap.Error(err))
			continue
		}

		res := ResolveCohorts(points, now)
		if !res.Pending() {
			continue
		}

		if opts.DryRun {
			summary.GBROExpired += len(res.Due)
			continue
		}

		// Prediction maintenance outside the cohort transaction: each
		// assignment stands alone.
		for _, p := range res.Assign {
			if err := c.Store.UpdatePoint(ctx, p); err != nil {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("gbro: assign %s: %v", p.ID, err))
				log.Warn("gbro date assignment failed", zap.String("point_id", string(p.ID)), zap.Error(err))
			}
		}

		if len(res.Due) == 0 {
			continue
		}

		expired, err := c.expireCohort(ctx, res, now, summary.RunID)
		if err != nil {
			summary.CohortsFailed++
			summary.Warnings = append(summary.Warnings, err.Error())
			log.Warn("cohort expiration rolled back", zap.String("user_id", string(userID)), zap.Error(err))
			continue
		}

		summary.GBROExpired += len(expired)
		for _, p := range expired {
			c.notify(ctx, opts, p, summary.RunID, log)
		}
	}
	return nil
}

// expireCohort applies one resolved cohort atomically: both members expire
// and the next cohort is promoted, or nothing happens.
func (c *Coordinator) expireCohort(ctx context.Context, res CohortResolution, now time.Time, batchID string) ([]Point, error) {
	expired := make([]Point, 0, len(res.Due))

	err := c.Store.WithTx(ctx, func(s Store) error {
		for _, p := range res.Due {
			applyGBROExpiry(&p, now, res.ScheduledAt, batchID)
			if err := s.UpdatePoint(ctx, p); err != nil {
				return err
			}
			expired = append(expired, p)
		}
		for _, p := range res.Promote {
			if err := s.UpdatePoint(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ids := make([]PointID, len(res.Due))
		for i, p := range res.Due {
			ids[i] = p.ID
		}
		return nil, &CohortError{UserID: res.Due[0].UserID, Points: ids, Err: err}
	}
	return expired, nil
}

func (c *Coordinator) notify(ctx context.Context, opts PassOptions, p Point, batchID string, log *zap.Logger) {
	if !opts.Notify || c.Notifier == nil || opts.DryRun {
		return
	}

	ev := ExpiryEvent{
		UserID:    p.UserID,
		Violation: p.Violation,
		ShiftDate: p.ShiftDate,
		Value:     p.Value,
		Kind:      p.Expiration,
		BatchID:   batchID,
	}
	if err := c.Notifier.PointExpired(ctx, ev); err != nil {
		log.Warn("expiry notification failed",
			zap.String("point_user", string(p.UserID)),
			zap.Error(err))
	}
}

func (c *Coordinator) finishRun(ctx context.Context, run BatchRun, summary *PassSummary, now time.Time, runErr error) {
	if run.DryRun || c.Runs == nil {
		return
	}

	completed := now
	run.SROExpired = summary.SROExpired
	run.GBROExpired = summary.GBROExpired
	run.CompletedAt = &completed
	run.Status = "completed"
	if runErr != nil && !errors.Is(runErr, ErrAlreadyRanToday) {
		run.Status = "failed"
		run.Error = runErr.Error()
	}

	if err := c.Runs.SaveRun(ctx, run); err != nil {
		c.Log.Warn("failed to update run record", zap.String("run_id", run.ID), zap.Error(err))
	}
}
