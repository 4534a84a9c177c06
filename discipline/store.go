/*
store.go - Persistence interfaces for points and batch runs

PURPOSE:
  Defines the interface between the lifecycle engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:         Point persistence (save, update, query)
  TxStore:       Transactional operations (cohort atomicity)
  RunStore:      Batch run records (the same-day idempotency guard)
  SnapshotStore: Cached balance aggregates (rebuilt by repair tooling)

MUTATION CONTRACT:
  Unlike an append-only ledger, points are mutated in place: predicted
  roll-off dates, excusals, and expirations are stored as fields, and
  historical balances are reconstructed from the retained timestamps
  (see evaluator.go). The batch coordinator is the only writer during
  normal operation.

ATOMICITY:
  WithTx ensures a GBRO cohort's pair of points either both transition
  or neither does. A half-expired cohort is never observable.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:    Production SQLite
  - discipline/store/memory.go: In-memory for testing

SEE ALSO:
  - batch.go: The only caller of WithTx in normal operation
  - repair.go: SnapshotStore rebuilds
*/
package discipline

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Point persistence
// =============================================================================

// Store handles persistence of points.
type Store interface {
	// SavePoint inserts a new point. Fails if the ID exists.
	SavePoint(ctx context.Context, p Point) error

	// UpdatePoint replaces the stored record for p.ID.
	// Returns ErrPointNotFound if it doesn't exist.
	UpdatePoint(ctx context.Context, p Point) error

	// GetPoint returns a point by ID, or ErrPointNotFound.
	GetPoint(ctx context.Context, id PointID) (*Point, error)

	// PointsByUser returns all of a user's points, newest violation first.
	PointsByUser(ctx context.Context, userID UserID) ([]Point, error)

	// UserIDs returns every user that has at least one point.
	UserIDs(ctx context.Context) ([]UserID, error)

	// DueSRO returns points whose standard roll-off deadline has passed:
	// not expired, not excused, date(expires_at) <= date(now).
	DueSRO(ctx context.Context, now time.Time) ([]Point, error)
}

// TxStore wraps Store with transaction support.
// Use this when a multi-point mutation must be all-or-nothing.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write inside it is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// BATCH RUNS - Idempotency records for the coordinator
// =============================================================================

// BatchRun records one coordinator pass. A completed non-dry GBRO run dated
// today is what the same-day guard checks, so the guard is independent of
// point data shape.
type BatchRun struct {
	ID          string
	RunDate     time.Time // calendar day the pass is evaluated at
	DryRun      bool
	Forced      bool
	SROExpired  int
	GBROExpired int
	Status      string // "running", "completed", "failed"
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// RunStore persists batch run records.
type RunStore interface {
	// SaveRun inserts or replaces a run record by ID.
	SaveRun(ctx context.Context, run BatchRun) error

	// CompletedRunOn reports whether a completed, non-dry run exists for
	// the given calendar day. Queried before GBRO mutation.
	CompletedRunOn(ctx context.Context, day time.Time) (bool, error)

	// Runs returns the most recent run records, newest first.
	Runs(ctx context.Context, limit int) ([]BatchRun, error)
}

// =============================================================================
// SNAPSHOTS - Cached aggregates
// =============================================================================

// SnapshotStore persists per-user balance snapshots. Purely a cache:
// repair.go rebuilds every snapshot from the point set.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s BalanceSnapshot) error
	GetSnapshot(ctx context.Context, userID UserID) (*BalanceSnapshot, error)
}
