/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces (Store, TxStore, RunStore,
  SnapshotStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  points:            One row per disciplinary point, mutated in place
  batch_runs:        Coordinator run records (same-day idempotency guard)
  balance_snapshots: Cached per-user aggregates, rebuilt by repair tooling

MUTATION CONTRACT:
  Unlike an append-only ledger, points carry derived lifecycle state
  (predicted roll-off dates, expirations) as columns. Historical balances
  are reconstructed from the retained timestamps, so no transition log
  table exists.

INDEXES:
  - idx_points_user:     Per-user loads (hot path of the batch pass)
  - idx_points_sro_due:  Standard roll-off selection
  - idx_runs_date:       Same-day guard lookup

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/discipline.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - discipline/store.go: Interface definitions
  - discipline/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/discipline-engine/discipline"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite permits one writer at a time, and every :memory: connection is
	// a distinct database. A single pooled connection avoids both problems.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Points (one row per disciplinary point, mutated in place)
	CREATE TABLE IF NOT EXISTS points (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		shift_date TEXT NOT NULL,
		violation TEXT NOT NULL,
		value TEXT NOT NULL,
		eligible_for_gbro BOOLEAN NOT NULL DEFAULT FALSE,
		is_advised BOOLEAN NOT NULL DEFAULT FALSE,
		is_excused BOOLEAN NOT NULL DEFAULT FALSE,
		excused_at TEXT,
		expires_at TEXT NOT NULL,
		gbro_expires_at TEXT,
		gbro_applied_at TEXT,
		gbro_batch_id TEXT,
		is_expired BOOLEAN NOT NULL DEFAULT FALSE,
		expired_at TEXT,
		expiration_type TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_points_user
		ON points(user_id, shift_date DESC);

	-- Standard roll-off selection (hot path of the daily pass)
	CREATE INDEX IF NOT EXISTS idx_points_sro_due
		ON points(expires_at)
		WHERE is_expired = FALSE AND is_excused = FALSE;

	CREATE INDEX IF NOT EXISTS idx_points_gbro_batch
		ON points(gbro_batch_id) WHERE gbro_batch_id IS NOT NULL;

	-- Batch Runs (idempotency guard + audit)
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT FALSE,
		forced BOOLEAN NOT NULL DEFAULT FALSE,
		sro_expired INTEGER DEFAULT 0,
		gbro_expired INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_date
		ON batch_runs(run_date, status);

	-- Balance snapshots (cache, rebuilt from points)
	CREATE TABLE IF NOT EXISTS balance_snapshots (
		user_id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		balance TEXT NOT NULL,
		active_points INTEGER NOT NULL,
		taken_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers serve direct calls and WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// POINT STORE (discipline.Store interface)
// =============================================================================

// SavePoint inserts a new point.
func (s *Store) SavePoint(ctx context.Context, p discipline.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePoint(ctx, s.db, p)
}

func savePoint(ctx context.Context, db querier, p discipline.Point) error {
	query := `
		INSERT INTO points
		(id, user_id, shift_date, violation, value, eligible_for_gbro, is_advised,
		 is_excused, excused_at, expires_at, gbro_expires_at, gbro_applied_at,
		 gbro_batch_id, is_expired, expired_at, expiration_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.ShiftDate.UTC().Format(time.RFC3339),
		p.Violation,
		p.Value.String(),
		p.EligibleForGBRO,
		p.IsAdvised,
		p.IsExcused,
		nullTime(p.ExcusedAt),
		p.ExpiresAt.UTC().Format(time.RFC3339),
		nullTime(p.GBROExpiresAt),
		nullTime(p.GBROAppliedAt),
		nullString(p.GBROBatchID),
		p.IsExpired,
		nullTime(p.ExpiredAt),
		string(p.Expiration),
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert point: %w", err)
	}
	return nil
}

// UpdatePoint replaces the stored lifecycle fields for p.ID. Origin
// columns are immutable and deliberately absent from the statement.
func (s *Store) UpdatePoint(ctx context.Context, p discipline.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePoint(ctx, s.db, p)
}

func updatePoint(ctx context.Context, db querier, p discipline.Point) error {
	query := `
		UPDATE points SET
			is_excused = ?, excused_at = ?, expires_at = ?,
			gbro_expires_at = ?, gbro_applied_at = ?, gbro_batch_id = ?,
			is_expired = ?, expired_at = ?, expiration_type = ?
		WHERE id = ?
	`

	result, err := db.ExecContext(ctx, query,
		p.IsExcused,
		nullTime(p.ExcusedAt),
		p.ExpiresAt.UTC().Format(time.RFC3339),
		nullTime(p.GBROExpiresAt),
		nullTime(p.GBROAppliedAt),
		nullString(p.GBROBatchID),
		p.IsExpired,
		nullTime(p.ExpiredAt),
		string(p.Expiration),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update point: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return discipline.ErrPointNotFound
	}
	return nil
}

const pointColumns = `id, user_id, shift_date, violation, value, eligible_for_gbro, is_advised,
	is_excused, excused_at, expires_at, gbro_expires_at, gbro_applied_at,
	gbro_batch_id, is_expired, expired_at, expiration_type, created_at`

// GetPoint returns a point by ID.
func (s *Store) GetPoint(ctx context.Context, id discipline.PointID) (*discipline.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPoint(ctx, s.db, id)
}

func getPoint(ctx context.Context, db querier, id discipline.PointID) (*discipline.Point, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+pointColumns+` FROM points WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query point: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, discipline.ErrPointNotFound
	}

	p, err := scanPoint(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PointsByUser returns all of a user's points, newest violation first.
func (s *Store) PointsByUser(ctx context.Context, userID discipline.UserID) ([]discipline.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pointsByUser(ctx, s.db, userID)
}

func pointsByUser(ctx context.Context, db querier, userID discipline.UserID) ([]discipline.Point, error) {
	query := `SELECT ` + pointColumns + ` FROM points
		WHERE user_id = ?
		ORDER BY shift_date DESC, created_at DESC, id DESC`
	return queryPoints(ctx, db, query, userID)
}

// UserIDs returns every user that has at least one point.
func (s *Store) UserIDs(ctx context.Context) ([]discipline.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userIDs(ctx, s.db)
}

func userIDs(ctx context.Context, db querier) ([]discipline.UserID, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT user_id FROM points ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []discipline.UserID
	for rows.Next() {
		var id discipline.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// DueSRO returns points past their standard roll-off date. Date-only
// comparison: a deadline any time today is due today.
func (s *Store) DueSRO(ctx context.Context, now time.Time) ([]discipline.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dueSRO(ctx, s.db, now)
}

func dueSRO(ctx context.Context, db querier, now time.Time) ([]discipline.Point, error) {
	query := `SELECT ` + pointColumns + ` FROM points
		WHERE is_expired = FALSE AND is_excused = FALSE
		  AND DATE(expires_at) <= DATE(?)
		ORDER BY id`
	return queryPoints(ctx, db, query, now.UTC().Format(time.RFC3339))
}

func queryPoints(ctx context.Context, db querier, query string, args ...any) ([]discipline.Point, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []discipline.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanPoint(rows *sql.Rows) (discipline.Point, error) {
	var (
		p             discipline.Point
		shiftDate     string
		value         string
		excusedAt     sql.NullString
		expiresAt     string
		gbroExpiresAt sql.NullString
		gbroAppliedAt sql.NullString
		gbroBatchID   sql.NullString
		expiredAt     sql.NullString
		createdAt     string
	)

	err := rows.Scan(
		&p.ID, &p.UserID, &shiftDate, &p.Violation, &value,
		&p.EligibleForGBRO, &p.IsAdvised,
		&p.IsExcused, &excusedAt, &expiresAt,
		&gbroExpiresAt, &gbroAppliedAt, &gbroBatchID,
		&p.IsExpired, &expiredAt, &p.Expiration, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan point: %w", err)
	}

	p.ShiftDate, _ = time.Parse(time.RFC3339, shiftDate)
	p.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.Value, _ = decimal.NewFromString(value)
	p.ExcusedAt = parseNullTime(excusedAt)
	p.GBROExpiresAt = parseNullTime(gbroExpiresAt)
	p.GBROAppliedAt = parseNullTime(gbroAppliedAt)
	p.GBROBatchID = gbroBatchID.String
	p.ExpiredAt = parseNullTime(expiredAt)

	return p, nil
}

// =============================================================================
// TRANSACTIONS (discipline.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Used by the
// coordinator so a cohort's pair of points expires atomically.
func (s *Store) WithTx(ctx context.Context, fn func(discipline.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes all operations through the open transaction. It must not
// touch the parent's mutex, which is held for the duration of WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SavePoint(ctx context.Context, p discipline.Point) error {
	return savePoint(ctx, ts.tx, p)
}

func (ts *txStore) UpdatePoint(ctx context.Context, p discipline.Point) error {
	return updatePoint(ctx, ts.tx, p)
}

func (ts *txStore) GetPoint(ctx context.Context, id discipline.PointID) (*discipline.Point, error) {
	return getPoint(ctx, ts.tx, id)
}

func (ts *txStore) PointsByUser(ctx context.Context, userID discipline.UserID) ([]discipline.Point, error) {
	return pointsByUser(ctx, ts.tx, userID)
}

func (ts *txStore) UserIDs(ctx context.Context) ([]discipline.UserID, error) {
	return userIDs(ctx, ts.tx)
}

func (ts *txStore) DueSRO(ctx context.Context, now time.Time) ([]discipline.Point, error) {
	return dueSRO(ctx, ts.tx, now)
}

// =============================================================================
// BATCH RUNS (discipline.RunStore interface)
// =============================================================================

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, run discipline.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT OR REPLACE INTO batch_runs
		(id, run_date, dry_run, forced, sro_expired, gbro_expired, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		discipline.DateOf(run.RunDate).Format("2006-01-02"),
		run.DryRun,
		run.Forced,
		run.SROExpired,
		run.GBROExpired,
		run.Status,
		nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339),
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// CompletedRunOn reports whether a completed, non-dry run exists for the day.
func (s *Store) CompletedRunOn(ctx context.Context, day time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_runs
		 WHERE run_date = ? AND status = 'completed' AND dry_run = FALSE`,
		discipline.DateOf(day).Format("2006-01-02"),
	).Scan(&count)

	return count > 0, err
}

// Runs returns the most recent run records, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]discipline.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, dry_run, forced, sro_expired, gbro_expired,
		       status, error, started_at, completed_at
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []discipline.BatchRun
	for rows.Next() {
		var (
			run         discipline.BatchRun
			runDate     string
			errStr      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &runDate, &run.DryRun, &run.Forced,
			&run.SROExpired, &run.GBROExpired, &run.Status, &errStr,
			&startedAt, &completedAt); err != nil {
			return nil, err
		}
		run.RunDate, _ = time.Parse("2006-01-02", runDate)
		run.Error = errStr.String
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.CompletedAt = parseNullTime(completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// SNAPSHOTS (discipline.SnapshotStore interface)
// =============================================================================

// SaveSnapshot upserts a user's cached balance aggregate.
func (s *Store) SaveSnapshot(ctx context.Context, snap discipline.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT OR REPLACE INTO balance_snapshots
		(user_id, as_of, balance, active_points, taken_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.UserID,
		snap.AsOf.UTC().Format(time.RFC3339),
		snap.Balance.String(),
		snap.ActivePoints,
		snap.TakenAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a user's cached aggregate, or nil if none exists.
func (s *Store) GetSnapshot(ctx context.Context, userID discipline.UserID) (*discipline.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap    discipline.BalanceSnapshot
		asOf    string
		balance string
		takenAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, as_of, balance, active_points, taken_at
		 FROM balance_snapshots WHERE user_id = ?`, userID,
	).Scan(&snap.UserID, &asOf, &balance, &snap.ActivePoints, &takenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap.AsOf, _ = time.Parse(time.RFC3339, asOf)
	snap.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	snap.Balance, _ = decimal.NewFromString(balance)
	return &snap, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Interface conformance.
var (
	_ discipline.TxStore       = (*Store)(nil)
	_ discipline.RunStore      = (*Store)(nil)
	_ discipline.SnapshotStore = (*Store)(nil)
)
