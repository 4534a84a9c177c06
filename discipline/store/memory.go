// Package store provides Store implementations for the discipline engine.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/discipline-engine/discipline"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	points    map[discipline.PointID]discipline.Point
	runs      map[string]discipline.BatchRun
	snapshots map[discipline.UserID]discipline.BalanceSnapshot
}

func NewMemory() *Memory {
	return &Memory{
		points:    make(map[discipline.PointID]discipline.Point),
		runs:      make(map[string]discipline.BatchRun),
		snapshots: make(map[discipline.UserID]discipline.BalanceSnapshot),
	}
}

// SavePoint inserts a new point.
func (m *Memory) SavePoint(_ context.Context, p discipline.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.ID] = p
	return nil
}

// UpdatePoint replaces the stored record.
func (m *Memory) UpdatePoint(_ context.Context, p discipline.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[p.ID]; !ok {
		return discipline.ErrPointNotFound
	}
	m.points[p.ID] = p
	return nil
}

func (m *Memory) GetPoint(_ context.Context, id discipline.PointID) (*discipline.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok {
		return nil, discipline.ErrPointNotFound
	}
	return &p, nil
}

func (m *Memory) PointsByUser(_ context.Context, userID discipline.UserID) ([]discipline.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []discipline.Point
	for _, p := range m.points {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ShiftDate.Equal(result[j].ShiftDate) {
			return result[i].ShiftDate.After(result[j].ShiftDate)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (m *Memory) UserIDs(_ context.Context) ([]discipline.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[discipline.UserID]bool)
	var users []discipline.UserID
	for _, p := range m.points {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			users = append(users, p.UserID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *Memory) DueSRO(_ context.Context, now time.Time) ([]discipline.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []discipline.Point
	for _, p := range m.points {
		if !p.IsExpired && !p.IsExcused && discipline.OnOrBeforeDay(p.ExpiresAt, now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// =============================================================================
// TRANSACTIONS - Simulated with a snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the live store and restores the prior state
// if fn fails, so a cohort's pair of points either both transition or
// neither does.
func (m *Memory) WithTx(ctx context.Context, fn func(discipline.Store) error) error {
	m.mu.Lock()
	before := make(map[discipline.PointID]discipline.Point, len(m.points))
	for id, p := range m.points {
		before[id] = p
	}
	m.mu.Unlock()

	if err := fn(&txView{parent: m}); err != nil {
		m.mu.Lock()
		m.points = before
		m.mu.Unlock()
		return err
	}
	return nil
}

// txView delegates to the parent; isolation comes from the snapshot taken
// in WithTx, which is enough for a single-writer batch.
type txView struct {
	parent *Memory
}

func (tv *txView) SavePoint(ctx context.Context, p discipline.Point) error {
	return tv.parent.SavePoint(ctx, p)
}

func (tv *txView) UpdatePoint(ctx context.Context, p discipline.Point) error {
	return tv.parent.UpdatePoint(ctx, p)
}

func (tv *txView) GetPoint(ctx context.Context, id discipline.PointID) (*discipline.Point, error) {
	return tv.parent.GetPoint(ctx, id)
}

func (tv *txView) PointsByUser(ctx context.Context, userID discipline.UserID) ([]discipline.Point, error) {
	return tv.parent.PointsByUser(ctx, userID)
}

func (tv *txView) UserIDs(ctx context.Context) ([]discipline.UserID, error) {
	return tv.parent.UserIDs(ctx)
}

func (tv *txView) DueSRO(ctx context.Context, now time.Time) ([]discipline.Point, error) {
	return tv.parent.DueSRO(ctx, now)
}

// =============================================================================
// RUN RECORDS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run discipline.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) CompletedRunOn(_ context.Context, day time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, run := range m.runs {
		if !run.DryRun && run.Status == "completed" && discipline.SameDay(run.RunDate, day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Runs(_ context.Context, limit int) ([]discipline.BatchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]discipline.BatchRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, s discipline.BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.UserID] = s
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, userID discipline.UserID) (*discipline.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
