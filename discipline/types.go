/*
Package discipline implements the progressive-discipline point lifecycle engine.

PURPOSE:
  This package contains the domain types and algorithms for attendance
  discipline points: how points are created when a violation is recorded,
  how they expire under Standard Roll-Off (SRO) and Good-Behavior Roll-Off
  (GBRO), and how an employee's point balance is reconstructed as of any
  past instant.

KEY CONCEPTS IN THIS FILE (types.go):
  - Point: One disciplinary unit tied to a single violation occurrence
  - ViolationType: Closed enum of attendance violations
  - ExpirationType: Which pipeline retired a point (sro | gbro)
  - UserID/PointID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Origin immutability: the violation facts on a Point never change
  2. Precision: decimal.Decimal for point values, never float64
  3. Type Safety: closed enums for violation and expiration kinds,
     exhaustively switched
  4. Derivability: every historical balance is re-derivable from the
     stored timestamps alone (no separate event log)

LIFECYCLE (per point):
  Active -> Excused        manual override, terminal
  Active -> Expired(sro)   absolute deadline passed
  Active -> Expired(gbro)  selected into a resolving good-behavior cohort
  Expired -> Active        only via the operator reset tool (repair.go)

SEE ALSO:
  - evaluator.go: As-of-instant balance reconstruction
  - sro.go:       Standard roll-off rule
  - gbro.go:      Good-behavior cohort engine
  - batch.go:     Daily expiration pass coordinator
*/
package discipline

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PointID string
type UserID string

// =============================================================================
// VIOLATION TYPE - Closed enum, fixed by the attendance processor
// =============================================================================

type ViolationType string

const (
	ViolationNoCallNoShow   ViolationType = "no_call_no_show"
	ViolationHalfDayAbsence ViolationType = "half_day_absence"
	ViolationTardy          ViolationType = "tardy"
	ViolationUndertime      ViolationType = "undertime"
	ViolationAdvisedAbsence ViolationType = "advised_absence"
	ViolationUnexcused      ViolationType = "unexcused_absence"
)

// Valid reports whether v is a member of the closed set.
func (v ViolationType) Valid() bool {
	switch v {
	case ViolationNoCallNoShow, ViolationHalfDayAbsence, ViolationTardy,
		ViolationUndertime, ViolationAdvisedAbsence, ViolationUnexcused:
		return true
	}
	return false
}

// DefaultValue returns the conventional point value for a violation type.
// Callers may override it; the attendance processor is the authority.
func (v ViolationType) DefaultValue() decimal.Decimal {
	switch v {
	case ViolationNoCallNoShow:
		return decimal.NewFromInt(1)
	case ViolationHalfDayAbsence, ViolationUnexcused:
		return decimal.NewFromFloat(0.5)
	case ViolationTardy, ViolationUndertime:
		return decimal.NewFromFloat(0.25)
	case ViolationAdvisedAbsence:
		return decimal.NewFromFloat(0.5)
	default:
		return decimal.Zero
	}
}

// =============================================================================
// EXPIRATION TYPE - Which pipeline retired the point
// =============================================================================

type ExpirationType string

const (
	ExpirationNone ExpirationType = ""
	ExpirationSRO  ExpirationType = "sro"
	ExpirationGBRO ExpirationType = "gbro"
)

// =============================================================================
// POLICY DURATIONS - Fixed by the discipline policy, not configurable per user
// =============================================================================

const (
	// SROMonths is the standard roll-off duration from the violation date.
	SROMonths = 6

	// SRONoCallNoShowMonths applies to an unexcused no-call-no-show.
	SRONoCallNoShowMonths = 12

	// GBRODays is the violation-free window before a cohort rolls off.
	GBRODays = 60

	// CohortSize is the number of points forgiven together under GBRO.
	CohortSize = 2
)

// SROExpiry computes the absolute standard roll-off deadline for a violation.
// Fixed at creation and never recomputed by the automatic pass.
func SROExpiry(shiftDate time.Time, violation ViolationType, isAdvised bool) time.Time {
	if violation == ViolationNoCallNoShow && !isAdvised {
		return AddMonths(shiftDate, SRONoCallNoShowMonths)
	}
	return AddMonths(shiftDate, SROMonths)
}

// =============================================================================
// POINT - One disciplinary unit
// =============================================================================

// Point is a single disciplinary point tied to one violation occurrence.
//
// Origin fields (UserID..IsAdvised) are immutable once created. Lifecycle
// fields are mutated only by the batch coordinator, manual excusal, and the
// operator reset tool.
type Point struct {
	ID     PointID
	UserID UserID

	// Origin - immutable once created
	ShiftDate       time.Time // violation date (day precision)
	Violation       ViolationType
	Value           decimal.Decimal
	EligibleForGBRO bool // fixed by violation type
	IsAdvised       bool // affects SRO duration

	// Manual override - set once, never cleared back
	IsExcused bool
	ExcusedAt *time.Time

	// SRO - absolute deadline, fixed at creation
	ExpiresAt time.Time

	// GBRO - predicted roll-off, maintained by the cohort engine.
	// Non-null only on the points of the lowest unresolved cohort.
	GBROExpiresAt *time.Time
	GBROAppliedAt *time.Time // set once when GBRO actually expires the point
	GBROBatchID   string     // correlates points expired in one sweep

	// Terminal
	IsExpired  bool
	ExpiredAt  *time.Time
	Expiration ExpirationType

	CreatedAt time.Time
}

// Active reports whether the point currently counts against the employee.
func (p *Point) Active() bool {
	return !p.IsExcused && !p.IsExpired
}

// GBROPending reports whether the point is still in the good-behavior
// pipeline: active, eligible, and not yet forgiven by a previous sweep.
func (p *Point) GBROPending() bool {
	return p.Active() && p.EligibleForGBRO && p.GBROAppliedAt == nil
}

// =============================================================================
// BALANCE SNAPSHOT - Cached aggregate, rebuilt by repair tooling
// =============================================================================

// BalanceSnapshot caches a user's active point total at a point in time.
// Always re-derivable from the point set; never authoritative.
type BalanceSnapshot struct {
	UserID       UserID
	AsOf         time.Time
	Balance      decimal.Decimal
	ActivePoints int
	TakenAt      time.Time
}
