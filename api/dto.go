/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain service, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/discipline-engine/discipline"
)

// =============================================================================
// POINTS
// =============================================================================

// PointDTO represents a disciplinary point in API responses.
type PointDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	ShiftDate       string  `json:"shift_date"`
	Violation       string  `json:"violation"`
	Value           string  `json:"value"`
	EligibleForGBRO bool    `json:"eligible_for_gbro"`
	IsAdvised       bool    `json:"is_advised"`
	IsExcused       bool    `json:"is_excused"`
	ExcusedAt       *string `json:"excused_at,omitempty"`
	ExpiresAt       string  `json:"expires_at"`
	GBROExpiresAt   *string `json:"gbro_expires_at,omitempty"`
	GBROAppliedAt   *string `json:"gbro_applied_at,omitempty"`
	GBROBatchID     string  `json:"gbro_batch_id,omitempty"`
	IsExpired       bool    `json:"is_expired"`
	ExpiredAt       *string `json:"expired_at,omitempty"`
	ExpirationType  string  `json:"expiration_type"`
	CreatedAt       string  `json:"created_at"`
}

// CreatePointRequest records a finalized violation.
type CreatePointRequest struct {
	UserID          string `json:"user_id"`
	ShiftDate       string `json:"shift_date"` // YYYY-MM-DD
	Violation       string `json:"violation"`
	Value           string `json:"value,omitempty"` // decimal string; empty = violation default
	EligibleForGBRO bool   `json:"eligible_for_gbro"`
	IsAdvised       bool   `json:"is_advised"`
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO is a user's point total, optionally as of a past instant.
type BalanceDTO struct {
	UserID       string `json:"user_id"`
	Balance      string `json:"balance"`
	AsOf         string `json:"as_of"`
	ActivePoints int    `json:"active_points,omitempty"`
}

// =============================================================================
// BATCH
// =============================================================================

// PassSummaryDTO reports one expiration pass.
type PassSummaryDTO struct {
	RunID          string   `json:"run_id"`
	RunDate        string   `json:"run_date"`
	DryRun         bool     `json:"dry_run"`
	SROExpired     int      `json:"sro_expired"`
	GBROExpired    int      `json:"gbro_expired"`
	SROFailed      int      `json:"sro_failed"`
	CohortsFailed  int      `json:"cohorts_failed"`
	SkippedSameDay bool     `json:"skipped_same_day"`
	Warnings       []string `json:"warnings,omitempty"`
}

// BatchRunDTO is a stored run record.
type BatchRunDTO struct {
	ID          string  `json:"id"`
	RunDate     string  `json:"run_date"`
	DryRun      bool    `json:"dry_run"`
	Forced      bool    `json:"forced"`
	SROExpired  int     `json:"sro_expired"`
	GBROExpired int     `json:"gbro_expired"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPointDTO(p discipline.Point) PointDTO {
	return PointDTO{
		ID:              string(p.ID),
		UserID:          string(p.UserID),
		ShiftDate:       p.ShiftDate.Format("2006-01-02"),
		Violation:       string(p.Violation),
		Value:           p.Value.String(),
		EligibleForGBRO: p.EligibleForGBRO,
		IsAdvised:       p.IsAdvised,
		IsExcused:       p.IsExcused,
		ExcusedAt:       fmtTimePtr(p.ExcusedAt),
		ExpiresAt:       p.ExpiresAt.Format("2006-01-02"),
		GBROExpiresAt:   fmtTimePtr(p.GBROExpiresAt),
		GBROAppliedAt:   fmtTimePtr(p.GBROAppliedAt),
		GBROBatchID:     p.GBROBatchID,
		IsExpired:       p.IsExpired,
		ExpiredAt:       fmtTimePtr(p.ExpiredAt),
		ExpirationType:  string(p.Expiration),
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

func toPointDTOs(points []discipline.Point) []PointDTO {
	dtos := make([]PointDTO, len(points))
	for i, p := range points {
		dtos[i] = toPointDTO(p)
	}
	return dtos
}

func toRunDTO(run discipline.BatchRun) BatchRunDTO {
	dto := BatchRunDTO{
		ID:          run.ID,
		RunDate:     run.RunDate.Format("2006-01-02"),
		DryRun:      run.DryRun,
		Forced:      run.Forced,
		SROExpired:  run.SROExpired,
		GBROExpired: run.GBROExpired,
		Status:      run.Status,
		Error:       run.Error,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
