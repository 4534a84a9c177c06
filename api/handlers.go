/*
handlers.go - HTTP API handlers for the discipline engine

PURPOSE:
  The write surface (record violation, excuse, reset), the query surface
  (points, current and as-of balances), and the admin surface (trigger an
  expiration pass, inspect run records). Business rules live in the
  discipline package; handlers translate HTTP to domain calls and map
  domain errors to status codes.

ERROR MAPPING:
  Validation errors  -> 400/409 (state conflicts)
  Not found          -> 404
  Same-day guard     -> 200 with skipped_same_day=true (a no-op, not a fault)
  Everything else    -> 500

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Route wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/discipline-engine/discipline"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       discipline.TxStore
	Runs        discipline.RunStore
	Service     *discipline.Service
	Evaluator   *discipline.Evaluator
	Coordinator *discipline.Coordinator
	Repairer    *discipline.Repairer
}

// NewHandler creates a new handler over one store and coordinator.
func NewHandler(store discipline.TxStore, runs discipline.RunStore, coord *discipline.Coordinator, repairer *discipline.Repairer) *Handler {
	return &Handler{
		Store:       store,
		Runs:        runs,
		Service:     &discipline.Service{Store: store},
		Evaluator:   &discipline.Evaluator{Store: store},
		Coordinator: coord,
		Repairer:    repairer,
	}
}

// =============================================================================
// POINT HANDLERS
// =============================================================================

// CreatePoint records a finalized violation.
// POST /api/points
func (h *Handler) CreatePoint(w http.ResponseWriter, r *http.Request) {
	var req CreatePointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	shiftDate, err := time.Parse("2006-01-02", req.ShiftDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid shift_date format (use YYYY-MM-DD)", err)
		return
	}

	value := decimal.Zero
	if req.Value != "" {
		value, err = decimal.NewFromString(req.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid value (decimal string)", err)
			return
		}
	}

	p, err := h.Service.CreatePoint(r.Context(), discipline.CreatePointInput{
		UserID:          discipline.UserID(req.UserID),
		ShiftDate:       shiftDate,
		Violation:       discipline.ViolationType(req.Violation),
		Value:           value,
		EligibleForGBRO: req.EligibleForGBRO,
		IsAdvised:       req.IsAdvised,
	})
	if err != nil {
		if discipline.IsValidation(err) {
			writeError(w, http.StatusBadRequest, "Invalid point", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create point", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPointDTO(p))
}

// GetPoint returns a single point.
// GET /api/points/{id}
func (h *Handler) GetPoint(w http.ResponseWriter, r *http.Request) {
	id := discipline.PointID(chi.URLParam(r, "id"))

	p, err := h.Store.GetPoint(r.Context(), id)
	if err != nil {
		if discipline.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Point not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get point", err)
		return
	}

	writeJSON(w, http.StatusOK, toPointDTO(*p))
}

// ExcusePoint removes a point from both expiration pipelines.
// POST /api/points/{id}/excuse
func (h *Handler) ExcusePoint(w http.ResponseWriter, r *http.Request) {
	id := discipline.PointID(chi.URLParam(r, "id"))

	p, err := h.Service.ExcusePoint(r.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case discipline.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Point not found", nil)
		case errors.Is(err, discipline.ErrPointExpired):
			writeError(w, http.StatusConflict, "Point already expired", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to excuse point", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, toPointDTO(p))
}

// ResetPoint un-expires a point (operator tool).
// POST /api/points/{id}/reset
func (h *Handler) ResetPoint(w http.ResponseWriter, r *http.Request) {
	id := discipline.PointID(chi.URLParam(r, "id"))

	p, err := h.Repairer.ResetPoint(r.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case discipline.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Point not found", nil)
		case errors.Is(err, discipline.ErrPointNotExpired):
			writeError(w, http.StatusConflict, "Point is not expired", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to reset point", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, toPointDTO(p))
}

// =============================================================================
// EMPLOYEE QUERY HANDLERS
// =============================================================================

// ListPoints returns all of an employee's points, newest first.
// GET /api/employees/{id}/points
func (h *Handler) ListPoints(w http.ResponseWriter, r *http.Request) {
	userID := discipline.UserID(chi.URLParam(r, "id"))

	points, err := h.Store.PointsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list points", err)
		return
	}

	writeJSON(w, http.StatusOK, toPointDTOs(points))
}

// GetBalance returns an employee's point total, as of now or as of a past
// instant when ?as_of=RFC3339 is given.
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := discipline.UserID(chi.URLParam(r, "id"))

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			// Date-only form is accepted as midnight UTC.
			t, err = time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid as_of (RFC3339 or YYYY-MM-DD)", err)
				return
			}
		}
		asOf = t
	}

	balance, err := h.Evaluator.SumActiveAsOf(ctx, userID, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	active, err := h.Evaluator.ActivePoints(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:       string(userID),
		Balance:      balance.String(),
		AsOf:         asOf.Format(time.RFC3339),
		ActivePoints: len(active),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerPass runs one expiration pass.
// POST /api/admin/expiration-pass?dry_run=true&force=true&no_notify=true
func (h *Handler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := discipline.PassOptions{
		DryRun: q.Get("dry_run") == "true",
		Force:  q.Get("force") == "true",
		Notify: q.Get("no_notify") != "true",
	}

	summary, err := h.Coordinator.RunExpirationPass(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Expiration pass failed", err)
		return
	}

	writeJSON(w, http.StatusOK, PassSummaryDTO{
		RunID:          summary.RunID,
		RunDate:        summary.RunDate.Format("2006-01-02"),
		DryRun:         summary.DryRun,
		SROExpired:     summary.SROExpired,
		GBROExpired:    summary.GBROExpired,
		SROFailed:      summary.SROFailed,
		CohortsFailed:  summary.CohortsFailed,
		SkippedSameDay: summary.SkippedSameDay,
		Warnings:       summary.Warnings,
	})
}

// ListRuns returns recent batch run records.
// GET /api/admin/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Runs.Runs(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]BatchRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecomputeCohorts replays the GBRO cascade for every user (repair tool).
// POST /api/admin/recompute-cohorts
func (h *Handler) RecomputeCohorts(w http.ResponseWriter, r *http.Request) {
	forgiven, err := h.Repairer.RecomputeAll(r.Context(), time.Now().UTC(), "repair")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recompute failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"forgiven": forgiven})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
