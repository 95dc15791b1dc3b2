// Package api exposes the takedown case workflow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/reporting"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	apierrors "github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

var validate = validator.New()

// =============================================================================
// Common Helpers
// =============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON reads and validates JSON request body.
func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()
	if err := json.Unmarshal(body, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// handleError writes appropriate error response based on error type.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierrors.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, apierrors.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, apierrors.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, apierrors.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, apierrors.ErrEscalationCapped):
		writeJSONError(w, http.StatusConflict, "ESCALATION_CAPPED", err.Error())
	case errors.Is(err, apierrors.ErrCaseClosed):
		writeJSONError(w, http.StatusConflict, "CASE_CLOSED", err.Error())
	case errors.Is(err, apierrors.ErrInvalidTransition):
		writeJSONError(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, apierrors.ErrConflict):
		writeJSONError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, apierrors.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusConflict, "CASE_BUSY", err.Error())
	case errors.Is(err, apierrors.ErrIntegrityViolation):
		writeJSONError(w, http.StatusInternalServerError, "AUDIT_INTEGRITY", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// getPaginationParams extracts limit and offset from query params.
func getPaginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return
}

// =============================================================================
// Case Handler
// =============================================================================

// CaseHandler handles takedown case API requests.
type CaseHandler struct {
	service workflow.Service
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(service workflow.Service) *CaseHandler {
	return &CaseHandler{service: service}
}

// SubmitItemRequest is one reported content item.
type SubmitItemRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=URL HASH"`
	Content string `json:"content" validate:"required"`
}

// SubmitCaseRequest represents case submission request.
type SubmitCaseRequest struct {
	Priority     string              `json:"priority" validate:"required,oneof=low medium high urgent"`
	Jurisdiction string              `json:"jurisdiction"`
	Items        []SubmitItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Submit handles POST /api/v1/cases.
func (h *CaseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "actor identity missing")
		return
	}

	var req SubmitCaseRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	items := make([]workflow.SubmissionInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, workflow.SubmissionInput{
			Kind:    models.SubmissionKind(item.Kind),
			Content: item.Content,
		})
	}

	c, err := h.service.Submit(r.Context(), workflow.SubmitParams{
		SubmitterID:  actor.ID,
		Priority:     models.CasePriority(req.Priority),
		Jurisdiction: req.Jurisdiction,
		Items:        items,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /api/v1/cases.
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := getPaginationParams(r)

	filter := workflow.ListFilter{
		Priority:    models.CasePriority(query.Get("priority")),
		SubmitterID: query.Get("submitter_id"),
		OfficerID:   query.Get("officer_id"),
		Limit:       limit,
		Offset:      offset,
	}
	for _, s := range query["status"] {
		filter.Statuses = append(filter.Statuses, models.CaseStatus(s))
	}
	if d := query.Get("due_before"); d != "" {
		t, err := time.Parse(time.RFC3339, d)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "due_before must be RFC3339")
			return
		}
		filter.DueBefore = &t
	}

	cases, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// Get handles GET /api/v1/cases/{id}.
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "case id is required")
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case":  c,
		"timer": models.TimerFor(c),
	})
}

// TransitionRequest represents a state transition request.
type TransitionRequest struct {
	Action    string         `json:"action" validate:"required"`
	Reason    string         `json:"reason,omitempty"`
	OfficerID string         `json:"officer_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Transition handles POST /api/v1/cases/{id}/transitions.
func (h *CaseHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "actor identity missing")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "case id is required")
		return
	}

	var req TransitionRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	c, err := h.service.Execute(r.Context(), id, actor, models.Action(req.Action), workflow.ExecuteOptions{
		Reason:    models.ReasonCode(req.Reason),
		OfficerID: req.OfficerID,
		Meta:      req.Meta,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Actions handles GET /api/v1/cases/{id}/actions. It lists the transitions
// available to the calling actor from the case's current state.
func (h *CaseHandler) Actions(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "actor identity missing")
		return
	}

	id := chi.URLParam(r, "id")
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	actions := []models.Action{}
	for _, action := range workflow.AllowedActions(c.Status, actor.Role) {
		if h.service.CanTransition(c, action, actor.Role) == nil {
			actions = append(actions, action)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": c.ID,
		"status":  c.Status,
		"actions": actions,
	})
}

// Lineage handles GET /api/v1/cases/{id}/lineage.
func (h *CaseHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chain, err := h.service.Lineage(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lineage": chain,
		"depth":   len(chain) - 1,
	})
}

// Submissions handles GET /api/v1/cases/{id}/submissions.
func (h *CaseHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subs, err := h.service.Submissions(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}

// =============================================================================
// Audit Handler
// =============================================================================

// AuditHandler handles audit trail API requests.
type AuditHandler struct {
	service   audit.Service
	reporting reporting.Service
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(service audit.Service, reportingService reporting.Service) *AuditHandler {
	return &AuditHandler{service: service, reporting: reportingService}
}

// Trail handles GET /api/v1/cases/{id}/audit.
func (h *AuditHandler) Trail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, offset := getPaginationParams(r)

	entries, err := h.service.List(r.Context(), id, limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Entry handles GET /api/v1/audit/{id}.
func (h *AuditHandler) Entry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "audit entry id is required")
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// Export handles GET /api/v1/cases/{id}/audit/export. The trail is
// verified before export; a tampered trail is refused.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}

	data, err := h.reporting.ExportAuditTrail(r.Context(), id, format)
	if err != nil {
		handleError(w, err)
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=audit-"+id+"."+string(format))
	_, _ = w.Write(data)
}

// Verify handles GET /api/v1/cases/{id}/audit/verify.
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	valid, err := h.reporting.VerifyCase(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": id,
		"valid":   valid,
	})
}

// =============================================================================
// Reporting Handler
// =============================================================================

// ReportingHandler handles statistics API requests.
type ReportingHandler struct {
	service reporting.Service
}

// NewReportingHandler creates a new reporting handler.
func NewReportingHandler(service reporting.Service) *ReportingHandler {
	return &ReportingHandler{service: service}
}

// Stats handles GET /api/v1/stats.
func (h *ReportingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "since must be RFC3339")
			return
		}
		since = t
	}

	stats, err := h.service.Stats(r.Context(), since)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
