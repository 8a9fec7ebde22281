/**
 * @description
 * This file contains the HTTP handlers for the case-facing API endpoints.
 * Handlers parse incoming requests, call the application service, and write
 * the HTTP response. They act as the bridge between the web layer and the
 * business logic layer; per-request actor identity flows in through GetActor
 * and out to the service as explicit parameters.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/givebridge/ledger-service/internal/app"
	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/givebridge/ledger-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleServiceError maps service-layer sentinels onto the HTTP taxonomy:
// validation and transition violations are 400, missing entities 404, role
// gate failures 403, rate limiting 429, everything else 500.
func (h *LedgerHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrCaseNotFound), errors.Is(err, store.ErrContributionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, app.ErrInvalidCaseStatus),
		errors.Is(err, app.ErrReasonRequired),
		errors.Is(err, app.ErrEmptySelection),
		errors.Is(err, app.ErrInvalidAction),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrNotEligible):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrBatchRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"request failed\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *LedgerHandlers) actorFromRequest(w http.ResponseWriter, r *http.Request) (app.Actor, bool) {
	actorID, role, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not resolve actor from context")
		return app.Actor{}, false
	}
	return app.Actor{ID: &actorID, Role: role}, true
}

func caseIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// CreateCaseHandler handles POST /cases: a new draft case.
func (h *LedgerHandlers) CreateCaseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}
	if actor.Role != app.RoleAdmin && actor.Role != app.RoleManager {
		h.writeError(w, http.StatusForbidden, "Only administrators may create cases")
		return
	}

	var req domain.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	created, err := h.service.CreateCase(r.Context(), *actor.ID, req)
	if err != nil {
		h.handleServiceError(w, "create_case", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetCaseHandler handles GET /cases/{id}.
func (h *LedgerHandlers) GetCaseHandler(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	c, err := h.service.GetCase(r.Context(), caseID)
	if err != nil {
		h.handleServiceError(w, "get_case", err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// GetCaseTransitionsHandler handles GET /cases/{id}/transitions: the set of
// legal next statuses for the requesting actor's role.
func (h *LedgerHandlers) GetCaseTransitionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	c, err := h.service.GetCase(r.Context(), caseID)
	if err != nil {
		h.handleServiceError(w, "case_transitions", err)
		return
	}

	transitions := app.AvailableTransitions(c.Status, actor.Role, false)
	if transitions == nil {
		transitions = []domain.CaseStatus{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_status": c.Status,
		"transitions":    transitions,
	})
}

// ChangeCaseStatusHandler handles PATCH /cases/{id}/status: a manual
// lifecycle transition on behalf of the authenticated actor.
func (h *LedgerHandlers) ChangeCaseStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	var req domain.ChangeCaseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	updated, err := h.service.ChangeCaseStatus(r.Context(), caseID, req.NewStatus, actor, req.ChangeReason, req.SystemTriggered)
	if err != nil {
		h.handleServiceError(w, "change_case_status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// caseStatusActionRequest is the body for POST /cases/{id}/status.
type caseStatusActionRequest struct {
	Action string `json:"action"`
}

// CaseStatusActionHandler handles POST /cases/{id}/status. The only supported
// action is "check-automatic-closure", which recomputes the case total and
// closes the case when the funding goal is reached.
func (h *LedgerHandlers) CaseStatusActionHandler(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	var req caseStatusActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Action != "check-automatic-closure" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported action %q", req.Action))
		return
	}

	result, err := h.service.CheckAutomaticClosure(r.Context(), caseID)
	if err != nil {
		h.handleServiceError(w, "check_automatic_closure", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetCaseStatusHistoryHandler handles GET /cases/{id}/status: the append-only
// transition trail.
func (h *LedgerHandlers) GetCaseStatusHistoryHandler(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	history, err := h.service.GetCaseStatusHistory(r.Context(), caseID)
	if err != nil {
		h.handleServiceError(w, "case_status_history", err)
		return
	}
	if history == nil {
		history = []domain.CaseStatusHistory{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

// ListCaseContributionsHandler handles GET /cases/{id}/contributions with an
// optional ?status= filter.
func (h *LedgerHandlers) ListCaseContributionsHandler(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	var status *domain.ContributionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.ContributionStatus(raw)
		if s != domain.ContributionStatusPending && s != domain.ContributionStatusApproved && s != domain.ContributionStatusRejected {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown contribution status %q", raw))
			return
		}
		status = &s
	}

	contributions, err := h.service.ListCaseContributions(r.Context(), caseID, status)
	if err != nil {
		h.handleServiceError(w, "list_case_contributions", err)
		return
	}
	if contributions == nil {
		contributions = []domain.Contribution{}
	}
	h.writeJSON(w, http.StatusOK, contributions)
}

// ReconcileCaseHandler handles POST /cases/{id}/reconcile: the administrative
// repair hook that forces a full recompute of the case total.
func (h *LedgerHandlers) ReconcileCaseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}
	if actor.Role != app.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "Only administrators may reconcile case totals")
		return
	}
	caseID, err := caseIDFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	total, err := h.service.RecomputeCaseAmount(r.Context(), caseID)
	if err != nil {
		h.handleServiceError(w, "reconcile_case", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"case_id":        caseID,
		"current_amount": total,
	})
}
