/**
 * @description
 * HTTP handlers for the contribution endpoints: recording a contribution and
 * the bulk approve/reject batch. Batch per-item failures travel in the
 * response body; only whole-batch precondition failures surface as HTTP
 * errors.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/givebridge/ledger-service/internal/app"
	"github.com/givebridge/ledger-service/internal/domain"
)

// CreateContributionHandler handles POST /contributions. Donors record
// pending contributions against a case; administrators may record an
// already-paid contribution directly as approved.
func (h *LedgerHandlers) CreateContributionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}

	var req domain.CreateContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	// Donors may only contribute as themselves.
	if actor.Role == app.RoleDonor {
		req.DonorID = *actor.ID
		req.AlreadyPaid = false
	}

	contribution, err := h.service.RecordContribution(r.Context(), actor, req)
	if err != nil {
		h.handleServiceError(w, "create_contribution", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, contribution)
}

// BatchDecisionHandler handles POST /contributions/batch: bulk approve or
// reject across an explicit id list or an "all-pending" selection.
func (h *LedgerHandlers) BatchDecisionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(w, r)
	if !ok {
		return
	}
	if actor.Role != app.RoleAdmin && actor.Role != app.RoleManager {
		h.writeError(w, http.StatusForbidden, "Only administrators may process contribution batches")
		return
	}

	var req domain.BatchDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.ProcessBatch(r.Context(), actor, req)
	if err != nil {
		h.handleServiceError(w, "contribution_batch", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
