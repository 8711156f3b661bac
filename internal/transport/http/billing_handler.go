package http

import (
	"errors"
	"net/http"

	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/billing"
)

// ListPlans lists the plan catalog
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"plans": h.billing.Catalog().List()})
}

// GetSubscription returns the tenant's subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Get(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// GetUsage reports consumption against the effective plan
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.billing.Usage(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

// UpgradeRequest names the target plan
type UpgradeRequest struct {
	Plan billing.PlanName `json:"plan"`
}

// UpgradePlan moves the tenant to another plan and restarts the cycle
func (h *Handler) UpgradePlan(w http.ResponseWriter, r *http.Request) {
	var req UpgradeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	before, after, err := h.billing.Upgrade(r.Context(), tenantID, req.Plan)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), tenantID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CancelSubscription cancels the tenant's subscription
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		badRequest(w, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	before, after, err := h.billing.Cancel(r.Context(), tenantID, req.Reason)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), tenantID, before, after)
	respondJSON(w, http.StatusOK, after)
}
