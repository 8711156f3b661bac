package http

import (
	"net/http"

	"github.com/claimdesk/claimdesk/internal/audit"
)

// ListAuditLogs lists the tenant's audit trail, newest first
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.auditLog.List(r.Context(), audit.Filter{
		TenantID:     GetTenantID(r.Context()),
		Action:       audit.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}
