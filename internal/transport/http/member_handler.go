package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// AddMemberRequest invites a user by email. Password is only used when the
// account does not exist yet.
type AddMemberRequest struct {
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Password string     `json:"password"`
	Role     authz.Role `json:"role"`
}

// ListMembers lists the tenant's members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.tenants.ListMembers(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// AddMember adds a user to the tenant, creating the account when needed
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Role == "" {
		req.Role = authz.RoleStaff
	}
	if !req.Role.Valid() {
		handleError(w, r, tenant.ErrInvalidRole)
		return
	}

	user, created, err := h.users.FindOrCreate(r.Context(), identity.NewUser{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	if err := h.tenants.AddMember(r.Context(), tenantID, user.ID, req.Role); err != nil {
		handleError(w, r, err)
		return
	}

	membership := map[string]any{
		"tenant_id": tenantID,
		"user_id":   user.ID,
		"email":     user.Email,
		"role":      req.Role,
	}
	audit.Track(r.Context(), user.ID, nil, membership)
	respondJSON(w, http.StatusCreated, map[string]any{
		"membership":   membership,
		"user_created": created,
	})
}

// RemoveMember removes a user from the tenant
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	removed, err := h.tenants.RemoveMember(r.Context(), GetTenantID(r.Context()), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), userID, removed, nil)
	respondJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}
