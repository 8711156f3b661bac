package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/session"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// TenantSlug optionally pins the token to one of the user's tenants
	TenantSlug string `json:"tenant_slug,omitempty"`
}

// LoginResponse carries the issued session token
type LoginResponse struct {
	Token     string               `json:"token"`
	TokenType string               `json:"token_type"`
	ExpiresAt time.Time            `json:"expires_at"`
	User      userView             `json:"user"`
	Tenants   []*tenant.UserTenant `json:"tenants"`
}

type userView struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	GlobalRole string `json:"global_role"`
}

func viewUser(u *identity.User) userView {
	return userView{ID: u.ID, Email: u.Email, FullName: u.FullName, GlobalRole: string(u.GlobalRole)}
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ip := clientIP(r)
	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			h.security.LoginFailure(r.Context(), req.Email, ip, "account_locked")
			respondError(w, http.StatusLocked, "account is temporarily locked")
		case errors.Is(err, identity.ErrInvalidCredentials):
			h.security.LoginFailure(r.Context(), req.Email, ip, "invalid_credentials")
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			handleError(w, r, err)
		}
		return
	}

	memberships, err := h.tenants.MembershipsFor(r.Context(), user.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	requested := strings.ToLower(strings.TrimSpace(req.TenantSlug))
	slug, ok := pickTenant(memberships, requested)
	if !ok && user.Identity().IsSuperadmin() {
		slug, ok = requested, true
	}
	if !ok {
		respondError(w, http.StatusForbidden, "not a member of this tenant")
		return
	}

	token, expires, err := h.issuer.Issue(session.Subject{
		UserID:     user.ID,
		Email:      user.Email,
		GlobalRole: string(user.GlobalRole),
		TenantSlug: slug,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	h.security.LoginSuccess(r.Context(), user.ID, ip)
	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		User:      viewUser(user),
		Tenants:   memberships,
	})
}

// pickTenant chooses the tenant_slug claim. A requested slug must be one of
// the memberships; otherwise a single membership is used as the default.
func pickTenant(memberships []*tenant.UserTenant, requested string) (string, bool) {
	if requested != "" {
		for _, m := range memberships {
			if m.TenantSlug == requested {
				return requested, true
			}
		}
		return "", false
	}
	if len(memberships) == 1 {
		return memberships[0].TenantSlug, true
	}
	return "", true
}

// Me returns the current user and their tenants
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	memberships, err := h.tenants.MembershipsFor(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user":    viewUser(user),
		"tenants": memberships,
	})
}
