// Copyright 2026 The ClaimDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// CreateTenant creates a tenant; the caller becomes its first admin
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenant.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	t, err := h.tenants.CreateTenant(r.Context(), req, GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), t.ID, nil, t)
	respondJSON(w, http.StatusCreated, t)
}

// ListTenants lists every tenant on the platform
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.ListTenants(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// GetTenant returns the resolved tenant
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, DecisionFrom(r.Context()).Tenant)
}

// UpdateTenant updates name, locale and contact details
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenant.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	before, after, err := h.tenants.UpdateTenant(r.Context(), tenantID, req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), tenantID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// UpdateBranding replaces the tenant's branding
func (h *Handler) UpdateBranding(w http.ResponseWriter, r *http.Request) {
	var req tenant.Branding
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	before, after, err := h.tenants.UpdateBranding(r.Context(), tenantID, req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), tenantID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// DeleteTenant deletes the tenant. ?force=true deletes it even while other
// members remain.
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	d := DecisionFrom(r.Context())

	if err := h.tenants.DeleteTenant(r.Context(), d.TenantID(), GetUserID(r.Context()), force); err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), d.TenantID(), d.Tenant, nil)
	respondJSON(w, http.StatusOK, map[string]string{"message": "tenant deleted"})
}

// TenantStats reports member counts and plan usage
func (h *Handler) TenantStats(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	counts, err := h.tenants.MemberCounts(r.Context(), tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	usage, err := h.billing.Usage(r.Context(), tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"members_by_role": counts,
		"usage":           usage,
	})
}

// PublicBranding serves a tenant's public look without authentication
func (h *Handler) PublicBranding(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"slug":     t.Slug,
		"name":     t.Name,
		"locale":   t.Locale,
		"branding": t.Branding,
		"contact":  t.Contact,
	})
}
