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

	"github.com/go-chi/chi/v5"

	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/claim"
)

// CreateClaim files a claim. The plan's monthly claim quota is enforced
// atomically by the store.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req claim.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	c, err := h.claims.Create(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), c.ID, nil, c)
	respondJSON(w, http.StatusCreated, c)
}

// ListClaims lists claims filtered by status and assignee
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	claims, err := h.claims.List(r.Context(), GetTenantID(r.Context()), claim.ListFilter{
		Status:     claim.Status(q.Get("status")),
		AssigneeID: q.Get("assignee_id"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

// GetClaim returns one claim
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.claims.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "claimID"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// UpdateClaim edits an unresolved claim
func (h *Handler) UpdateClaim(w http.ResponseWriter, r *http.Request) {
	var req claim.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	claimID := chi.URLParam(r, "claimID")
	before, after, err := h.claims.Update(r.Context(), GetTenantID(r.Context()), claimID, req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), claimID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// AssignRequest names the assignee, who must be a tenant member
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// AssignClaim assigns a claim to a member
func (h *Handler) AssignClaim(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	claimID := chi.URLParam(r, "claimID")
	before, after, err := h.claims.Assign(r.Context(), GetTenantID(r.Context()), claimID, req.AssigneeID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), claimID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// ResolveRequest carries the resolution text
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveClaim closes a claim; resolved claims are immutable
func (h *Handler) ResolveClaim(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	claimID := chi.URLParam(r, "claimID")
	before, after, err := h.claims.Resolve(r.Context(), GetTenantID(r.Context()), claimID, req.Resolution)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), claimID, before, after)
	respondJSON(w, http.StatusOK, after)
}

// DeleteClaim removes a claim
func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	removed, err := h.claims.Delete(r.Context(), GetTenantID(r.Context()), claimID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), claimID, removed, nil)
	respondJSON(w, http.StatusOK, map[string]string{"message": "claim deleted"})
}
