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
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/audit"
)

// ListAPIKeys lists the tenant's keys. Secrets are never returned.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

// GetAPIKey returns one key
func (h *Handler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "keyID"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, key)
}

// APIKeyStats reports a key's age and last use
func (h *Handler) APIKeyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.keys.Stats(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "keyID"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// CreateAPIKey issues a key. The plaintext is in this response only.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apikey.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	d := DecisionFrom(r.Context())
	created, err := h.keys.Create(r.Context(), d.TenantID(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), created.ID, nil, created.APIKey)
	h.security.APIKeyChanged(r.Context(), d.TenantSlug(), GetUserID(r.Context()), created.ID, "create")
	respondJSON(w, http.StatusCreated, created)
}

// UpdateAPIKey changes label or scopes
func (h *Handler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apikey.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	d := DecisionFrom(r.Context())
	keyID := chi.URLParam(r, "keyID")
	before, after, err := h.keys.Update(r.Context(), d.TenantID(), keyID, req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), keyID, before, after)
	h.security.APIKeyChanged(r.Context(), d.TenantSlug(), GetUserID(r.Context()), keyID, "update")
	respondJSON(w, http.StatusOK, after)
}

// RevokeAPIKey deactivates a key; it can be activated again later
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyState(w, r, "revoke", h.keys.Revoke)
}

// ActivateAPIKey re-enables a revoked key
func (h *Handler) ActivateAPIKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyState(w, r, "activate", h.keys.Activate)
}

func (h *Handler) setKeyState(w http.ResponseWriter, r *http.Request, action string,
	apply func(ctx context.Context, tenantID, keyID string) (*apikey.APIKey, error)) {
	d := DecisionFrom(r.Context())
	keyID := chi.URLParam(r, "keyID")

	before, err := h.keys.Get(r.Context(), d.TenantID(), keyID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	after, err := apply(r.Context(), d.TenantID(), keyID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), keyID, before, after)
	h.security.APIKeyChanged(r.Context(), d.TenantSlug(), GetUserID(r.Context()), keyID, action)
	respondJSON(w, http.StatusOK, after)
}

// DeleteAPIKey removes a key permanently
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	d := DecisionFrom(r.Context())
	keyID := chi.URLParam(r, "keyID")

	removed, err := h.keys.Delete(r.Context(), d.TenantID(), keyID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	audit.Track(r.Context(), keyID, removed, nil)
	h.security.APIKeyChanged(r.Context(), d.TenantSlug(), GetUserID(r.Context()), keyID, "delete")
	respondJSON(w, http.StatusOK, map[string]string{"message": "api key deleted"})
}
