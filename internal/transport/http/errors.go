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
	"errors"
	"log/slog"
	"net/http"

	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/claim"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

type errorMapping struct {
	err    error
	status int
}

var errorTable = []errorMapping{
	{tenant.ErrTenantNotFound, http.StatusNotFound},
	{tenant.ErrMembershipNotFound, http.StatusNotFound},
	{tenant.ErrSlugTaken, http.StatusConflict},
	{tenant.ErrAlreadyMember, http.StatusConflict},
	{tenant.ErrTenantHasMembers, http.StatusConflict},
	{tenant.ErrLastAdmin, http.StatusConflict},
	{tenant.ErrInvalidSlug, http.StatusBadRequest},
	{tenant.ErrNameRequired, http.StatusBadRequest},
	{tenant.ErrInvalidRole, http.StatusBadRequest},

	{identity.ErrUserNotFound, http.StatusNotFound},
	{identity.ErrUserAlreadyExists, http.StatusConflict},
	{identity.ErrInvalidEmail, http.StatusBadRequest},
	{identity.ErrWeakPassword, http.StatusBadRequest},

	{apikey.ErrKeyNotFound, http.StatusNotFound},
	{apikey.ErrInvalidScopes, http.StatusBadRequest},
	{apikey.ErrAlreadyActive, http.StatusConflict},
	{apikey.ErrRevoked, http.StatusConflict},

	{billing.ErrSubscriptionNotFound, http.StatusNotFound},
	{billing.ErrUnknownPlan, http.StatusBadRequest},
	{billing.ErrSamePlan, http.StatusConflict},
	{billing.ErrAlreadyCancelled, http.StatusConflict},

	{claim.ErrClaimNotFound, http.StatusNotFound},
	{claim.ErrInvalidClaim, http.StatusBadRequest},
	{claim.ErrResolutionRequired, http.StatusBadRequest},
	{claim.ErrAssigneeNotMember, http.StatusBadRequest},
	{claim.ErrInvalidTransition, http.StatusConflict},
	{claim.ErrClaimAlreadyResolved, http.StatusConflict},
}

// handleError maps a service error onto the response. Unknown errors are
// logged and hidden behind a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *billing.QuotaError
	if errors.As(err, &quotaErr) {
		respondJSON(w, http.StatusForbidden, map[string]any{
			"message":  err.Error(),
			"plan":     quotaErr.Plan,
			"resource": quotaErr.Resource,
			"usage":    quotaErr.Usage,
			"limit":    quotaErr.Limit,
		})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			respondError(w, m.status, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed",
		logger.Method(r.Method),
		logger.Path(r.URL.Path),
		logger.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

func badRequest(w http.ResponseWriter, err error) {
	if errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "request body is required")
		return
	}
	respondError(w, http.StatusBadRequest, "invalid request body")
}
