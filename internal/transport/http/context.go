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
	"strings"

	"github.com/claimdesk/claimdesk/internal/access"
	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
)

type contextKey string

const decisionKey contextKey = "access_decision"

func withDecision(ctx context.Context, d *access.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// DecisionFrom returns the access decision for the request, or nil on
// public routes.
func DecisionFrom(ctx context.Context) *access.Decision {
	d, _ := ctx.Value(decisionKey).(*access.Decision)
	return d
}

// GetUserID returns the calling user's ID, or "" for API keys.
func GetUserID(ctx context.Context) string {
	if d := DecisionFrom(ctx); d != nil && d.Identity != nil {
		return authz.UserID(d.Identity)
	}
	return ""
}

// GetTenantID returns the resolved tenant's ID.
func GetTenantID(ctx context.Context) string {
	if d := DecisionFrom(ctx); d != nil {
		return d.TenantID()
	}
	return ""
}

// credentialsFrom reads the bearer token and API key headers. The tenant is
// never taken from a header.
func credentialsFrom(r *http.Request) authn.Credentials {
	var c authn.Credentials
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			c.Bearer = strings.TrimSpace(token)
		}
	}
	c.APIKey = strings.TrimSpace(r.Header.Get("X-API-Key"))
	return c
}
