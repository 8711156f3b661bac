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

// Package authn turns request credentials into an authz.Identity.
package authn

import (
	"context"
	"errors"
	"log/slog"

	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/session"
)

// ErrUnauthenticated is returned when no credential yields an identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Credentials are the raw values taken from a request
type Credentials struct {
	Bearer string
	APIKey string
}

// Empty reports whether no credential was presented
func (c Credentials) Empty() bool {
	return c.Bearer == "" && c.APIKey == ""
}

// KeyAuthenticator resolves plaintext API keys
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*apikey.APIKey, error)
}

// TokenVerifier verifies session tokens
type TokenVerifier interface {
	Verify(raw string) (*session.Claims, error)
}

// Resolver is the credential stage of the access pipeline
type Resolver struct {
	keys   KeyAuthenticator
	tokens TokenVerifier
}

// NewResolver creates a credential resolver
func NewResolver(keys KeyAuthenticator, tokens TokenVerifier) *Resolver {
	return &Resolver{keys: keys, tokens: tokens}
}

// Resolve tries the API key first, then the bearer token. A key that is
// unknown or revoked is treated as absent. A store failure while checking a
// key is returned as is so the caller can fail closed.
func (r *Resolver) Resolve(ctx context.Context, c Credentials) (authz.Identity, error) {
	if c.APIKey != "" {
		key, err := r.keys.Authenticate(ctx, c.APIKey)
		switch {
		case err == nil:
			return authz.APIKeyIdentity{KeyID: key.ID, TenantID: key.TenantID, Scopes: key.Scopes}, nil
		case errors.Is(err, apikey.ErrInvalidKey):
			slog.DebugContext(ctx, "api key rejected", logger.Component("authn"))
		default:
			return nil, err
		}
	}

	if c.Bearer != "" {
		claims, err := r.tokens.Verify(c.Bearer)
		if err == nil {
			return authz.SessionIdentity{
				UserID:     claims.UserID,
				Email:      claims.Email,
				GlobalRole: authz.GlobalRole(claims.Role),
			}, nil
		}
		slog.DebugContext(ctx, "session token rejected", logger.Component("authn"), logger.Error(err))
	}

	return nil, ErrUnauthenticated
}
