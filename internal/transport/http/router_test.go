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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimdesk/claimdesk/internal/access"
	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/claim"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/session"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

type testEnv struct {
	store    *memStore
	router   http.Handler
	users    *identity.Service
	issuer   *session.Issuer
	tenants  *tenant.Service
	billing  *billing.Service
	recorder *audit.Recorder
	health   map[string]PingFunc
	h        *Handler
}

func newTestEnv(t *testing.T, maxRequests int64) *testEnv {
	t.Helper()
	store := newMemStore()

	users := identity.NewService(userRepo{store}, identity.NewPasswordHasher(1024, 1, 1, 16, 32), 5, 15*time.Minute)
	issuer := session.NewIssuer("0123456789abcdef0123456789abcdef", "claimdesk-test", time.Hour)
	billingSvc := billing.NewService(subscriptionRepo{store}, usageCounter{store}, billing.DefaultCatalog())
	gate := billing.NewGate(billingSvc, usageCounter{store})
	tenants := tenant.NewService(tenantRepo{store}, memberRepo{store}, billingSvc)
	keys := apikey.NewService(keyRepo{store}, nil)
	claims := claim.NewService(claimRepo{store}, gate, tenants, claim.NewLogNotifier(nil))
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), time.Minute, maxRequests, nil)
	recorder := audit.NewRecorder(auditRepo{store}, audit.Options{QueueSize: 64, Workers: 1}, nil)

	pipeline := access.NewPipeline(access.Deps{
		Credentials: authn.NewResolver(keys, issuer),
		Tenants:     tenant.NewResolver(tenantRepo{store}),
		Authorizer:  authz.NewAuthorizer(tenants),
		Limiter:     limiter,
		Gate:        gate,
	}, access.Config{DefaultLocale: "en", UpgradeURL: "/api/billing/upgrade"})

	env := &testEnv{
		store:    store,
		users:    users,
		issuer:   issuer,
		tenants:  tenants,
		billing:  billingSvc,
		recorder: recorder,
		health:   map[string]PingFunc{},
	}

	h := NewHandler(Deps{
		Pipeline: pipeline,
		Limiter:  limiter,
		Users:    users,
		Issuer:   issuer,
		Tenants:  tenants,
		Billing:  billingSvc,
		Keys:     keys,
		Claims:   claims,
		Recorder: recorder,
		AuditLog: auditRepo{store},
		Health:   env.health,
	}, Config{AllowedOrigins: []string{"http://localhost:3000"}, LoginBurst: 50, LoginRPS: 50})
	env.h = h
	env.router = NewRouter(h)
	return env
}

func (e *testEnv) createUser(t *testing.T, email string) *identity.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), identity.NewUser{Email: email, FullName: email, Password: "correct-horse"})
	require.NoError(t, err)
	return u
}

func (e *testEnv) token(t *testing.T, u *identity.User) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(session.Subject{UserID: u.ID, Email: u.Email, GlobalRole: string(u.GlobalRole)})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) createTenant(t *testing.T, slug string, admin *identity.User) *tenant.Tenant {
	t.Helper()
	tn, err := e.tenants.CreateTenant(context.Background(), tenant.CreateInput{Slug: slug, Name: slug, Locale: "en"}, admin.ID)
	require.NoError(t, err)
	return tn
}

type header map[string]string

func bearer(tok string) header { return header{"Authorization": "Bearer " + tok} }

func (e *testEnv) do(t *testing.T, method, path string, body any, h header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// flushAudit drains the recorder and returns every persisted entry
func (e *testEnv) flushAudit(t *testing.T) []*audit.Entry {
	t.Helper()
	require.NoError(t, e.recorder.Close(context.Background()))
	return e.store.auditEntries()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// TestPurpose: Validates that tenant routes refuse requests without credentials before any tenant work.
// Scope: HTTP Integration Test
// Security: Authentication boundary (CWE-306)
// Expected: 401 with a message body and no audit entry.
// Test Case ID: HTTP-01
func TestRouter_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)

	w := env.do(t, http.MethodPost, "/api/tenants/acme/claims", map[string]string{"subject": "x"}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["message"])
	assert.Empty(t, env.flushAudit(t))
}

// TestPurpose: Validates role enforcement on admin-only routes.
// Scope: HTTP Integration Test
// Security: Privilege escalation prevention (CWE-269)
// Expected: Staff gets 403 with required_roles; admin gets 200.
// Test Case ID: HTTP-02
func TestRouter_RoleEnforcement(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	staff := env.createUser(t, "staff@acme.test")
	tn := env.createTenant(t, "acme", admin)
	require.NoError(t, env.tenants.AddMember(context.Background(), tn.ID, staff.ID, authz.RoleStaff))

	w := env.do(t, http.MethodGet, "/api/tenants/acme/members", nil, bearer(env.token(t, staff)))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []any{"admin"}, decodeBody(t, w)["required_roles"])

	w = env.do(t, http.MethodGet, "/api/tenants/acme/members", nil, bearer(env.token(t, admin)))
	assert.Equal(t, http.StatusOK, w.Code)

	outsider := env.createUser(t, "outsider@else.test")
	w = env.do(t, http.MethodGet, "/api/tenants/acme", nil, bearer(env.token(t, outsider)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/tenants/nope", nil, bearer(env.token(t, admin)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates the fixed-window limit surfaces as 429 with retry headers.
// Scope: HTTP Integration Test
// Security: Abuse prevention
// Expected: With MAX=5 the 6th request is 429 with Retry-After and X-RateLimit-Remaining 0.
// Test Case ID: HTTP-03
func TestRouter_RateLimited(t *testing.T) {
	env := newTestEnv(t, 5)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)
	tok := env.token(t, admin)

	for i := 1; i <= 5; i++ {
		w := env.do(t, http.MethodGet, "/api/tenants/acme", nil, bearer(tok))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := env.do(t, http.MethodGet, "/api/tenants/acme", nil, bearer(tok))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, decodeBody(t, w), "retry_after")
}

// TestPurpose: Validates plan gating of API keys and the key lifecycle end to end.
// Scope: HTTP Integration Test
// Security: Plan entitlement enforcement and credential revocation
// Expected: Free plan gets 403 feature error; after upgrade the key works, a revoked key is 401,
// and activation restores access with the same secret.
// Test Case ID: HTTP-04
func TestRouter_APIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)
	other := env.createUser(t, "admin@globex.test")
	env.createTenant(t, "globex", other)
	auth := bearer(env.token(t, admin))

	w := env.do(t, http.MethodPost, "/api/tenants/acme/api-keys", apikey.CreateInput{Label: "ci", Scopes: []string{"claims:read"}}, auth)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "api_access", body["feature"])
	assert.Equal(t, "/api/billing/upgrade", body["upgrade_url"])

	w = env.do(t, http.MethodPost, "/api/tenants/acme/billing/upgrade", UpgradeRequest{Plan: billing.PlanPro}, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/tenants/acme/api-keys", apikey.CreateInput{Label: "ci", Scopes: []string{"claims:read"}}, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	secret, _ := created["key"].(string)
	keyID, _ := created["id"].(string)
	require.True(t, strings.HasPrefix(secret, apikey.Prefix))

	keyAuth := header{"X-API-Key": secret}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tenants/acme/claims", nil, keyAuth).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/tenants/acme/claims",
		claim.CreateInput{CustomerName: "Ana", CustomerEmail: "ana@example.com", Subject: "Late"}, keyAuth).Code,
		"read-only key cannot write")
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/tenants/globex/claims", nil, keyAuth).Code,
		"key bound to acme cannot reach globex")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/tenants/acme/api-keys/"+keyID, nil, auth).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/tenants/acme/claims", nil, keyAuth).Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tenants/acme/api-keys/"+keyID+"/activate", nil, auth).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tenants/acme/claims", nil, keyAuth).Code)
}

// TestPurpose: Validates that reactivating a revoked key passes the plan gate like key creation.
// Scope: HTTP Integration Test
// Security: Plan limit enforcement
// Expected: With the pro quota full, activation is 403 with usage and limit and the key stays revoked;
// after cancellation the feature check rejects activation.
// Test Case ID: HTTP-11
func TestRouter_APIKeyActivateQuota(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)
	auth := bearer(env.token(t, admin))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tenants/acme/billing/upgrade", UpgradeRequest{Plan: billing.PlanPro}, auth).Code)
	limit := *billing.DefaultCatalog().Lookup(billing.PlanPro).Limits.MaxAPIKeys

	var first, firstSecret string
	for i := int64(0); i < limit; i++ {
		w := env.do(t, http.MethodPost, "/api/tenants/acme/api-keys", apikey.CreateInput{Label: "ci", Scopes: []string{"claims:read"}}, auth)
		require.Equal(t, http.StatusCreated, w.Code, "key %d", i)
		if i == 0 {
			created := decodeBody(t, w)
			first, _ = created["id"].(string)
			firstSecret, _ = created["key"].(string)
		}
	}

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/tenants/acme/api-keys/"+first, nil, auth).Code)
	w := env.do(t, http.MethodPost, "/api/tenants/acme/api-keys", apikey.CreateInput{Label: "refill", Scopes: []string{"claims:read"}}, auth)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/tenants/acme/api-keys/"+first+"/activate", nil, auth)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "api_keys", body["resource"])
	assert.Equal(t, float64(limit), body["usage"])
	assert.Equal(t, float64(limit), body["limit"])
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/tenants/acme/claims", nil, header{"X-API-Key": firstSecret}).Code,
		"rejected activation leaves the key revoked")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tenants/acme/billing/cancel", map[string]string{"reason": "budget"}, auth).Code)
	w = env.do(t, http.MethodPost, "/api/tenants/acme/api-keys/"+first+"/activate", nil, auth)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "api_access", decodeBody(t, w)["feature"])
}

// TestPurpose: Validates one audit row per audited request, with success and failure outcomes.
// Scope: HTTP Integration Test
// Security: Non-repudiation of tenant mutations
// Expected: A successful create writes one success row; a failed update writes one failure row
// whose reason is the response message.
// Test Case ID: HTTP-05
func TestRouter_AuditTrail(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	tn := env.createTenant(t, "acme", admin)
	auth := bearer(env.token(t, admin))

	w := env.do(t, http.MethodPost, "/api/tenants/acme/claims",
		claim.CreateInput{CustomerName: "Ana", CustomerEmail: "ana@example.com", Subject: "Late delivery"}, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	assert.Regexp(t, `^CLM-\d{4}-000001$`, created["code"])

	w = env.do(t, http.MethodPut, "/api/tenants/acme/claims/does-not-exist", map[string]string{"subject": "x"}, auth)
	require.Equal(t, http.StatusNotFound, w.Code)

	entries := env.flushAudit(t)
	require.Len(t, entries, 2)

	byAction := map[audit.Action]*audit.Entry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	createEntry := byAction[audit.ActionCreate]
	require.NotNil(t, createEntry)
	assert.Equal(t, audit.StatusSuccess, createEntry.Status)
	assert.Equal(t, tn.ID, createEntry.TenantID)
	assert.Equal(t, admin.ID, createEntry.UserID)
	assert.Equal(t, created["id"], createEntry.ResourceID)
	assert.NotEmpty(t, createEntry.NewValues)

	updateEntry := byAction[audit.ActionUpdate]
	require.NotNil(t, updateEntry)
	assert.Equal(t, audit.StatusFailure, updateEntry.Status)
	assert.Equal(t, claim.ErrClaimNotFound.Error(), updateEntry.Reason)
	assert.Equal(t, tn.ID, updateEntry.TenantID)

	w = env.do(t, http.MethodGet, "/api/tenants/acme/audit-logs?action=CREATE", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	logs, _ := decodeBody(t, w)["audit_logs"].([]any)
	assert.Len(t, logs, 1)
}

// TestPurpose: Validates login, token use and the identity endpoint.
// Scope: HTTP Integration Test
// Security: Credential verification (CWE-287)
// Expected: Wrong password is 401; a good login returns a bearer token that /api/auth/me accepts.
// Test Case ID: HTTP-06
func TestRouter_LoginAndMe(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)

	w := env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "admin@acme.test", Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ADMIN@acme.test", Password: "correct-horse"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "Bearer", login.TokenType)
	require.Len(t, login.Tenants, 1)

	claims, err := env.issuer.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantSlug)

	w = env.do(t, http.MethodGet, "/api/auth/me", nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody(t, w)
	assert.Equal(t, admin.ID, me["user"].(map[string]any)["id"])
}

// TestPurpose: Validates the member quota on the free plan.
// Scope: HTTP Integration Test
// Security: Plan limit enforcement
// Expected: The free plan admits 2 members; the third invite is 403 with usage and limit.
// Test Case ID: HTTP-07
func TestRouter_MemberQuota(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)
	auth := bearer(env.token(t, admin))

	w := env.do(t, http.MethodPost, "/api/tenants/acme/members",
		AddMemberRequest{Email: "staff@acme.test", Password: "correct-horse"}, auth)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/tenants/acme/members",
		AddMemberRequest{Email: "third@acme.test", Password: "correct-horse"}, auth)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["usage"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, "members", body["resource"])

	_, err := env.users.GetByEmail(context.Background(), "third@acme.test")
	assert.ErrorIs(t, err, identity.ErrUserNotFound, "rejected invite must not create the account")
}

// TestPurpose: Validates that the superadmin bypass applies only where a route allows it.
// Scope: HTTP Integration Test
// Security: Platform privilege containment
// Expected: Superadmin reads a foreign tenant but cannot list its members; tenant listing is superadmin only.
// Test Case ID: HTTP-08
func TestRouter_SuperadminBypass(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)

	root, err := env.users.Create(context.Background(), identity.NewUser{
		Email: "root@platform.test", Password: "correct-horse", GlobalRole: authz.GlobalRoleSuperadmin,
	})
	require.NoError(t, err)
	rootAuth := bearer(env.token(t, root))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tenants/acme", nil, rootAuth).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/tenants/acme/members", nil, rootAuth).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tenants", nil, rootAuth).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/tenants", nil, bearer(env.token(t, admin))).Code)
}

// TestPurpose: Validates tenant creation through the API and the public branding endpoint.
// Scope: HTTP Integration Test
// Expected: The creator becomes admin, duplicate slugs conflict, branding is public.
// Test Case ID: HTTP-09
func TestRouter_CreateTenantAndBranding(t *testing.T) {
	env := newTestEnv(t, 1000)
	user := env.createUser(t, "founder@new.test")
	auth := bearer(env.token(t, user))

	w := env.do(t, http.MethodPost, "/api/tenants", tenant.CreateInput{Slug: "newco", Name: "NewCo"}, auth)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/tenants", tenant.CreateInput{Slug: "newco", Name: "Again"}, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tenants/newco/members", nil, auth).Code)

	w = env.do(t, http.MethodPut, "/api/tenants/newco/branding", tenant.Branding{PrimaryColor: "#000"}, auth)
	assert.Equal(t, http.StatusForbidden, w.Code, "free plan has no custom branding")

	w = env.do(t, http.MethodGet, "/api/tenants/newco/branding", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NewCo", decodeBody(t, w)["name"])

	entries := env.flushAudit(t)
	var created int
	for _, e := range entries {
		if e.ResourceType == audit.ResourceTenant && e.Action == audit.ActionCreate && e.Status == audit.StatusSuccess {
			created++
			assert.NotEmpty(t, e.TenantID)
		}
	}
	assert.Equal(t, 1, created)
}

// TestPurpose: Validates the health endpoint reflects backing service state.
// Scope: Unit Test
// Expected: 200 when every ping succeeds, 503 when one fails.
// Test Case ID: HTTP-10
func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.health["postgres"] = func(context.Context) error { return nil }

	w := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "down", decodeBody(t, w)["checks"].(map[string]any)["redis"])
}

// TestPurpose: Validates that a panicking handler still leaves exactly one audit row.
// Scope: HTTP Integration Test
// Security: Non-repudiation of tenant mutations
// Expected: The recoverer answers 500 and one failure row is recorded for the request.
// Test Case ID: HTTP-12
func TestAudited_HandlerPanic(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	tn := env.createTenant(t, "acme", admin)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(env.h.Access(policy(adminStaff)), env.h.Audited(audit.ActionUpdate, audit.ResourceClaim)).
		Post("/api/tenants/{slug}/explode", func(http.ResponseWriter, *http.Request) {
			panic("handler failure")
		})

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/acme/explode", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, admin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := env.flushAudit(t)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.StatusFailure, entries[0].Status)
	assert.Equal(t, audit.ActionUpdate, entries[0].Action)
	assert.Equal(t, tn.ID, entries[0].TenantID)
	assert.Equal(t, admin.ID, entries[0].UserID)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), entries[0].Reason)
}

// TestPurpose: Validates that the request state reaches its terminal stage after the handler.
// Scope: HTTP Integration Test
// Expected: Audited routes end in StateAudited; routes without auditing end in StateHandled.
// Test Case ID: HTTP-13
func TestAccess_StateAfterHandler(t *testing.T) {
	env := newTestEnv(t, 1000)
	admin := env.createUser(t, "admin@acme.test")
	env.createTenant(t, "acme", admin)

	var captured *access.Decision
	capture := func(w http.ResponseWriter, r *http.Request) {
		captured = DecisionFrom(r.Context())
		respondJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	}
	r := chi.NewRouter()
	r.Route("/api/tenants/{slug}", func(r chi.Router) {
		r.With(env.h.Access(policy(adminStaff)), env.h.Audited(audit.ActionUpdate, audit.ResourceClaim)).Post("/audited", capture)
		r.With(env.h.Access(policy(adminStaff))).Get("/plain", capture)
	})

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+env.token(t, admin))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send(http.MethodPost, "/api/tenants/acme/audited"))
	require.NotNil(t, captured)
	assert.Equal(t, access.StateAudited, captured.State)

	captured = nil
	require.Equal(t, http.StatusOK, send(http.MethodGet, "/api/tenants/acme/plain"))
	require.NotNil(t, captured)
	assert.Equal(t, access.StateHandled, captured.State)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "claim not found", failureReason(http.StatusNotFound, []byte(`{"message":"claim not found"}`+"\n")))
	assert.Equal(t, "Bad Gateway", failureReason(http.StatusBadGateway, []byte("upstream died")))
	assert.Equal(t, "Internal Server Error", failureReason(http.StatusInternalServerError, nil))

	b := &bodyPrefix{max: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", string(b.buf))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestLoginThrottle(t *testing.T) {
	lt := NewLoginThrottle(0.001, 2)
	assert.True(t, lt.Allow("1.1.1.1"))
	assert.True(t, lt.Allow("1.1.1.1"))
	assert.False(t, lt.Allow("1.1.1.1"))
	assert.True(t, lt.Allow("2.2.2.2"))

	lt.sweep(time.Now().Add(time.Hour))
	assert.True(t, lt.Allow("1.1.1.1"), "idle entries are evicted")
}
