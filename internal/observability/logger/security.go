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

package logger

import (
	"context"
	"log/slog"
)

// Result values for security events
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// SecurityEvent is a security-relevant occurrence that is logged but not
// persisted to the audit trail.
type SecurityEvent struct {
	EventType  string
	TenantSlug string
	Plan       string
	UserID     string
	APIKeyID   string
	IPAddress  string
	Action     string
	Resource   string
	Result     string
	Reason     string
	Metadata   map[string]any
}

// SecurityLogger writes security events through slog
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger. A nil logger uses slog.Default.
func NewSecurityLogger(l *slog.Logger) *SecurityLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SecurityLogger{
		logger: l.With(Component("security")),
	}
}

// Log logs a security event
func (s *SecurityLogger) Log(ctx context.Context, event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.String("action", event.Action),
		slog.String("result", event.Result),
	}

	if event.TenantSlug != "" {
		attrs = append(attrs, TenantSlug(event.TenantSlug))
	}
	if event.Plan != "" {
		attrs = append(attrs, Plan(event.Plan))
	}
	if event.UserID != "" {
		attrs = append(attrs, UserID(event.UserID))
	}
	if event.APIKeyID != "" {
		attrs = append(attrs, APIKeyID(event.APIKeyID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, ClientIP(event.IPAddress))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	level := slog.LevelInfo
	if event.Result == ResultDenied {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "security_event", attrs...)
}

// Authentication events
func (s *SecurityLogger) LoginSuccess(ctx context.Context, userID, ipAddr string) {
	s.Log(ctx, SecurityEvent{
		EventType: "authentication",
		UserID:    userID,
		IPAddress: ipAddr,
		Action:    "login",
		Result:    ResultSuccess,
	})
}

func (s *SecurityLogger) LoginFailure(ctx context.Context, email, ipAddr, reason string) {
	s.Log(ctx, SecurityEvent{
		EventType: "authentication",
		IPAddress: ipAddr,
		Action:    "login",
		Result:    ResultFailure,
		Reason:    reason,
		Metadata:  map[string]any{"email": email},
	})
}

// AccessDenied records a pipeline rejection.
func (s *SecurityLogger) AccessDenied(ctx context.Context, event SecurityEvent) {
	event.EventType = "access_control"
	event.Action = "access"
	event.Result = ResultDenied
	s.Log(ctx, event)
}

// API key lifecycle events
func (s *SecurityLogger) APIKeyChanged(ctx context.Context, tenantSlug, actorID, keyID, action string) {
	s.Log(ctx, SecurityEvent{
		EventType:  "api_key",
		TenantSlug: tenantSlug,
		UserID:     actorID,
		APIKeyID:   keyID,
		Action:     action,
		Result:     ResultSuccess,
	})
}
