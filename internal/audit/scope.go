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

package audit

import (
	"context"
	"log/slog"

	"github.com/claimdesk/claimdesk/internal/observability/logger"
)

type scopeKey struct{}

// Scope collects what a handler knows about the audited resource. The
// audit middleware creates it before the handler runs and reads it after.
type Scope struct {
	ResourceID string
	Before     any
	After      any
}

// WithScope attaches a fresh scope to ctx
func WithScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// ScopeFrom returns the scope in ctx, or nil outside an audited route.
func ScopeFrom(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Track records the resource touched by the handler. It is a no-op when ctx
// carries no scope.
func Track(ctx context.Context, resourceID string, before, after any) {
	s := ScopeFrom(ctx)
	if s == nil {
		return
	}
	s.ResourceID = resourceID
	s.Before = before
	s.After = after
}

// Apply fills the resource, snapshot and diff columns of e.
func (s *Scope) Apply(ctx context.Context, e *Entry) {
	if s == nil {
		return
	}
	e.ResourceID = s.ResourceID

	before, err := Snapshot(s.Before)
	if err != nil {
		slog.WarnContext(ctx, "failed to snapshot audit values", logger.Component("audit"), logger.Error(err))
	}
	after, err := Snapshot(s.After)
	if err != nil {
		slog.WarnContext(ctx, "failed to snapshot audit values", logger.Component("audit"), logger.Error(err))
	}

	e.OldValues = marshalOrNil(before)
	e.NewValues = marshalOrNil(after)
	if before != nil && after != nil {
		e.Changes = marshalOrNil(Diff(before, after))
	}
}
