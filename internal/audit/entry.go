package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Action is the CRUD verb recorded for a mutation
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Status is the outcome of the audited request
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Resource types
const (
	ResourceTenant       = "tenant"
	ResourceMembership   = "membership"
	ResourceAPIKey       = "api_key"
	ResourceSubscription = "subscription"
	ResourceClaim        = "claim"
)

// Entry is one append-only audit row
type Entry struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	APIKeyID     string          `json:"api_key_id,omitempty"`
	Action       Action          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	OldValues    json.RawMessage `json:"old_values,omitempty"`
	NewValues    json.RawMessage `json:"new_values,omitempty"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Status       Status          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter narrows a List call. TenantID is mandatory.
type Filter struct {
	TenantID     string
	Action       Action
	ResourceType string
	Limit        int
	Offset       int
}

// Repository is the append-only audit store.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
}
