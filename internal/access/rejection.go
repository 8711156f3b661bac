package access

import (
	"fmt"
	"net/http"
)

// Kind classifies a rejection
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindTenantMismatch  Kind = "tenant_mismatch"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// Status returns the HTTP status for k. Internal maps to 503 since it only
// arises from unreachable backing stores.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTenantMismatch, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// Rejection is the terminal outcome of a failed stage
type Rejection struct {
	Kind    Kind
	Status  int
	Stage   string
	Message string
	// Context is merged into the response body next to "message".
	Context map[string]any
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s at %s: %v", r.Kind, r.Stage, r.Err)
	}
	return fmt.Sprintf("%s at %s", r.Kind, r.Stage)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Body is the JSON response body
func (r *Rejection) Body() map[string]any {
	body := make(map[string]any, len(r.Context)+1)
	for k, v := range r.Context {
		body[k] = v
	}
	body["message"] = r.Message
	return body
}
