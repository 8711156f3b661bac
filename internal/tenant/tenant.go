package tenant

import (
	"regexp"
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
)

// Tenant is an isolated organization on the platform
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Locale    string    `json:"locale"`
	Branding  Branding  `json:"branding"`
	Contact   Contact   `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Branding is the tenant's public look
type Branding struct {
	LogoURL        string `json:"logo_url,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// Contact holds the tenant's public contact details
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Membership binds a user to a tenant with one role
type Membership struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	Role      authz.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// Member is a membership joined with the user's public fields
type Member struct {
	Membership
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// UserTenant is a membership seen from the user's side
type UserTenant struct {
	TenantID   string     `json:"tenant_id"`
	TenantSlug string     `json:"tenant_slug"`
	TenantName string     `json:"tenant_name"`
	Role       authz.Role `json:"role"`
}

// DefaultLocale is used when a tenant is created without one.
const DefaultLocale = "es"

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// reserved slugs collide with rate-limit fallbacks or host labels
var reservedSlugs = map[string]bool{
	"www":    true,
	"api":    true,
	"public": true,
}

// ValidSlug reports whether s can be used as a tenant slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s) && !reservedSlugs[s]
}
