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

package billing

import "sort"

// PlanName identifies a subscription tier
type PlanName string

const (
	PlanFree       PlanName = "free"
	PlanBasic      PlanName = "basic"
	PlanPro        PlanName = "pro"
	PlanEnterprise PlanName = "enterprise"
)

// Feature is a boolean capability switched on per plan
type Feature string

const (
	FeatureCustomBranding Feature = "custom_branding"
	FeatureAPIAccess      Feature = "api_access"
	FeatureEmailSupport   Feature = "email_support"
)

// Resource is a countable, quota-bound resource
type Resource string

const (
	ResourceMembers Resource = "members"
	ResourceClaims  Resource = "claims"
	ResourceAPIKeys Resource = "api_keys"
)

// Limit is a numeric ceiling. A nil Limit is unlimited.
type Limit = *int64

func limit(n int64) Limit { return &n }

// Limits are the numeric quotas of a plan
type Limits struct {
	MaxUsers           Limit `json:"max_users"`
	MaxClaimsPerMonth  Limit `json:"max_claims_per_month"`
	MaxAPIKeys         Limit `json:"max_api_keys"`
	StorageGB          Limit `json:"storage_gb"`
	RateLimitPerMinute int64 `json:"rate_limit_per_minute"`
}

// For returns the limit that applies to r.
func (l Limits) For(r Resource) Limit {
	switch r {
	case ResourceMembers:
		return l.MaxUsers
	case ResourceClaims:
		return l.MaxClaimsPerMonth
	case ResourceAPIKeys:
		return l.MaxAPIKeys
	default:
		return limit(0)
	}
}

// Plan is one entry of the catalog
type Plan struct {
	Name     PlanName         `json:"name"`
	Display  string           `json:"display_name"`
	Price    *int64           `json:"price"`
	Features map[Feature]bool `json:"features"`
	Limits   Limits           `json:"limits"`
}

// Enabled reports whether f is explicitly switched on.
func (p Plan) Enabled(f Feature) bool {
	return p.Features[f]
}

// Catalog maps plan names to plans. It must contain PlanFree.
type Catalog map[PlanName]Plan

// DefaultCatalog returns the built-in plans.
func DefaultCatalog() Catalog {
	return Catalog{
		PlanFree: {
			Name:    PlanFree,
			Display: "Free",
			Price:   limit(0),
			Features: map[Feature]bool{
				FeatureCustomBranding: false,
				FeatureAPIAccess:      false,
				FeatureEmailSupport:   false,
			},
			Limits: Limits{
				MaxUsers:           limit(2),
				MaxClaimsPerMonth:  limit(100),
				MaxAPIKeys:         limit(0),
				StorageGB:          limit(1),
				RateLimitPerMinute: 30,
			},
		},
		PlanBasic: {
			Name:    PlanBasic,
			Display: "Basic",
			Price:   limit(49),
			Features: map[Feature]bool{
				FeatureCustomBranding: true,
				FeatureAPIAccess:      false,
				FeatureEmailSupport:   true,
			},
			Limits: Limits{
				MaxUsers:           limit(5),
				MaxClaimsPerMonth:  limit(1000),
				MaxAPIKeys:         limit(0),
				StorageGB:          limit(10),
				RateLimitPerMinute: 60,
			},
		},
		PlanPro: {
			Name:    PlanPro,
			Display: "Pro",
			Price:   limit(149),
			Features: map[Feature]bool{
				FeatureCustomBranding: true,
				FeatureAPIAccess:      true,
				FeatureEmailSupport:   true,
			},
			Limits: Limits{
				MaxUsers:           limit(20),
				MaxClaimsPerMonth:  limit(10000),
				MaxAPIKeys:         limit(10),
				StorageGB:          limit(100),
				RateLimitPerMinute: 200,
			},
		},
		PlanEnterprise: {
			Name:    PlanEnterprise,
			Display: "Enterprise",
			Features: map[Feature]bool{
				FeatureCustomBranding: true,
				FeatureAPIAccess:      true,
				FeatureEmailSupport:   true,
			},
			Limits: Limits{
				RateLimitPerMinute: 1000,
			},
		},
	}
}

// Lookup returns the named plan, falling back to free for unknown names.
func (c Catalog) Lookup(name PlanName) Plan {
	if p, ok := c[name]; ok {
		return p
	}
	return c[PlanFree]
}

// Has reports whether name is a catalog plan.
func (c Catalog) Has(name PlanName) bool {
	_, ok := c[name]
	return ok
}

// List returns plans ordered from cheapest to custom-priced.
func (c Catalog) List() []Plan {
	out := make([]Plan, 0, len(c))
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Price, out[j].Price
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})
	return out
}
