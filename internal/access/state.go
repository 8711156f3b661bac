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

// Package access runs the per-request access pipeline: credential
// resolution, tenant resolution, membership authorization, rate limiting
// and the plan gate, in that order.
package access

// State is a request's position in the pipeline
type State int

const (
	StateReceived State = iota
	StateAuthenticated
	StateTenantResolved
	StateAuthorized
	StateRateChecked
	StateQuotaChecked
	StateHandled
	StateAudited
	StateRejected
)

var stateNames = [...]string{
	StateReceived:       "received",
	StateAuthenticated:  "authenticated",
	StateTenantResolved: "tenant_resolved",
	StateAuthorized:     "authorized",
	StateRateChecked:    "rate_checked",
	StateQuotaChecked:   "quota_checked",
	StateHandled:        "handled",
	StateAudited:        "audited",
	StateRejected:       "rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateRejected || s == StateAudited
}

// Stage names used for spans, metrics and logs
const (
	StageAuthenticate = "authenticate"
	StageTenant       = "tenant"
	StageAuthorize    = "authorize"
	StageRateLimit    = "rate_limit"
	StagePlan         = "plan"
)
