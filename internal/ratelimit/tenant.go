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

package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// PublicSlug buckets requests that carry no tenant.
const PublicSlug = "public"

// TenantSlug picks the tenant bucket for a request: the resolved tenant, then
// the x-tenant or x-tenant-slug header, then the first label of a host with
// at least three labels (except www), then PublicSlug.
func TenantSlug(resolved string, h http.Header, host string) string {
	if resolved != "" {
		return resolved
	}
	for _, name := range []string{"X-Tenant", "X-Tenant-Slug"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return strings.ToLower(v)
		}
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	if net.ParseIP(host) == nil {
		labels := strings.Split(host, ".")
		if len(labels) >= 3 && labels[0] != "" && !strings.EqualFold(labels[0], "www") {
			return strings.ToLower(labels[0])
		}
	}
	return PublicSlug
}
