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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

const redacted = "[REDACTED]"

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// fields that match a marker but are safe to keep
var notSecret = map[string]bool{
	"key_prefix": true,
	"api_key_id": true,
}

// isSecret checks if a field name likely holds a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	if notSecret[k] {
		return false
	}
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Snapshot converts v to its JSON object form with secret fields redacted.
// A nil v yields a nil map.
func Snapshot(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"value": redactValue(decodeAny(raw))}, nil
	}
	redactMap(m)
	return m, nil
}

func decodeAny(raw []byte) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func redactMap(m map[string]any) {
	for k, v := range m {
		if isSecret(k) {
			m[k] = redacted
			continue
		}
		m[k] = redactValue(v)
	}
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		redactMap(t)
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	default:
		return v
	}
}

// Change is one field's transition
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff returns the top-level fields that differ between two snapshots.
func Diff(before, after map[string]any) map[string]Change {
	changes := make(map[string]Change)
	for k, nv := range after {
		ov, ok := before[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			changes[k] = Change{Old: ov, New: nv}
		}
	}
	for k, ov := range before {
		if _, ok := after[k]; !ok {
			changes[k] = Change{Old: ov, New: nil}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

func marshalOrNil(v any) json.RawMessage {
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Map && reflect.ValueOf(v).Len() == 0) {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
