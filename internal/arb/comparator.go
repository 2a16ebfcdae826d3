/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package arb

import apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"

// comparatorValue extracts the scalar CocoTable orders a slot on. Per spec §9's
// flagged Open Question, multi-valued resources are compared on array index 1 (the
// second element), not index 0; the spec preserves this rather than guessing it
// was a bug, and so do we (see DESIGN.md).
func comparatorValue(v apiconfig.Value) int64 {
	if !v.IsArray {
		return v.Single
	}
	if val, ok := v.At(1); ok {
		return val
	}
	if val, ok := v.At(0); ok {
		return val
	}
	return 0
}

// insertsBefore reports whether a newly inserted value belonging to policy p
// should be placed ahead of an existing node's value, per spec §4.5 step 2:
//   - HIGHER_BETTER: insert before the first strictly-lesser value (descending).
//   - LOWER_BETTER: insert before the first strictly-greater value (ascending).
// LAZY_APPLY and INSTANT_APPLY never consult the comparator (handled by their own
// always-append / always-prepend rule in the caller).
func insertsBefore(p apiconfig.Policy, newValue, existingValue int64) bool {
	switch p {
	case apiconfig.PolicyHigherBetter:
		return existingValue < newValue
	case apiconfig.PolicyLowerBetter:
		return existingValue > newValue
	default:
		return false
	}
}
