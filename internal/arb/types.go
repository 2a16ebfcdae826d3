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

// Package arb implements CocoTable, the arbitration engine of spec §4.5: the part
// "where the real engineering lives." It owns per-resource priority-partitioned
// ordered lists of live request nodes, decides the winning request for every
// (resource, scope) pair, drives the side-effectful apply/tear actions, and
// enforces the policy/priority/scope invariants of spec §3.
package arb

import (
	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

// Handle is the unique, monotonic, non-zero Request identifier assigned on
// acceptance (spec §3). Handle 0 is never valid and is used as a "no handle"
// sentinel by callers that have not yet been assigned one.
type Handle int64

// Resource is one value-carrying assignment inside a Request (spec §3).
type Resource struct {
	Code     apiconfig.ResourceCode
	ScopeKey int // core/cluster/cgroup index; ignored for ScopeGlobal
	Value    apiconfig.Value
}

// Request is a time-bounded client assertion that one or more tunables should
// hold particular values (spec §3).
type Request struct {
	Handle    Handle
	ClientPID int
	ClientTID int

	Priority  apiconfig.PriorityClass
	// DurationMS is non-negative, or DurationInfinite.
	DurationMS      int64
	ModeGate        apiconfig.Mode
	UntuneDirection apiconfig.Direction
	Resources       []Resource

	// granted is the number of resources that actually received an ArbNode
	// (spec §4.5 insert: best-effort allocation under arena exhaustion).
	granted int
	// arbNodes holds one arena slot index per granted resource, in the order
	// the resources were granted; a resource skipped during Insert has no entry,
	// so each node's resourceIdx (not its position here) names its Resource.
	arbNodes []int
	// timerID is empty for infinite-duration requests.
	timerID string
}

// DurationInfinite is the sentinel duration meaning "never expires" (spec §3).
const DurationInfinite int64 = -1

// Granted reports how many of the request's resources currently hold an ArbNode.
func (r *Request) Granted() int { return r.granted }

// arbNode is one (Request, Resource) pair currently placed in the table (spec §3).
// Linkage is by arena index, not pointer, per the redesign note in spec §9: this
// removes raw-pointer aliasing and keeps removal O(1) with ownership contained in
// the arena.
type arbNode struct {
	prev, next int // arena indices into the ArbNode pool; -1 means "no neighbor"

	primaryIndex   int
	secondaryIndex int

	// requestSlot is the index of the owning Request inside the request arena;
	// resourceIdx selects which Resources[] entry this node corresponds to.
	requestSlot int
	resourceIdx int
}

const noIndex = -1
