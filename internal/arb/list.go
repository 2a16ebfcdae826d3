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

// slot is one doubly linked list's head/tail, addressed by arena index into the
// ArbNode pool (spec §3 PerResourceSlot). -1 (noIndex) means empty.
type slot struct {
	head, tail int
}

// row is all the per-scope, per-priority slots for one registered resource (spec
// §3: "GLOBAL resources have 4 slots; PER_CORE have 4*core_count; ..."). slots is
// indexed by secondaryIndex = scope_key*NumPriorityClasses + priority.
type row struct {
	scope apiconfig.Scope
	slots []slot
}

func newRow(scope apiconfig.Scope, scopeCount int) row {
	slots := make([]slot, scopeCount*apiconfig.NumPriorityClasses)
	for i := range slots {
		slots[i] = slot{head: noIndex, tail: noIndex}
	}
	return row{scope: scope, slots: slots}
}

// secondaryIndex implements spec §3's PerResourceSlot addressing: "secondary_index
// for priority p and scope key k is k*4 + p".
func secondaryIndex(scopeKey int, priority apiconfig.PriorityClass) int {
	return scopeKey*apiconfig.NumPriorityClasses + int(priority)
}

// node returns the arbNode stored at arena index idx.
func (t *CocoTable) node(idx int) *arbNode {
	return t.nodes.SlotAt(idx).Value()
}

// insertNode places nodeIdx into rows[primaryIndex].slots[secondaryIndex]
// according to policy, implementing spec §4.5 step 2 verbatim:
//   - HIGHER_BETTER: insert before the first strictly-lesser comparator value,
//     else append at tail (list ends up non-increasing head-to-tail).
//   - LOWER_BETTER: insert before the first strictly-greater value (non-decreasing).
//   - LAZY_APPLY: always append at tail (head-to-tail is insertion order).
//   - INSTANT_APPLY: always prepend at head (head-to-tail is reverse insertion
//     order).
//
// Returns whether nodeIdx became the new head.
func (t *CocoTable) insertNode(primaryIndex, secondaryIndex int, nodeIdx int, policy apiconfig.Policy, newValue int64) bool {
	s := &t.rows[primaryIndex].slots[secondaryIndex]
	n := t.node(nodeIdx)
	n.primaryIndex, n.secondaryIndex = primaryIndex, secondaryIndex
	n.prev, n.next = noIndex, noIndex

	if s.head == noIndex {
		s.head, s.tail = nodeIdx, nodeIdx
		return true
	}

	switch policy {
	case apiconfig.PolicyLazyApply:
		t.linkAfter(s, s.tail, nodeIdx)
		return false
	case apiconfig.PolicyInstantApply:
		t.linkBefore(s, s.head, nodeIdx)
		return true
	default: // HIGHER_BETTER / LOWER_BETTER
		cur := s.head
		for cur != noIndex {
			curNode := t.node(cur)
			curValue := comparatorValue(t.requestValueFor(curNode))
			if insertsBefore(policy, newValue, curValue) {
				wasAnchorHead := cur == s.head
				t.linkBefore(s, cur, nodeIdx)
				return wasAnchorHead
			}
			cur = curNode.next
		}
		t.linkAfter(s, s.tail, nodeIdx)
		return false
	}
}

func (t *CocoTable) linkBefore(s *slot, anchor, nodeIdx int) {
	n := t.node(nodeIdx)
	a := t.node(anchor)
	n.prev, n.next = a.prev, anchor
	if a.prev != noIndex {
		t.node(a.prev).next = nodeIdx
	} else {
		s.head = nodeIdx
	}
	a.prev = nodeIdx
}

func (t *CocoTable) linkAfter(s *slot, anchor, nodeIdx int) {
	n := t.node(nodeIdx)
	a := t.node(anchor)
	n.prev, n.next = anchor, a.next
	if a.next != noIndex {
		t.node(a.next).prev = nodeIdx
	} else {
		s.tail = nodeIdx
	}
	a.next = nodeIdx
}

// unlinkNode removes nodeIdx from its slot, returning whether the slot is now
// empty and whether nodeIdx had been the head.
func (t *CocoTable) unlinkNode(nodeIdx int) (becameEmpty, wasHead bool) {
	n := t.node(nodeIdx)
	s := &t.rows[n.primaryIndex].slots[n.secondaryIndex]
	wasHead = s.head == nodeIdx

	if n.prev != noIndex {
		t.node(n.prev).next = n.next
	} else {
		s.head = n.next
	}
	if n.next != noIndex {
		t.node(n.next).prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev, n.next = noIndex, noIndex
	becameEmpty = s.head == noIndex
	return becameEmpty, wasHead
}
