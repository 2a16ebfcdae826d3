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

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arena"
)

// Topology bounds the scope partitioning a CocoTable is built for: how many
// physical cores, clusters, and cgroups exist on the target (spec §3).
type Topology struct {
	CoreCount    int
	ClusterCount int
	CgroupCount  int
}

func (top Topology) scopeCount(scope apiconfig.Scope) int {
	switch scope {
	case apiconfig.ScopePerCore:
		return top.CoreCount
	case apiconfig.ScopePerCluster:
		return top.ClusterCount
	case apiconfig.ScopePerCgroup:
		return top.CgroupCount
	default:
		return 1
	}
}

// ResourceLookup is the slice of pkg/registry.Registry that CocoTable depends on;
// kept narrow so the engine's tests can supply a tiny fake instead of a full
// Registry.
type ResourceLookup interface {
	Lookup(code apiconfig.ResourceCode) (*apiconfig.ResourceConfig, bool)
	PrimaryIndex(code apiconfig.ResourceCode) (int, bool)
	TotalCount() int
	CodeAt(idx int) (apiconfig.ResourceCode, bool)
}

// TimerStarter is the slice of internal/timerpool.Pool that CocoTable depends on.
// Timer callbacks must only enqueue events (spec §9's redesign note); CocoTable
// supplies the per-request callback, the owner of the Request Queue supplies
// ExpiryNotify so that callback can reach the queue without CocoTable knowing
// the queue exists.
type TimerStarter interface {
	Start(durationMS int64, onFire func()) (timerID string, err error)
	Cancel(timerID string)
}

// Clock abstracts time.Now. NewTable stores it (defaulting to time.Now), but no
// CocoTable operation reads it; Update's duration check does not use it.
// Grounded on the teacher's timeNowFn injectable-clock pattern
// (pkg/scheduler/plugins/coscheduling/core/gang.go).
type Clock func() time.Time

// Config bundles the fixed parameters a CocoTable is constructed with.
type Config struct {
	Registry       ResourceLookup
	Topology       Topology
	Timers         TimerStarter
	ExpiryNotify   func(Handle)
	HookResolver   HookResolver
	Recorder       Recorder
	Clock          Clock
	MaxRequests    int
	MaxArbNodes    int
}

// CocoTable is the arbitration engine of spec §4.5. Every exported method here is
// invoked only by the single arbitration serializer goroutine (spec §5): the table
// itself holds no mutex, because the serializer is its only mutator.
type CocoTable struct {
	registry ResourceLookup
	topology Topology
	rows     []row

	// appliedPriority records, per (primaryIndex, scopeKey), the priority class
	// currently winning that slot (spec §3 invariants). Absence means UNSET.
	appliedPriority map[[2]int]apiconfig.PriorityClass

	requests *arena.Pool[Request]
	nodes    *arena.Pool[arbNode]

	// handleIndex maps a live Request's handle to its slot in the request arena.
	// Its presence is the "handle registry" spec §5 uses to make a racing EXPIRY
	// after an explicit REMOVE a harmless no-op.
	handleIndex map[Handle]int

	timers       TimerStarter
	expiryNotify func(Handle)
	hooks        HookResolver
	recorder     Recorder
	clock        Clock

	// lastMode is the most recently observed mode snapshot (spec §9's redesign
	// note: mode is snapshotted into INSERT/EXPIRY events at ingestion, not read
	// from shared state inside apply_action). REMOVE carries no snapshot of its
	// own, so apply_action calls triggered by removal reuse this cached value;
	// see DESIGN.md for why this is safe.
	lastMode apiconfig.Mode
}

// NewTable constructs a CocoTable sized for cfg.Topology and cfg.Registry's
// already-registered resources. The registry must not change after this call.
func NewTable(cfg Config) (*CocoTable, error) {
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	n := cfg.Registry.TotalCount()
	rows := make([]row, n)
	for i := 0; i < n; i++ {
		code, ok := cfg.Registry.CodeAt(i)
		if !ok {
			return nil, fmt.Errorf("arb: registry primary_index %d has no code", i)
		}
		rc, ok := cfg.Registry.Lookup(code)
		if !ok {
			return nil, fmt.Errorf("arb: registry code %d missing ResourceConfig", code)
		}
		rows[i] = newRow(rc.Scope, cfg.Topology.scopeCount(rc.Scope))
	}
	return &CocoTable{
		registry:        cfg.Registry,
		topology:        cfg.Topology,
		rows:            rows,
		appliedPriority: make(map[[2]int]apiconfig.PriorityClass),
		requests:        arena.NewPool[Request](cfg.MaxRequests),
		nodes:           arena.NewPool[arbNode](cfg.MaxArbNodes),
		handleIndex:     make(map[Handle]int),
		timers:          cfg.Timers,
		expiryNotify:    cfg.ExpiryNotify,
		hooks:           cfg.HookResolver,
		recorder:        cfg.Recorder,
		clock:           cfg.Clock,
	}, nil
}

func (t *CocoTable) requestValueFor(n *arbNode) apiconfig.Value {
	req := t.requests.SlotAt(n.requestSlot).Value()
	return req.Resources[n.resourceIdx].Value
}

// Insert places a new request into the table (spec §4.5 insert). modeSnapshot is
// the mode captured when the INSERT event entered the queue, per the redesign
// note in spec §9.
func (t *CocoTable) Insert(req Request, modeSnapshot apiconfig.Mode) (Handle, error) {
	if req.Handle == 0 {
		return 0, fmt.Errorf("%w: zero handle", ErrInvalidArgument)
	}
	if _, exists := t.handleIndex[req.Handle]; exists {
		return 0, fmt.Errorf("%w: handle %d already live", ErrInvalidArgument, req.Handle)
	}
	if len(req.Resources) == 0 {
		return 0, fmt.Errorf("%w: request has no resources", ErrInvalidArgument)
	}
	if req.DurationMS < 0 && req.DurationMS != DurationInfinite {
		return 0, fmt.Errorf("%w: negative finite duration", ErrInvalidArgument)
	}

	t.lastMode = modeSnapshot

	reqSlot, err := t.requests.Acquire()
	if err != nil {
		t.recorder.ObserveDropped("request_arena_exhausted")
		return 0, fmt.Errorf("%w: request arena", ErrCapacityExhausted)
	}
	*reqSlot.Value() = req
	reqSlot.Value().arbNodes = make([]int, 0, len(req.Resources))
	reqSlot.Value().granted = 0

	t.handleIndex[req.Handle] = reqSlot.Index()

	for i, res := range req.Resources {
		rc, ok := t.registry.Lookup(res.Code)
		if !ok {
			klog.V(2).InfoS("arb: dropping unknown resource in request", "handle", req.Handle, "code", res.Code)
			continue
		}
		primaryIndex, ok := t.registry.PrimaryIndex(res.Code)
		if !ok {
			continue
		}
		scopeKey := res.ScopeKey
		if rc.Scope == apiconfig.ScopeGlobal {
			scopeKey = 0
		}
		secIdx := secondaryIndex(scopeKey, req.Priority)
		if secIdx < 0 || secIdx >= len(t.rows[primaryIndex].slots) {
			klog.V(2).InfoS("arb: scope key out of range, dropping resource", "handle", req.Handle, "code", res.Code, "scopeKey", scopeKey)
			continue
		}

		nodeSlot, err := t.nodes.Acquire()
		if err != nil {
			// Best-effort partial grant (spec §4.5): stop granting further
			// resources, keep what we have.
			break
		}
		n := nodeSlot.Value()
		n.requestSlot = reqSlot.Index()
		n.resourceIdx = i

		becameHead := t.insertNode(primaryIndex, secIdx, nodeSlot.Index(), rc.Policy, comparatorValue(res.Value))
		reqSlot.Value().arbNodes = append(reqSlot.Value().arbNodes, nodeSlot.Index())
		reqSlot.Value().granted++

		if becameHead {
			t.applyAction(primaryIndex, scopeKey, req.Priority, rc, res.Value)
		}
	}

	granted := reqSlot.Value().granted
	t.recorder.ObserveGranted(req.Resources[0].Code, granted, len(req.Resources))

	if granted == 0 {
		t.freeRequest(req.Handle, reqSlot.Index())
		return 0, fmt.Errorf("%w: no resources granted", ErrCapacityExhausted)
	}

	if req.DurationMS != DurationInfinite {
		handle := req.Handle
		timerID, err := t.timers.Start(req.DurationMS, func() { t.expiryNotify(handle) })
		if err != nil {
			// Timer failure post-placement: remove immediately as if expired
			// (spec §4.5 Failure semantics).
			t.Remove(handle)
			return 0, fmt.Errorf("%w: timer allocation failed", ErrCapacityExhausted)
		}
		reqSlot.Value().timerID = timerID
	}

	return req.Handle, nil
}

// Update extends a live request's timer (spec §4.5 update). The new duration must
// be >= the request's current declared duration (DurationMS); it is compared with
// that full duration, not with the time left on the running timer. UPDATE with
// the infinite sentinel after a finite duration is always accepted, per the Open
// Question decision recorded in DESIGN.md.
func (t *CocoTable) Update(handle Handle, newDurationMS int64) error {
	slotIdx, ok := t.handleIndex[handle]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	req := t.requests.SlotAt(slotIdx).Value()

	if req.DurationMS != DurationInfinite && newDurationMS != DurationInfinite && newDurationMS < req.DurationMS {
		return fmt.Errorf("%w: new duration %d shorter than current %d", ErrPolicyViolation, newDurationMS, req.DurationMS)
	}
	if req.DurationMS == DurationInfinite && newDurationMS != DurationInfinite {
		return fmt.Errorf("%w: cannot shorten an infinite-duration request", ErrPolicyViolation)
	}

	if req.timerID != "" {
		t.timers.Cancel(req.timerID)
		req.timerID = ""
	}
	req.DurationMS = newDurationMS
	if newDurationMS != DurationInfinite {
		timerID, err := t.timers.Start(newDurationMS, func() { t.expiryNotify(handle) })
		if err != nil {
			return fmt.Errorf("%w: timer allocation failed", ErrCapacityExhausted)
		}
		req.timerID = timerID
	}
	return nil
}

// Remove tears down a live request's granted resources (spec §4.5 remove) and
// returns it to the arena. Idempotent: removing an already-gone handle is a
// harmless no-op, which is what makes a racing EXPIRY-after-explicit-REMOVE safe.
func (t *CocoTable) Remove(handle Handle) error {
	slotIdx, ok := t.handleIndex[handle]
	if !ok {
		return nil
	}
	reqSlot := t.requests.SlotAt(slotIdx)
	req := reqSlot.Value()

	if req.timerID != "" {
		t.timers.Cancel(req.timerID)
		req.timerID = ""
	}

	order := make([]int, len(req.arbNodes))
	copy(order, req.arbNodes)
	if req.UntuneDirection == apiconfig.DirectionReverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for _, nodeIdx := range order {
		n := t.node(nodeIdx)
		primaryIndex, secIdx := n.primaryIndex, n.secondaryIndex
		scopeKey := secIdx / apiconfig.NumPriorityClasses

		becameEmpty, wasHead := t.unlinkNode(nodeIdx)

		code, _ := t.registry.CodeAt(primaryIndex)
		rc, _ := t.registry.Lookup(code)

		if becameEmpty {
			t.fallBackOrTear(primaryIndex, scopeKey, rc)
		} else if wasHead {
			newHeadIdx := t.rows[primaryIndex].slots[secIdx].head
			newHead := t.node(newHeadIdx)
			priority := apiconfig.PriorityClass(secIdx % apiconfig.NumPriorityClasses)
			t.applyAction(primaryIndex, scopeKey, priority, rc, t.requestValueFor(newHead))
		}
		// interior node removed: applied value unchanged, no action.

		if err := t.nodes.Release(t.nodes.SlotAt(nodeIdx)); err != nil {
			klog.ErrorS(err, "arb: failed to release arbNode slot", "handle", handle)
		}
	}

	t.freeRequest(handle, slotIdx)
	return nil
}

// fallBackOrTear scans priority classes SYSTEM_HIGH downward for the first
// non-empty list at (primaryIndex, scopeKey); if one exists its head becomes the
// applied value, otherwise tear_action restores the default (spec §4.5 step 3).
func (t *CocoTable) fallBackOrTear(primaryIndex, scopeKey int, rc *apiconfig.ResourceConfig) {
	for p := apiconfig.PrioritySystemHigh; p <= apiconfig.PriorityThirdPartyLow; p++ {
		secIdx := secondaryIndex(scopeKey, p)
		s := t.rows[primaryIndex].slots[secIdx]
		if s.head != noIndex {
			// The emptied list may have held the winning priority; clear it so the
			// fallback head is not refused by the stale, more-preferred class.
			delete(t.appliedPriority, [2]int{primaryIndex, scopeKey})
			t.applyAction(primaryIndex, scopeKey, p, rc, t.requestValueFor(t.node(s.head)))
			return
		}
	}
	t.tearAction(primaryIndex, scopeKey, rc)
}

func (t *CocoTable) freeRequest(handle Handle, slotIdx int) {
	delete(t.handleIndex, handle)
	if err := t.requests.Release(t.requests.SlotAt(slotIdx)); err != nil {
		klog.ErrorS(err, "arb: failed to release request slot", "handle", handle)
	}
}

// applyAction drives the side-effectful write for the winning request of a
// (resource, scope) pair, subject to the priority and mode gating of spec §4.5.
func (t *CocoTable) applyAction(primaryIndex, scopeKey int, priority apiconfig.PriorityClass, rc *apiconfig.ResourceConfig, value apiconfig.Value) {
	key := [2]int{primaryIndex, scopeKey}
	cur, isSet := t.appliedPriority[key]
	if isSet && !(priority.MorePreferredThan(cur) || priority == cur) {
		return
	}
	if !t.lastMode.Intersects(rc.ModeMask) {
		return
	}

	hook := t.hooks.Resolve(rc.Code)
	if err := hook.Apply(rc, value); err != nil {
		klog.ErrorS(err, "arb: default-write failed, arbitration state unchanged", "resource", rc.Name)
		t.recorder.ObserveApply(rc.Code, false)
		return
	}
	t.recorder.ObserveApply(rc.Code, true)
	t.appliedPriority[key] = priority
}

// tearAction restores a (resource, scope) pair's default value once every live
// list for it has emptied (spec §4.5 step 3 / §4.1 ResourceConfig.tear).
func (t *CocoTable) tearAction(primaryIndex, scopeKey int, rc *apiconfig.ResourceConfig) {
	hook := t.hooks.Resolve(rc.Code)
	if err := hook.Tear(rc); err != nil {
		klog.ErrorS(err, "arb: tear failed", "resource", rc.Name)
	}
	delete(t.appliedPriority, [2]int{primaryIndex, scopeKey})
}

// AppliedPriority exposes current_applied_priority[primaryIndex, scopeKey] for
// tests and introspection; apiconfig.PriorityUnset means no live winner.
func (t *CocoTable) AppliedPriority(primaryIndex, scopeKey int) apiconfig.PriorityClass {
	if p, ok := t.appliedPriority[[2]int{primaryIndex, scopeKey}]; ok {
		return p
	}
	return apiconfig.PriorityUnset
}

// Live reports whether handle currently has a live request in the table.
func (t *CocoTable) Live(handle Handle) bool {
	_, ok := t.handleIndex[handle]
	return ok
}

// Granted returns the number of resources actually granted to a live request, or
// (0, false) if the handle is unknown.
func (t *CocoTable) Granted(handle Handle) (int, bool) {
	idx, ok := t.handleIndex[handle]
	if !ok {
		return 0, false
	}
	return t.requests.SlotAt(idx).Value().granted, true
}

// LiveHandles returns every handle currently live in the table, for the mode
// controller's SUSPEND scan (spec §4.6).
func (t *CocoTable) LiveHandles() []Handle {
	handles := make([]Handle, 0, len(t.handleIndex))
	for h := range t.handleIndex {
		handles = append(handles, h)
	}
	return handles
}

// RequestFor returns a copy of the live request behind handle, if any. A copy
// is returned (not a pointer into the arena) so the mode controller can park it
// in pending_list after the underlying slot is released by Remove.
func (t *CocoTable) RequestFor(handle Handle) (Request, bool) {
	idx, ok := t.handleIndex[handle]
	if !ok {
		return Request{}, false
	}
	return *t.requests.SlotAt(idx).Value(), true
}

// SetModeSnapshot updates the cached mode used by apply_action decisions
// triggered by REMOVE (which carries no mode of its own); tear_action is not
// mode-gated. The mode
// controller calls this before parking requests on a SUSPEND transition, so a
// fallback to the next-priority head during the scan is gated against the mode
// that is about to take effect, not the stale one from the last INSERT.
func (t *CocoTable) SetModeSnapshot(mode apiconfig.Mode) {
	t.lastMode = mode
}
