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

// Package registry is the Resource Registry of spec §4.1: an immutable-after-init
// catalog mapping resource_code to ResourceConfig and to a primary_index usable as
// a row in the arbitration table. Shaped after the teacher's gang cache
// (github.com/koordinator-sh/koordinator pkg/scheduler/plugins/coscheduling/core
// GangCache): a constructor, an RWMutex-guarded map, and small lookup/mutator
// methods — but keyed by resource identity instead of pod-group name, and with a
// one-way "started" latch instead of a cache lifecycle.
package registry

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"k8s.io/klog/v2"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

// HookFunc performs the side-effecting write (or teardown) for one resource. It is
// the dispatch-table counterpart of the tagged {DefaultWrite, CustomHook} variant
// in spec §9: ResourceConfig only carries a Hook name, the registry resolves it to
// a callable bound via AttachHooks.
type HookFunc func(resource apiconfig.ResourceCode, value apiconfig.Value) error

// Registry is the O(1) lookup table from resource_code to ResourceConfig and
// primary_index. Populated once at startup; immutable thereafter except for late
// hook binding, which AttachHooks refuses once the registry is marked started.
type Registry struct {
	mu sync.RWMutex

	byCode  map[apiconfig.ResourceCode]*apiconfig.ResourceConfig
	index   map[apiconfig.ResourceCode]int
	order   []apiconfig.ResourceCode
	typeID  map[[2]int]apiconfig.ResourceCode // (resType, resID) -> non-vendor code, for overwrite detection

	appliers map[apiconfig.Hook]HookFunc
	tears    map[apiconfig.Hook]HookFunc

	started bool

	validate *validator.Validate
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byCode:   make(map[apiconfig.ResourceCode]*apiconfig.ResourceConfig),
		index:    make(map[apiconfig.ResourceCode]int),
		typeID:   make(map[[2]int]apiconfig.ResourceCode),
		appliers: make(map[apiconfig.Hook]HookFunc),
		tears:    make(map[apiconfig.Hook]HookFunc),
		validate: validator.New(),
	}
}

// Register adds or overwrites a ResourceConfig. Per spec §4.1: if two
// registrations share (res_type, res_id) and neither is vendor-flagged, the later
// overwrites the earlier in place (same primary_index); if one is vendor-flagged,
// both coexist under distinct codes. Malformed entries are rejected outright.
func (r *Registry) Register(rc apiconfig.ResourceConfig) error {
	if err := r.validate.Struct(&rc); err != nil {
		return fmt.Errorf("registry: validation failed for %q: %w", rc.Name, err)
	}
	if err := rc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]int{rc.Code.ResType(), rc.Code.ResID()}
	if !rc.Code.IsVendor() {
		if existing, ok := r.typeID[key]; ok && existing != rc.Code {
			// Same (res_type, res_id) under a different code value but neither
			// vendor-flagged: the spec only distinguishes by (res_type, res_id),
			// so fold this registration onto the existing slot.
			delete(r.byCode, existing)
			idx := r.index[existing]
			delete(r.index, existing)
			r.order[idx] = rc.Code
			r.index[rc.Code] = idx
			r.byCode[rc.Code] = &rc
			r.typeID[key] = rc.Code
			klog.V(4).InfoS("registry: overwrote non-vendor resource", "name", rc.Name, "code", rc.Code)
			return nil
		}
		r.typeID[key] = rc.Code
	}

	if existing, ok := r.byCode[rc.Code]; ok {
		*existing = rc
		return nil
	}

	r.byCode[rc.Code] = &rc
	r.index[rc.Code] = len(r.order)
	r.order = append(r.order, rc.Code)
	return nil
}

// Lookup returns the ResourceConfig for code, if registered.
func (r *Registry) Lookup(code apiconfig.ResourceCode) (*apiconfig.ResourceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.byCode[code]
	return rc, ok
}

// PrimaryIndex returns code's row in the arbitration table.
func (r *Registry) PrimaryIndex(code apiconfig.ResourceCode) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[code]
	return idx, ok
}

// TotalCount returns the number of distinct resource codes registered.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CodeAt returns the resource code occupying a given primary_index, for
// introspection/debug rendering.
func (r *Registry) CodeAt(idx int) (apiconfig.ResourceCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.order) {
		return 0, false
	}
	return r.order[idx], true
}

// MarkStarted latches the registry so AttachHooks refuses further calls. Called
// once by cmd/cocotabled's app.Run after registration, before the table is built.
func (r *Registry) MarkStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// AttachHooks binds the applier/tear callables named on a resource's
// ApplierHook/TearHook fields. Only legal before arbitration starts (spec §4.1).
func (r *Registry) AttachHooks(name apiconfig.Hook, applier, tear HookFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("registry: cannot attach hook %q after arbitration has started", name)
	}
	if applier != nil {
		r.appliers[name] = applier
	}
	if tear != nil {
		r.tears[name] = tear
	}
	return nil
}

// ResolveApplier returns the bound applier for a hook name, if any.
func (r *Registry) ResolveApplier(name apiconfig.Hook) (HookFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.appliers[name]
	return fn, ok
}

// ResolveTear returns the bound tear hook for a hook name, if any.
func (r *Registry) ResolveTear(name apiconfig.Hook) (HookFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tears[name]
	return fn, ok
}
