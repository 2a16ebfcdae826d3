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

// ResourceHook is the seam CocoTable calls through for apply_action/tear_action
// (spec §4.5). CocoTable asks its HookResolver for the ResourceHook on every
// apply_action and tear_action call; the engine never knows which concrete
// writer it gets.
//
// This interface (rather than two free functions) exists so the engine's test
// suite can substitute a hand-written double (fakeHook in table_test.go) without
// touching any filesystem, matching spec §4.5's requirement that arena exhaustion
// and default-write failure never perturb arbitration state.
type ResourceHook interface {
	// Apply performs the side-effecting write of value for rc. Called only when
	// apply_action's priority/mode gating (spec §4.5) has already passed.
	Apply(rc *apiconfig.ResourceConfig, value apiconfig.Value) error
	// Tear restores rc's recorded default value. Called when the last live
	// request for a (resource, scope) is removed.
	Tear(rc *apiconfig.ResourceConfig) error
}

// HookResolver resolves a resource code to the ResourceHook that should apply and
// tear its value. CocoTable depends only on this narrow interface. The resolver
// cmd/cocotabled wires returns internal/apply.SysfsHook for every code; it does
// not consult the custom hooks bound in pkg/registry.
type HookResolver interface {
	Resolve(code apiconfig.ResourceCode) ResourceHook
}

// HookResolverFunc adapts a plain function to a HookResolver.
type HookResolverFunc func(code apiconfig.ResourceCode) ResourceHook

// Resolve implements HookResolver.
func (f HookResolverFunc) Resolve(code apiconfig.ResourceCode) ResourceHook { return f(code) }

// Recorder is the narrow interface CocoTable uses to report arbitration outcomes.
// Per spec §1, metrics are an external collaborator the core reaches only through
// an interface; pkg/metrics supplies the one concrete (Prometheus-backed)
// implementation wired by cmd/cocotabled.
type Recorder interface {
	ObserveGranted(code apiconfig.ResourceCode, granted, total int)
	ObserveDropped(reason string)
	ObserveApply(code apiconfig.ResourceCode, success bool)
}

// NopRecorder discards every observation; used when the caller wires no metrics
// backend.
type NopRecorder struct{}

func (NopRecorder) ObserveGranted(apiconfig.ResourceCode, int, int) {}
func (NopRecorder) ObserveDropped(string)                           {}
func (NopRecorder) ObserveApply(apiconfig.ResourceCode, bool)       {}
