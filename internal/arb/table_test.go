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
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

const testCode apiconfig.ResourceCode = 0x00010001

type fakeLookup struct {
	rc *apiconfig.ResourceConfig
}

func (f *fakeLookup) Lookup(code apiconfig.ResourceCode) (*apiconfig.ResourceConfig, bool) {
	if code != testCode {
		return nil, false
	}
	return f.rc, true
}
func (f *fakeLookup) PrimaryIndex(code apiconfig.ResourceCode) (int, bool) {
	if code != testCode {
		return 0, false
	}
	return 0, true
}
func (f *fakeLookup) TotalCount() int { return 1 }
func (f *fakeLookup) CodeAt(idx int) (apiconfig.ResourceCode, bool) {
	if idx != 0 {
		return 0, false
	}
	return testCode, true
}

type fakeTimers struct {
	nextID int
	live   map[string]func()
}

func newFakeTimers() *fakeTimers { return &fakeTimers{live: make(map[string]func())} }

func (f *fakeTimers) Start(durationMS int64, onFire func()) (string, error) {
	f.nextID++
	id := string(rune('a' + f.nextID))
	f.live[id] = onFire
	return id, nil
}
func (f *fakeTimers) Cancel(timerID string) { delete(f.live, timerID) }
func (f *fakeTimers) fire(id string) {
	if cb, ok := f.live[id]; ok {
		cb()
	}
}

type fakeHook struct {
	applied map[apiconfig.ResourceCode]apiconfig.Value
	torn    map[apiconfig.ResourceCode]bool
	applyErr error
}

func newFakeHook() *fakeHook {
	return &fakeHook{applied: make(map[apiconfig.ResourceCode]apiconfig.Value), torn: make(map[apiconfig.ResourceCode]bool)}
}
func (h *fakeHook) Apply(rc *apiconfig.ResourceConfig, v apiconfig.Value) error {
	if h.applyErr != nil {
		return h.applyErr
	}
	h.applied[rc.Code] = v
	return nil
}
func (h *fakeHook) Tear(rc *apiconfig.ResourceConfig) error {
	h.torn[rc.Code] = true
	delete(h.applied, rc.Code)
	return nil
}

func newTestTable(t *testing.T, policy apiconfig.Policy, scope apiconfig.Scope) (*CocoTable, *fakeHook, *fakeTimers) {
	t.Helper()
	rc := &apiconfig.ResourceConfig{
		Code: testCode, Name: "test.knob", Path: "/sys/test/knob",
		Policy: policy, Scope: scope, LowBound: 0, HighBound: 100,
	}
	hook := newFakeHook()
	timers := newFakeTimers()
	tbl, err := NewTable(Config{
		Registry:     &fakeLookup{rc: rc},
		Topology:     Topology{CoreCount: 4, ClusterCount: 2, CgroupCount: 2},
		Timers:       timers,
		ExpiryNotify: func(Handle) {},
		HookResolver: HookResolverFunc(func(apiconfig.ResourceCode) ResourceHook { return hook }),
		MaxRequests:  32,
		MaxArbNodes:  32,
	})
	require.NoError(t, err)
	return tbl, hook, timers
}

func req(handle Handle, priority apiconfig.PriorityClass, value int64, durationMS int64) Request {
	return Request{
		Handle:     handle,
		Priority:   priority,
		DurationMS: durationMS,
		Resources:  []Resource{{Code: testCode, Value: apiconfig.Value{Single: value}}},
	}
}

func TestInsertSingleGrantsAndApplies(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	h, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, Handle(1), h)
	assert.Equal(t, int64(50), hook.applied[testCode].Single)
}

func TestHigherBetterPicksLargestWithinSamePriority(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 30, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	_, err = tbl.Insert(req(2, apiconfig.PrioritySystemHigh, 70, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, int64(70), hook.applied[testCode].Single)

	require.NoError(t, tbl.Remove(2))
	assert.Equal(t, int64(30), hook.applied[testCode].Single, "falls back to the remaining lower value")
}

func TestHigherPriorityAlwaysWinsRegardlessOfValue(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PriorityThirdPartyLow, 90, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, int64(90), hook.applied[testCode].Single)

	_, err = tbl.Insert(req(2, apiconfig.PrioritySystemHigh, 10, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, int64(10), hook.applied[testCode].Single, "SYSTEM_HIGH wins even with a less-preferred comparator value")

	require.NoError(t, tbl.Remove(2))
	assert.Equal(t, int64(90), hook.applied[testCode].Single)
}

func TestRemoveLastTears(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(1))
	assert.True(t, hook.torn[testCode])
	assert.False(t, tbl.Live(1))
}

func TestDuplicateRemoveIsNoop(t *testing.T) {
	tbl, _, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(1))
	assert.NoError(t, tbl.Remove(1), "second remove of an already-gone handle is a harmless no-op")
}

func TestModeGateBlocksApply(t *testing.T) {
	rc := &apiconfig.ResourceConfig{
		Code: testCode, Name: "test.knob", Path: "/sys/test/knob",
		Policy: apiconfig.PolicyHigherBetter, Scope: apiconfig.ScopeGlobal,
		LowBound: 0, HighBound: 100, ModeMask: apiconfig.ModeDoze,
	}
	hook := newFakeHook()
	timers := newFakeTimers()
	tbl, err := NewTable(Config{
		Registry:     &fakeLookup{rc: rc},
		Topology:     Topology{CoreCount: 1, ClusterCount: 1, CgroupCount: 1},
		Timers:       timers,
		ExpiryNotify: func(Handle) {},
		HookResolver: HookResolverFunc(func(apiconfig.ResourceCode) ResourceHook { return hook }),
		MaxRequests:  8,
		MaxArbNodes:  8,
	})
	require.NoError(t, err)

	_, err = tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Empty(t, hook.applied, "resource gated to DOZE must not apply while mode is DISPLAY_ON")
}

func TestUpdateRejectsShorterDuration(t *testing.T) {
	tbl, _, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, 5000), apiconfig.ModeDisplayOn)
	require.NoError(t, err)

	err = tbl.Update(1, 1000)
	assert.ErrorIs(t, err, ErrPolicyViolation)

	assert.NoError(t, tbl.Update(1, 9000))
}

func TestUpdateToInfiniteAlwaysAccepted(t *testing.T) {
	tbl, _, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, 5000), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.NoError(t, tbl.Update(1, DurationInfinite))
}

func TestExpiryFiresRemoval(t *testing.T) {
	rc := &apiconfig.ResourceConfig{
		Code: testCode, Name: "test.knob", Path: "/sys/test/knob",
		Policy: apiconfig.PolicyHigherBetter, Scope: apiconfig.ScopeGlobal, LowBound: 0, HighBound: 100,
	}
	hook := newFakeHook()
	timers := newFakeTimers()
	var tbl *CocoTable
	var err error
	tbl, err = NewTable(Config{
		Registry:     &fakeLookup{rc: rc},
		Topology:     Topology{CoreCount: 1, ClusterCount: 1, CgroupCount: 1},
		Timers:       timers,
		ExpiryNotify: func(h Handle) { _ = tbl.Remove(h) },
		HookResolver: HookResolverFunc(func(apiconfig.ResourceCode) ResourceHook { return hook }),
		MaxRequests:  8,
		MaxArbNodes:  8,
	})
	require.NoError(t, err)

	_, err = tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, 1000), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.True(t, tbl.Live(1))

	timers.fire("b")
	assert.False(t, tbl.Live(1))
	assert.True(t, hook.torn[testCode])
}

func TestArenaExhaustionReturnsCapacityExhausted(t *testing.T) {
	rc := &apiconfig.ResourceConfig{
		Code: testCode, Name: "test.knob", Path: "/sys/test/knob",
		Policy: apiconfig.PolicyHigherBetter, Scope: apiconfig.ScopeGlobal, LowBound: 0, HighBound: 100,
	}
	hook := newFakeHook()
	timers := newFakeTimers()
	tbl, err := NewTable(Config{
		Registry:     &fakeLookup{rc: rc},
		Topology:     Topology{CoreCount: 1, ClusterCount: 1, CgroupCount: 1},
		Timers:       timers,
		ExpiryNotify: func(Handle) {},
		HookResolver: HookResolverFunc(func(apiconfig.ResourceCode) ResourceHook { return hook }),
		MaxRequests:  1,
		MaxArbNodes:  1,
	})
	require.NoError(t, err)

	_, err = tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 10, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)

	_, err = tbl.Insert(req(2, apiconfig.PrioritySystemHigh, 20, DurationInfinite), apiconfig.ModeDisplayOn)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestLazyApplyNeverMovesHead(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyLazyApply, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 10, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	_, err = tbl.Insert(req(2, apiconfig.PrioritySystemHigh, 999, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, int64(10), hook.applied[testCode].Single, "LAZY_APPLY never lets a later insert usurp the head")
}

func TestFiniteDurationInsertStartsTimerAndRemoveCancelsIt(t *testing.T) {
	ctrl := gomock.NewController(t)
	timers := NewMockTimerStarter(ctrl)

	rc := &apiconfig.ResourceConfig{
		Code: testCode, Name: "test.knob", Path: "/sys/test/knob",
		Policy: apiconfig.PolicyHigherBetter, Scope: apiconfig.ScopeGlobal, LowBound: 0, HighBound: 100,
	}
	hook := newFakeHook()
	timers.EXPECT().Start(int64(5000), gomock.Any()).Return("timer-1", nil)
	timers.EXPECT().Cancel("timer-1")

	tbl, err := NewTable(Config{
		Registry:     &fakeLookup{rc: rc},
		Topology:     Topology{CoreCount: 1, ClusterCount: 1, CgroupCount: 1},
		Timers:       timers,
		ExpiryNotify: func(Handle) {},
		HookResolver: HookResolverFunc(func(apiconfig.ResourceCode) ResourceHook { return hook }),
		MaxRequests:  8,
		MaxArbNodes:  8,
	})
	require.NoError(t, err)

	_, err = tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 50, 5000), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(1))
}

func TestRequestForReturnsMatchingSnapshot(t *testing.T) {
	tbl, _, _ := newTestTable(t, apiconfig.PolicyHigherBetter, apiconfig.ScopeGlobal)
	want := req(1, apiconfig.PrioritySystemHigh, 50, DurationInfinite)
	_, err := tbl.Insert(want, apiconfig.ModeDisplayOn)
	require.NoError(t, err)

	got, ok := tbl.RequestFor(1)
	require.True(t, ok)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Request{})); diff != "" {
		t.Fatalf("RequestFor snapshot mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, tbl.Remove(1))
	_, ok = tbl.RequestFor(1)
	assert.False(t, ok, "a removed handle must not have a live snapshot")
}

func TestInstantApplyAlwaysUsurpsHead(t *testing.T) {
	tbl, hook, _ := newTestTable(t, apiconfig.PolicyInstantApply, apiconfig.ScopeGlobal)
	_, err := tbl.Insert(req(1, apiconfig.PrioritySystemHigh, 10, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	_, err = tbl.Insert(req(2, apiconfig.PrioritySystemHigh, 1, DurationInfinite), apiconfig.ModeDisplayOn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hook.applied[testCode].Single, "INSTANT_APPLY always prepends regardless of comparator value")
}
