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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

func mustCode(t *testing.T, resType, resID int, vendor bool) apiconfig.ResourceCode {
	t.Helper()
	c, err := apiconfig.MakeResourceCode(resType, resID, vendor)
	require.NoError(t, err)
	return c
}

func TestRegisterLookupAndPrimaryIndex(t *testing.T) {
	r := New()
	code := mustCode(t, 1, 100, false)
	require.NoError(t, r.Register(apiconfig.ResourceConfig{
		Code: code, Name: "cpu.freq.min", Path: "/sys/cpu/min", HighBound: 100,
	}))

	got, ok := r.Lookup(code)
	require.True(t, ok)
	assert.Equal(t, "cpu.freq.min", got.Name)

	idx, ok := r.PrimaryIndex(code)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, r.TotalCount())
}

func TestRegisterRejectsMalformed(t *testing.T) {
	r := New()
	err := r.Register(apiconfig.ResourceConfig{Name: "no-code"})
	assert.Error(t, err)

	err = r.Register(apiconfig.ResourceConfig{
		Code: mustCode(t, 1, 1, false), Name: "bad-bounds", Path: "/x", LowBound: 10, HighBound: 5,
	})
	assert.Error(t, err)

	err = r.Register(apiconfig.ResourceConfig{
		Code: mustCode(t, 1, 2, false), Name: "no-path-no-hook",
	})
	assert.Error(t, err)
}

func TestNonVendorOverwriteSamePrimaryIndex(t *testing.T) {
	r := New()
	codeA := mustCode(t, 2, 50, false)
	require.NoError(t, r.Register(apiconfig.ResourceConfig{Code: codeA, Name: "v1", Path: "/a", HighBound: 1}))

	codeB := mustCode(t, 2, 50, false) // identical (resType, resID) -> same code here, so a direct overwrite
	require.NoError(t, r.Register(apiconfig.ResourceConfig{Code: codeB, Name: "v2", Path: "/a", HighBound: 1}))

	assert.Equal(t, 1, r.TotalCount())
	got, ok := r.Lookup(codeB)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Name)
}

func TestVendorResourceCoexists(t *testing.T) {
	r := New()
	plain := mustCode(t, 3, 7, false)
	vendor := mustCode(t, 3, 7, true)
	require.NoError(t, r.Register(apiconfig.ResourceConfig{Code: plain, Name: "plain", Path: "/p", HighBound: 1}))
	require.NoError(t, r.Register(apiconfig.ResourceConfig{Code: vendor, Name: "vendor", Path: "/v", HighBound: 1}))

	assert.Equal(t, 2, r.TotalCount())
	_, ok := r.Lookup(plain)
	assert.True(t, ok)
	_, ok = r.Lookup(vendor)
	assert.True(t, ok)
}

func TestAttachHooksRefusedAfterStart(t *testing.T) {
	r := New()
	noop := func(apiconfig.ResourceCode, apiconfig.Value) error { return nil }
	require.NoError(t, r.AttachHooks("custom", noop, noop))

	r.MarkStarted()
	err := r.AttachHooks("custom2", noop, noop)
	assert.Error(t, err)

	fn, ok := r.ResolveApplier("custom")
	assert.True(t, ok)
	assert.NotNil(t, fn)
}
