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

package apply

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/opencontainers/runc/libcontainer/cgroups"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arb"
)

// CgroupHook is the default ResourceHook for a PER_CGROUP-scoped resource whose
// Path names a cgroup controller file relative to a cgroup directory (e.g.
// "cpu.weight"). Unlike SysfsHook, writes go through runc's cgroups.WriteFile,
// which handles the interface-file quirks (retry-on-EINTR, numeric vs raw
// content) that a bare unix.Write does not.
type CgroupHook struct {
	// Dir is the absolute cgroup directory this hook writes into (see
	// CgroupDirForScopeKey for the scope_key naming scheme).
	Dir string
}

var _ arb.ResourceHook = CgroupHook{}

// Apply writes value to the controller file rc.Path inside h.Dir.
func (h CgroupHook) Apply(rc *apiconfig.ResourceConfig, value apiconfig.Value) error {
	if value.IsArray {
		return nil // no default multi-value writer, mirrors SysfsHook
	}
	return cgroups.WriteFile(h.Dir, filepath.Base(rc.Path), strconv.FormatInt(value.Single, 10))
}

// Tear restores rc.Default to the controller file.
func (h CgroupHook) Tear(rc *apiconfig.ResourceConfig) error {
	if rc.Path == "" {
		return nil
	}
	return cgroups.WriteFile(h.Dir, filepath.Base(rc.Path), strconv.FormatInt(rc.Default, 10))
}

// CgroupDirForScopeKey resolves a PER_CGROUP scope_key to its controller
// directory under root, e.g. root=/sys/fs/cgroup/cpu, scopeKey=3 ->
// /sys/fs/cgroup/cpu/cocotabled/group-3. The naming scheme is our own; this
// function only builds the path and does not create the directory.
func CgroupDirForScopeKey(root string, scopeKey int) string {
	return filepath.Join(root, "cocotabled", fmt.Sprintf("group-%d", scopeKey))
}
