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

// Package apply provides the default ResourceHook implementations CocoTable
// resolves for resources that carry a plain sysfs path or a cgroup subsystem
// path instead of a custom applier/tear hook (spec §4.5: "otherwise perform the
// default write").
package apply

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arb"
)

// SysfsHook is the default ResourceHook for a plain-path resource: single-value
// writes are stringified and written to Path; multi-value writes require a
// custom applier and are refused as a no-op here, per spec §4.5.
type SysfsHook struct{}

var _ arb.ResourceHook = SysfsHook{}

// Apply writes value to rc.Path. Multi-valued resources without a custom
// applier are a documented no-op, not an error: spec §4.5 says "multi-value →
// require a custom applier, else no-op."
func (SysfsHook) Apply(rc *apiconfig.ResourceConfig, value apiconfig.Value) error {
	if value.IsArray {
		klog.V(3).InfoS("apply: multi-valued resource has no custom applier, skipping default write", "resource", rc.Name)
		return nil
	}
	return WriteSysfs(rc.Path, strconv.FormatInt(value.Single, 10))
}

// Tear restores rc.Default to rc.Path.
func (SysfsHook) Tear(rc *apiconfig.ResourceConfig) error {
	if rc.Path == "" {
		return nil
	}
	return WriteSysfs(rc.Path, strconv.FormatInt(rc.Default, 10))
}

// WriteSysfs opens path with O_WRONLY|O_TRUNC via unix.Open (mirroring the
// no-append, single-shot write semantics a kernel sysfs node expects) rather
// than os.WriteFile's generic open-create-write-close, since sysfs nodes must
// never be created and must never see O_APPEND. Exported for internal/recovery
// to restore a recorded default value at startup.
func WriteSysfs(path, content string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("apply: open %s: %w", path, err)
	}
	defer unix.Close(fd)
	if _, err := unix.Write(fd, []byte(content)); err != nil {
		return fmt.Errorf("apply: write %s: %w", path, err)
	}
	return nil
}

// ReadSysfs returns the trimmed current content of path, used by the recovery
// subsystem at startup to skip restoring a path that already holds its recorded
// value.
func ReadSysfs(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("apply: read %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
