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

// Package recovery implements the crash-safe default-value persistence of spec
// §6: at registration time, every resource with a non-empty path appends a
// "path,default_value" record to sysfsOriginalValues.txt; on startup, if the
// file exists, every recorded path is restored before arbitration accepts its
// first request.
package recovery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/tunedctl/cocotabled/internal/apply"
)

const fileName = "sysfsOriginalValues.txt"

// Recorder appends "{path},{default_value}" lines to the recovery file as
// resources register, and can restore every recorded path on startup.
type Recorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open creates (or appends to) the recovery file under stateDir.
func Open(stateDir string) (*Recorder, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("recovery: create state dir: %w", err)
	}
	full := filepath.Join(stateDir, fileName)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("recovery: open %s: %w", full, err)
	}
	return &Recorder{path: full, f: f}, nil
}

// Record appends one "path,default_value" line for a just-registered resource.
// Called once per resource with a non-empty path, at registration time.
func (r *Recorder) Record(path string, defaultValue int64) error {
	if path == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf("%s,%d\n", path, defaultValue)
	if _, err := r.f.WriteString(line); err != nil {
		return fmt.Errorf("recovery: append record for %s: %w", path, err)
	}
	return r.f.Sync()
}

// Close releases the underlying file handle.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// Restore reads stateDir's recovery file, if present, and writes every
// recorded default_value back to its path, returning the combined errors of
// any writes that failed (a missing file is not an error: first boot has none).
func Restore(stateDir string) error {
	full := filepath.Join(stateDir, fileName)
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recovery: open %s: %w", full, err)
	}
	defer f.Close()

	var errs error
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			klog.ErrorS(nil, "recovery: malformed record, skipping", "line", line)
			continue
		}
		path := parts[0]
		value, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("recovery: malformed value in record %q: %w", line, convErr))
			continue
		}
		if writeErr := restoreOne(path, value); writeErr != nil {
			errs = multierr.Append(errs, writeErr)
		}
	}
	if err := scanner.Err(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("recovery: scan %s: %w", full, err))
	}
	return errs
}

// readSysfsFn/writeSysfsFn are package-level indirections over internal/apply
// so tests can stub them with gostub instead of touching the filesystem.
var (
	readSysfsFn  = apply.ReadSysfs
	writeSysfsFn = apply.WriteSysfs
)

func restoreOne(path string, value int64) error {
	want := strconv.FormatInt(value, 10)
	if current, err := readSysfsFn(path); err == nil && current == want {
		return nil // already at the recorded value, nothing to restore
	}
	return writeSysfsFn(path, want)
}
