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

// Package options defines the command-line surface of cocotabled, grounded on
// the teacher's NewOptions/AddFlags split (cmd/koord-scheduler/app/options).
package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options are the flags cocotabled accepts at startup.
type Options struct {
	ConfigFile   string
	StateDir     string
	DebugAddr    string
	MetricsAddr  string
	CoreCount    int
	ClusterCount int
	CgroupCount  int
	TimerWorkers int
	TimerMaxWorkers int
}

// NewOptions returns an Options populated with defaults.
func NewOptions() *Options {
	return &Options{
		ConfigFile:      "/etc/cocotabled/settings.yaml",
		StateDir:        "/var/lib/cocotabled",
		DebugAddr:       "127.0.0.1:9901",
		MetricsAddr:     "127.0.0.1:9902",
		CoreCount:       8,
		ClusterCount:    2,
		CgroupCount:     16,
		TimerWorkers:    4,
		TimerMaxWorkers: 32,
	}
}

// AddFlags registers o's fields onto fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config-file", o.ConfigFile, "Path to the daemon settings YAML file (spec §6 tunables).")
	fs.StringVar(&o.StateDir, "state-dir", o.StateDir, "Directory for crash-recovery persistence.")
	fs.StringVar(&o.DebugAddr, "debug-address", o.DebugAddr, "Address the debug/introspection HTTP server listens on.")
	fs.StringVar(&o.MetricsAddr, "metrics-address", o.MetricsAddr, "Address the Prometheus metrics HTTP server listens on.")
	fs.IntVar(&o.CoreCount, "core-count", o.CoreCount, "Number of PER_CORE scope partitions.")
	fs.IntVar(&o.ClusterCount, "cluster-count", o.ClusterCount, "Number of PER_CLUSTER scope partitions.")
	fs.IntVar(&o.CgroupCount, "cgroup-count", o.CgroupCount, "Number of PER_CGROUP scope partitions.")
	fs.IntVar(&o.TimerWorkers, "timer-desired-workers", o.TimerWorkers, "Steady-state timer worker pool size.")
	fs.IntVar(&o.TimerMaxWorkers, "timer-max-workers", o.TimerMaxWorkers, "Maximum timer worker pool size under burst load.")
}

// Validate checks the option set for obvious misconfiguration.
func (o *Options) Validate() error {
	if o.ConfigFile == "" {
		return fmt.Errorf("options: --config-file is required")
	}
	if o.CoreCount < 0 || o.ClusterCount < 0 || o.CgroupCount < 0 {
		return fmt.Errorf("options: scope counts must be non-negative")
	}
	if o.TimerMaxWorkers < o.TimerWorkers {
		return fmt.Errorf("options: --timer-max-workers must be >= --timer-desired-workers")
	}
	return nil
}
