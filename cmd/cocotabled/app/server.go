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

// Package app wires the cocotabled binary together: Resource Registry, Memory
// Arenas, CocoTable, Timer Service, Request Queue, Mode Controller and client
// GC sweep, plus a debug HTTP surface. Grounded on the teacher's
// cmd/koord-scheduler/app server-construction shape (a NewXCommand returning a
// *cobra.Command whose RunE builds and runs a long-lived server object), with
// the apiserver/component-base machinery the teacher uses for a full
// Kubernetes control-plane binary stripped to what a standalone local daemon
// actually needs: cobra for the command tree, gin for the debug surface,
// client_golang for metrics.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/tunedctl/cocotabled/cmd/cocotabled/app/options"
	"github.com/tunedctl/cocotabled/internal/apply"
	"github.com/tunedctl/cocotabled/internal/arb"
	"github.com/tunedctl/cocotabled/internal/arena"
	"github.com/tunedctl/cocotabled/internal/clientgc"
	daemonconfig "github.com/tunedctl/cocotabled/internal/config"
	"github.com/tunedctl/cocotabled/internal/mode"
	"github.com/tunedctl/cocotabled/internal/queue"
	"github.com/tunedctl/cocotabled/internal/recovery"
	"github.com/tunedctl/cocotabled/internal/timerpool"
	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/pkg/metrics"
	"github.com/tunedctl/cocotabled/pkg/registry"
)

// NewCocotabledCommand builds the root cobra command.
func NewCocotabledCommand() *cobra.Command {
	opts := options.NewOptions()
	cmd := &cobra.Command{
		Use:   "cocotabled",
		Short: "Arbitrates concurrent, time-bounded writes to kernel tunables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return Run(cmd.Context(), opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// Server bundles the long-lived components wired at startup.
type Server struct {
	opts     *options.Options
	registry *registry.Registry
	table    *arb.CocoTable
	q        *queue.Queue
	timers   *timerpool.Pool
	recorder *metrics.Recorder
	modeCtl  *mode.Controller
	gc       *clientgc.Collector
}

// PushInsert implements mode.Pusher: resubmits a parked request as a fresh
// INSERT event queued at the request's own priority class.
func (s *Server) PushInsert(req arb.Request, modeSnapshot apiconfig.Mode) error {
	return s.q.Push(queue.Event{Kind: queue.KindInsert, Request: req, ModeSnapshot: modeSnapshot}, req.Priority)
}

// PushRemove implements clientgc.Remover.
func (s *Server) PushRemove(handle arb.Handle) error {
	return s.q.Push(queue.Event{Kind: queue.KindRemove, Handle: handle}, apiconfig.PrioritySystemLow)
}

// builtinCatalog returns a minimal hardcoded resource catalog. Parsing a real
// resources.yaml/topology file is explicitly out of scope (spec §1: "no
// resource-catalog/topology YAML parser"); the core only ever consumes an
// already-populated Registry, so the binary's job is just to call Register.
func builtinCatalog() []apiconfig.ResourceConfig {
	cpuFreqCode, _ := apiconfig.MakeResourceCode(1, 1, false)
	cpuGovCode, _ := apiconfig.MakeResourceCode(1, 2, false)
	return []apiconfig.ResourceConfig{
		{
			Code: cpuFreqCode, Name: "cpu.scaling_min_freq",
			Path: "/sys/devices/system/cpu/cpu0/cpufreq/scaling_min_freq",
			Policy: apiconfig.PolicyHigherBetter, Scope: apiconfig.ScopePerCore,
			Permission: apiconfig.PermissionSystem, ModeMask: 0,
			LowBound: 300000, HighBound: 3000000, Default: 800000,
		},
		{
			Code: cpuGovCode, Name: "cpu.sched_latency_ns",
			Path: "/sys/kernel/debug/sched_latency_ns",
			Policy: apiconfig.PolicyLowerBetter, Scope: apiconfig.ScopeGlobal,
			Permission: apiconfig.PermissionSystem, ModeMask: apiconfig.ModeDisplayOn,
			LowBound: 1000000, HighBound: 24000000, Default: 6000000,
		},
	}
}

// Run constructs every component per spec §4 and blocks until ctx is cancelled.
func Run(ctx context.Context, opts *options.Options) error {
	reg := registry.New()
	recorder := metrics.New(prometheus.DefaultRegisterer)

	rec, err := recovery.Open(opts.StateDir)
	if err != nil {
		return fmt.Errorf("app: open recovery file: %w", err)
	}
	defer rec.Close()

	if err := recovery.Restore(opts.StateDir); err != nil {
		klog.ErrorS(err, "app: partial failure restoring crash-recovery defaults")
	}

	for _, rc := range builtinCatalog() {
		if err := reg.Register(rc); err != nil {
			return fmt.Errorf("app: register %q: %w", rc.Name, err)
		}
		if err := rec.Record(rc.Path, rc.Default); err != nil {
			klog.ErrorS(err, "app: failed to persist recovery record", "resource", rc.Name)
		}
	}
	reg.MarkStarted()

	settings, err := daemonconfig.Load(opts.ConfigFile)
	if err != nil {
		klog.InfoS("app: no daemon settings file found, using defaults", "path", opts.ConfigFile, "err", err)
		settings = apiconfig.DefaultSettings()
	}

	timers := timerpool.NewPool(opts.TimerWorkers, opts.TimerMaxWorkers)
	q := queue.New(settings.RateLimiterDelta, settings.MaxConcurrentRequests)

	table, err := arb.NewTable(arb.Config{
		Registry: reg,
		Topology: arb.Topology{CoreCount: opts.CoreCount, ClusterCount: opts.ClusterCount, CgroupCount: opts.CgroupCount},
		Timers:   timers,
		ExpiryNotify: func(h arb.Handle) {
			_ = q.Push(queue.Event{Kind: queue.KindExpiry, Handle: h}, apiconfig.PrioritySystemHigh)
		},
		HookResolver: arb.HookResolverFunc(func(code apiconfig.ResourceCode) arb.ResourceHook {
			return apply.SysfsHook{}
		}),
		Recorder:    recorder,
		MaxRequests: settings.MaxConcurrentRequests,
		MaxArbNodes: settings.MaxConcurrentRequests * settings.MaxResourcesPerRequest,
	})
	if err != nil {
		return fmt.Errorf("app: construct arbitration table: %w", err)
	}

	s := &Server{opts: opts, registry: reg, table: table, q: q, timers: timers, recorder: recorder}

	modeStatePath := opts.StateDir + "/mode_state"
	modeCtl, err := mode.New(table, s, modeStatePath, apiconfig.ModeDisplayOn, readModeFile)
	if err != nil {
		klog.ErrorS(err, "app: mode controller unavailable, suspend/resume handling disabled")
	} else {
		s.modeCtl = modeCtl
		defer modeCtl.Close()
	}

	s.gc = clientgc.New(
		time.Duration(settings.GCDurationMS)*time.Millisecond,
		time.Duration(settings.GCDurationMS)*time.Millisecond,
		s,
		processAlive,
	)

	go s.runSerializer(ctx)
	go s.runDebugServer()
	go s.runMetricsServer()
	go s.runClientGCSweep(ctx, time.Duration(settings.GCDurationMS)*time.Millisecond)

	<-ctx.Done()
	q.Shutdown()
	timers.Close()
	return nil
}

// runSerializer is the single arbitration consumer of spec §5: it owns the
// table exclusively and is the only goroutine that ever calls into it.
func (s *Server) runSerializer(ctx context.Context) {
	for {
		ev := s.q.PopBlocking()
		switch ev.Kind {
		case queue.KindInsert:
			if _, err := s.table.Insert(ev.Request, ev.ModeSnapshot); err != nil {
				klog.ErrorS(err, "app: insert rejected", "handle", ev.Request.Handle)
				s.recorder.ObserveDropped(err.Error())
			} else {
				s.gc.Touch(clientgc.ClientKey{PID: ev.Request.ClientPID, TID: ev.Request.ClientTID}, ev.Request.Handle)
			}
		case queue.KindUpdate:
			if err := s.table.Update(ev.Handle, ev.NewDurationMS); err != nil {
				klog.ErrorS(err, "app: update rejected", "handle", ev.Handle)
			}
		case queue.KindRemove, queue.KindExpiry:
			if ev.Kind == queue.KindRemove {
				if r, ok := s.table.RequestFor(ev.Handle); ok {
					s.gc.Forget(clientgc.ClientKey{PID: r.ClientPID, TID: r.ClientTID}, ev.Handle)
				}
			}
			if err := s.table.Remove(ev.Handle); err != nil {
				klog.ErrorS(err, "app: remove failed", "handle", ev.Handle)
			}
		case queue.KindShutdown:
			klog.InfoS("app: serializer draining on shutdown")
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runDebugServer exposes a read-only operator surface over HTTP via gin, the
// teacher's HTTP framework of choice for debug/admin surfaces: /healthz, and
// /debug/pending with the mode controller's parked-request count, which
// cmd/cocotabledctl renders as a table.
func (s *Server) runDebugServer() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/debug/pending", func(c *gin.Context) {
		count := 0
		if s.modeCtl != nil {
			count = s.modeCtl.PendingCount()
		}
		c.JSON(http.StatusOK, gin.H{"pending_requests": count})
	})
	if err := r.Run(s.opts.DebugAddr); err != nil && !isServerClosed(err) {
		klog.ErrorS(err, "app: debug server exited")
	}
}

// runClientGCSweep drives the garbage_collection.duration cadence of spec §6:
// periodically scan for clients that died without an explicit untune.
func (s *Server) runClientGCSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.gc.Sweep()
		}
	}
}

func (s *Server) runMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(s.opts.MetricsAddr, mux); err != nil && !isServerClosed(err) {
		klog.ErrorS(err, "app: metrics server exited")
	}
}

func isServerClosed(err error) bool { return err == http.ErrServerClosed }

// readModeFile interprets the mode-state file's trimmed content ("suspend" or
// "resume") into a Mode bitmask. A real integration would observe an actual
// power-management event source instead of a flat file.
func readModeFile(path string) (apiconfig.Mode, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	switch string(b) {
	case "suspend\n", "suspend":
		return apiconfig.ModeDoze, nil
	default:
		return apiconfig.ModeDisplayOn, nil
	}
}

// processAlive reports whether pid names a running process, used by the
// client GC sweep to detect clients that crashed without explicitly untuning.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
