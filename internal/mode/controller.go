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

// Package mode implements the Mode Controller of spec §4.6: it watches a
// system suspend/resume signal, toggles the process-wide display/suspend mode
// flag, and drives the table mutations (park ineligible requests on SUSPEND,
// resubmit them on RESUME) through the same INSERT/REMOVE events every other
// producer uses — the controller never touches CocoTable directly.
package mode

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arb"
)

// TableView is the narrow slice of CocoTable the mode controller needs: it
// must be able to enumerate live handles and remove them, but never reaches
// into arbitration internals directly.
type TableView interface {
	LiveHandles() []arb.Handle
	RequestFor(handle arb.Handle) (arb.Request, bool)
	Remove(handle arb.Handle) error
	SetModeSnapshot(mode apiconfig.Mode)
}

// Pusher is the narrow slice of the Request Queue the controller needs to
// resubmit parked requests as fresh INSERT events.
type Pusher interface {
	PushInsert(req arb.Request, modeSnapshot apiconfig.Mode) error
}

// Controller owns current_mode (spec §4.6's reader-writer-locked flag) and the
// pending_list side-list of parked requests. Grounded on the teacher's
// fsnotify-driven config watcher (internal/config.Watcher in this module,
// itself grounded on the teacher's configmap_event_handler.go) generalized
// from a config-reload signal to a suspend/resume signal.
type Controller struct {
	mu      sync.RWMutex
	current apiconfig.Mode

	pendingMu sync.Mutex
	pending   []arb.Request

	table  TableView
	pusher Pusher
	watch  *fsnotify.Watcher
}

// New constructs a Controller starting in initialMode, watching statePath for
// writes that signal a suspend/resume transition. The file's content at the
// moment of each write event is interpreted by readMode.
func New(table TableView, pusher Pusher, statePath string, initialMode apiconfig.Mode, readMode func(path string) (apiconfig.Mode, error)) (*Controller, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mode: create watcher: %w", err)
	}
	if err := w.Add(statePath); err != nil {
		w.Close()
		return nil, fmt.Errorf("mode: watch %s: %w", statePath, err)
	}
	c := &Controller{current: initialMode, table: table, pusher: pusher, watch: w}
	go c.run(statePath, readMode)
	return c, nil
}

func (c *Controller) run(statePath string, readMode func(string) (apiconfig.Mode, error)) {
	for {
		select {
		case ev, ok := <-c.watch.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			newMode, err := readMode(statePath)
			if err != nil {
				klog.ErrorS(err, "mode: failed to read state file", "path", statePath)
				continue
			}
			c.Transition(newMode)
		case err, ok := <-c.watch.Errors:
			if !ok {
				return
			}
			klog.ErrorS(err, "mode: watcher error")
		}
	}
}

// Current returns the presently applied mode flag.
func (c *Controller) Current() apiconfig.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Transition moves current_mode to newMode and, per spec §4.6, parks or
// resubmits requests: every live request whose ModeGate does not intersect
// newMode is removed from the table and held in pending_list; every request
// already in pending_list whose ModeGate now intersects newMode is resubmitted
// as a fresh INSERT.
func (c *Controller) Transition(newMode apiconfig.Mode) {
	c.mu.Lock()
	c.current = newMode
	c.mu.Unlock()

	c.table.SetModeSnapshot(newMode)
	c.parkIneligible(newMode)
	c.resubmitEligible(newMode)
}

func (c *Controller) parkIneligible(newMode apiconfig.Mode) {
	for _, h := range c.table.LiveHandles() {
		req, ok := c.table.RequestFor(h)
		if !ok {
			continue
		}
		if req.ModeGate.Intersects(newMode) {
			continue
		}
		if err := c.table.Remove(h); err != nil {
			klog.ErrorS(err, "mode: failed to park request", "handle", h)
			continue
		}
		c.pendingMu.Lock()
		c.pending = append(c.pending, req)
		c.pendingMu.Unlock()
	}
}

func (c *Controller) resubmitEligible(newMode apiconfig.Mode) {
	c.pendingMu.Lock()
	remaining := c.pending[:0]
	var eligible []arb.Request
	for _, req := range c.pending {
		if req.ModeGate.Intersects(newMode) {
			eligible = append(eligible, req)
		} else {
			remaining = append(remaining, req)
		}
	}
	c.pending = remaining
	c.pendingMu.Unlock()

	// FIFO resubmission order (the Open Question decision recorded in
	// DESIGN.md): pending_list is drained in the order requests were parked.
	for _, req := range eligible {
		if err := c.pusher.PushInsert(req, newMode); err != nil {
			klog.ErrorS(err, "mode: failed to resubmit parked request", "handle", req.Handle)
		}
	}
}

// PendingCount reports how many requests are currently parked, for tests and
// introspection.
func (c *Controller) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// Close stops the underlying filesystem watcher.
func (c *Controller) Close() error {
	return c.watch.Close()
}
