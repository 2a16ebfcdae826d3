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

// Package timerpool implements the Timer Service of spec §4.3: one-shot,
// cancellable, at-most-once delayed callbacks backed by a worker pool that grows
// between a desired and a maximum size under load.
package timerpool

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

// TimerID uniquely names one in-flight timer, returned by Pool.Start.
type TimerID string

type timer struct {
	id        TimerID
	fireAt    time.Time
	callback  func()
	cancelled *atomic.Bool
	fired     *atomic.Bool
}

// Pool is an elastic worker pool driving one-shot delayed callbacks. Workers
// idle between desiredWorkers and maxWorkers; a worker that wakes to find no
// pending timer beyond the desired count exits, so the pool shrinks back down
// under light load. Grounded on the teacher's general goroutine-per-concern
// pattern (each koordlet informer owns its own background loop) generalized
// into an explicit elastic count, since spec §4.3 calls for one.
type Pool struct {
	mu             sync.Mutex
	pending        map[TimerID]*timer
	desiredWorkers int
	maxWorkers     int
	liveWorkers    *atomic.Int32
	wake           chan struct{}
	closed         bool
	closeOnce      sync.Once
}

// NewPool constructs a Pool that keeps desiredWorkers goroutines parked and
// allows transient growth up to maxWorkers under burst load.
func NewPool(desiredWorkers, maxWorkers int) *Pool {
	if desiredWorkers < 1 {
		desiredWorkers = 1
	}
	if maxWorkers < desiredWorkers {
		maxWorkers = desiredWorkers
	}
	p := &Pool{
		pending:        make(map[TimerID]*timer),
		desiredWorkers: desiredWorkers,
		maxWorkers:     maxWorkers,
		liveWorkers:    atomic.NewInt32(0),
		wake:           make(chan struct{}, 1),
	}
	for i := 0; i < desiredWorkers; i++ {
		p.spawnWorker()
	}
	return p
}

// Start schedules callback to fire after durationMS milliseconds and returns a
// TimerID usable with Cancel. At-most-once delivery is guaranteed: a timer that
// has already fired, or has been cancelled, never invokes callback again.
func (p *Pool) Start(durationMS int64, callback func()) (string, error) {
	id := TimerID(uuid.NewString())
	t := &timer{
		id:        id,
		fireAt:    time.Now().Add(time.Duration(durationMS) * time.Millisecond),
		callback:  callback,
		cancelled: atomic.NewBool(false),
		fired:     atomic.NewBool(false),
	}

	p.mu.Lock()
	p.pending[id] = t
	grow := len(p.pending) > int(p.liveWorkers.Load()) && int(p.liveWorkers.Load()) < p.maxWorkers
	p.mu.Unlock()

	if grow {
		p.spawnWorker()
	}
	p.signalWake()
	return string(id), nil
}

// Cancel idempotently prevents a pending timer's callback from firing. If the
// callback is already running (or has already fired), Cancel returns
// immediately without waiting for it, per spec §4.3.
func (p *Pool) Cancel(timerID string) {
	id := TimerID(timerID)
	p.mu.Lock()
	t, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if ok {
		t.cancelled.Store(true)
	}
}

// Close stops every worker goroutine. Pending timers are abandoned without
// firing; callers that need pending work flushed must Cancel or wait for
// natural expiry before calling Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.wake)
	})
}

func (p *Pool) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// spawnWorker starts one worker goroutine. Each worker polls for the nearest
// pending deadline and sleeps until then or until woken by a new Start/Cancel;
// a worker beyond the desired count that finds nothing to do exits, letting the
// pool shrink back to desiredWorkers.
func (p *Pool) spawnWorker() {
	p.liveWorkers.Inc()
	go func() {
		defer p.liveWorkers.Dec()
		const idleShrinkAfter = 2 * time.Second
		idleSince := time.Now()
		for {
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return
			}
			next, ok := p.nearestLocked()
			extra := int(p.liveWorkers.Load()) > p.desiredWorkers
			p.mu.Unlock()

			if !ok {
				if extra && time.Since(idleSince) > idleShrinkAfter {
					return
				}
				if !p.sleepFor(50 * time.Millisecond) {
					return
				}
				continue
			}
			idleSince = time.Now()

			wait := time.Until(next.fireAt)
			if wait > 0 {
				if !p.sleepFor(wait) {
					continue // re-check; something else may have changed
				}
			}
			p.fire(next)
		}
	}()
}

// nearestLocked returns the pending timer with the earliest deadline, claiming
// nothing; callers must hold p.mu.
func (p *Pool) nearestLocked() (*timer, bool) {
	var best *timer
	for _, t := range p.pending {
		if best == nil || t.fireAt.Before(best.fireAt) {
			best = t
		}
	}
	return best, best != nil
}

// sleepFor blocks for d or until woken/closed, returning false if the pool was
// closed during the sleep.
func (p *Pool) sleepFor(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case _, open := <-p.wake:
		return open
	}
}

func (p *Pool) fire(t *timer) {
	p.mu.Lock()
	if _, still := p.pending[t.id]; !still {
		p.mu.Unlock()
		return // raced with Cancel
	}
	if t.fireAt.After(time.Now()) {
		p.mu.Unlock()
		return // another worker may have already picked a closer timer; re-evaluate next loop
	}
	delete(p.pending, t.id)
	p.mu.Unlock()

	if t.cancelled.Load() {
		return
	}
	if !t.fired.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			klog.ErrorS(nil, "timerpool: callback panicked", "timerID", t.id, "recover", r)
		}
	}()
	t.callback()
}

// Len reports the number of timers currently pending, for tests and metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Workers reports the number of currently live worker goroutines.
func (p *Pool) Workers() int {
	return int(p.liveWorkers.Load())
}
