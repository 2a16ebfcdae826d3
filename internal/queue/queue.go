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

// Package queue implements the Request Queue of spec §4.4: the priority-ordered,
// single-consumer multi-producer serialization point feeding the arbitration
// engine. Producers push INSERT/UPDATE/REMOVE/EXPIRY events; a single consumer
// drains them strictly by priority class, FIFO within a class, until a SHUTDOWN
// sentinel is received.
package queue

import (
	"container/heap"
	"sync"

	"golang.org/x/time/rate"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arb"
)

// Kind distinguishes the events the core's serializer understands (spec §6).
type Kind int

const (
	KindInsert Kind = iota
	KindUpdate
	KindRemove
	KindExpiry
	KindShutdown
)

// Event is one unit of work delivered to the arbitration serializer.
type Event struct {
	Kind Kind

	Handle       arb.Handle
	Request      arb.Request // set for KindInsert
	ModeSnapshot apiconfig.Mode

	NewDurationMS int64 // set for KindUpdate
}

// shutdownPriority sorts below every real priority class so SHUTDOWN always
// drains last among equally-submitted work, but a push still wakes the
// consumer immediately (spec §4.4: "a special forceful wake").
const shutdownPriority = apiconfig.PriorityThirdPartyLow + 1

type item struct {
	event Event
	prio  apiconfig.PriorityClass
	seq   uint64 // insertion order, for FIFO within a priority class
	index int
}

type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio < h[j].prio
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the priority-ordered single-consumer multi-producer event queue.
// Grounded on the teacher's general condition-variable-guarded producer/consumer
// shape (statesinformer's notify channel pattern), generalized here to a
// container/heap priority queue because spec §4.4 requires strict priority-class
// ordering rather than plain FIFO.
type Queue struct {
	mu      sync.Mutex
	notEmpty *sync.Cond
	h        priorityHeap
	nextSeq  uint64
	closed   bool

	// limiter optionally rate-limits INSERT pushes (spec §6's reserved
	// rate_limiter.delta knob); nil means unlimited.
	limiter *rate.Limiter
}

// New constructs an empty Queue. If ratePerSecond > 0, Push of INSERT events is
// throttled to ratePerSecond with the given burst allowance; pass ratePerSecond
// <= 0 to leave ingress unthrottled (spec marks this tunable "reserved").
func New(ratePerSecond float64, burst int) *Queue {
	q := &Queue{}
	q.notEmpty = sync.NewCond(&q.mu)
	if ratePerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return q
}

// Push enqueues event, ordered by priority class (SYSTEM_HIGH first) and FIFO
// within a class. Only KindInsert consults the rate limiter: UPDATE, REMOVE,
// EXPIRY and the SHUTDOWN forceful wake can never be throttled away.
func (q *Queue) Push(event Event, priority apiconfig.PriorityClass) error {
	if event.Kind == KindInsert && q.limiter != nil && !q.limiter.Allow() {
		return ErrRateLimited
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	prio := priority
	if event.Kind == KindShutdown {
		prio = shutdownPriority
	}
	q.nextSeq++
	heap.Push(&q.h, &item{event: event, prio: prio, seq: q.nextSeq})
	q.notEmpty.Signal()
	return nil
}

// PopBlocking blocks until an event is available and returns it. After a
// KindShutdown event has been returned once, every subsequent call returns it
// again immediately so every waiting consumer observes shutdown.
func (q *Queue) PopBlocking() Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.h) == 0 {
		return Event{Kind: KindShutdown}
	}
	it := heap.Pop(&q.h).(*item)
	if it.event.Kind == KindShutdown {
		q.closed = true
		q.notEmpty.Broadcast()
	}
	return it.event
}

// Shutdown pushes the SHUTDOWN sentinel, the "forceful wake" of spec §4.4.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.nextSeq++
	heap.Push(&q.h, &item{event: Event{Kind: KindShutdown}, prio: shutdownPriority, seq: q.nextSeq})
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// Len reports the number of events currently queued, for tests and metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
