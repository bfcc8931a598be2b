// Package event implements the deterministic discrete-event engine that
// drives the whole simulation. There is exactly one timeline: all apparent
// concurrency (the per-drone generate/feed/receive loops, MAC backoff, ACK
// timers) is cooperative multitasking over this queue.
package event

import (
	"container/heap"
	"sync/atomic"
)

// Handle identifies a scheduled event and allows it to be cancelled before
// it fires. Firing a cancelled event is a no-op; this replaces the
// interrupt-style cancellation used by the MAC backoff countdown.
type Handle struct {
	at        float64
	seq       uint64
	index     int
	fn        func()
	cancelled bool
	fired     bool
}

// Cancel marks the event as cancelled. Safe to call after the event fired.
func (h *Handle) Cancel() { h.cancelled = true }

// Fired reports whether the event already executed.
func (h *Handle) Fired() bool { return h.fired }

// Scheduler is a priority-ordered timeline. Events are ordered by fire time;
// ties are broken by insertion sequence, so events scheduled for the same
// instant fire in scheduling order. That FIFO guarantee is what makes
// collision and backoff interactions reproducible under a fixed seed.
type Scheduler struct {
	now    float64
	seq    uint64
	pq     eventQueue
	halted atomic.Bool
}

// NewScheduler returns an empty timeline positioned at t=0.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.pq)
	return s
}

// Now returns the current simulated time in µs.
func (s *Scheduler) Now() float64 { return s.now }

// Schedule enqueues fn to run at now+delay. A negative delay is clamped to
// zero. The returned handle can cancel the event before it fires.
func (s *Scheduler) Schedule(delay float64, fn func()) *Handle {
	if delay < 0 {
		delay = 0
	}
	h := &Handle{at: s.now + delay, seq: s.seq, fn: fn}
	s.seq++
	heap.Push(&s.pq, h)
	return h
}

// Halt asks a running RunUntil to stop at the next event boundary. Safe to
// call from another goroutine (signal handlers).
func (s *Scheduler) Halt() { s.halted.Store(true) }

// RunUntil pops and executes events until the queue is empty, the next
// event would fire at or after limit, or Halt is called. Time only moves
// forward.
func (s *Scheduler) RunUntil(limit float64) {
	for s.pq.Len() > 0 && !s.halted.Load() {
		next := s.pq[0]
		if next.at >= limit {
			break
		}
		heap.Pop(&s.pq)
		s.now = next.at
		next.fired = true
		if !next.cancelled {
			next.fn()
		}
	}
	if !s.halted.Load() && s.now < limit {
		s.now = limit
	}
}

// Run drains the queue completely.
func (s *Scheduler) Run() {
	for s.pq.Len() > 0 {
		next := heap.Pop(&s.pq).(*Handle)
		s.now = next.at
		next.fired = true
		if !next.cancelled {
			next.fn()
		}
	}
}

// Pending returns the number of events still queued, cancelled ones
// included.
func (s *Scheduler) Pending() int { return s.pq.Len() }

// eventQueue implements heap.Interface over scheduled handles.
type eventQueue []*Handle

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}
