package eventloop

import (
	"container/heap"
	"time"
)

// Manual is a Loop driven by virtual time. Do runs inline and timers fire only
// from Advance, in deadline order (ties in scheduling order). It is meant for
// tests and simulations on a single goroutine.
type Manual struct {
	now    time.Time
	seq    uint64
	timers timerQueue
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Do(fn func()) {
	run(fn)
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{when: m.now.Add(d), seq: m.seq, fn: fn}
	heap.Push(&m.timers, t)
	return t
}

func (m *Manual) Now() time.Time {
	return m.now
}

// Advance moves virtual time forward by d, firing every timer that comes due,
// including timers scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for m.timers.Len() > 0 {
		next := m.timers[0]
		if next.when.After(target) {
			break
		}
		heap.Pop(&m.timers)
		if next.when.After(m.now) {
			m.now = next.when
		}
		if next.stopped {
			continue
		}
		next.fired = true
		run(next.fn)
	}
	m.now = target
}

// Pending reports how many timers are still scheduled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type manualTimer struct {
	when    time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
	index   int
}

func (t *manualTimer) Stop() bool {
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

type timerQueue []*manualTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].when.Equal(q[j].when) {
		return q[i].seq < q[j].seq
	}
	return q[i].when.Before(q[j].when)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
