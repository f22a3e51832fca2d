// Package wsched is a queue of values that become due at a point in time.
//
// It holds no goroutines or timers of its own;
// the owner asks for the next due time and pops due values when it chooses.
package wsched

import (
	"container/heap"
	"time"
)

// Queue is a time-ordered queue of tasks.
// Tasks with equal due times are popped in insertion order.
//
// Queue is not safe for concurrent use.
type Queue[T any] struct {
	h taskHeap[T]

	seq uint64
}

// Push schedules v to become due at due.
func (q *Queue[T]) Push(due time.Time, v T) {
	q.seq++
	heap.Push(&q.h, task[T]{due: due, seq: q.seq, v: v})
}

// NextDue returns the due time of the earliest task,
// or false if the queue is empty.
func (q *Queue[T]) NextDue() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].due, true
}

// PopDue removes and returns every task due at or before now, earliest first.
func (q *Queue[T]) PopDue(now time.Time) []T {
	var out []T
	for len(q.h) > 0 && !q.h[0].due.After(now) {
		t := heap.Pop(&q.h).(task[T])
		out = append(out, t.v)
	}
	return out
}

// Filter removes every task for which keep returns false.
func (q *Queue[T]) Filter(keep func(T) bool) {
	kept := q.h[:0]
	for _, t := range q.h {
		if keep(t.v) {
			kept = append(kept, t)
		}
	}
	clear(q.h[len(kept):])
	q.h = kept
	heap.Init(&q.h)
}

func (q *Queue[T]) Len() int {
	return len(q.h)
}

type task[T any] struct {
	due time.Time
	seq uint64
	v   T
}

type taskHeap[T any] []task[T]

func (h taskHeap[T]) Len() int { return len(h) }

func (h taskHeap[T]) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[T]) Push(x any) {
	*h = append(*h, x.(task[T]))
}

func (h *taskHeap[T]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = task[T]{}
	*h = old[:n-1]
	return t
}
