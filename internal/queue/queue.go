// Package queue provides a bounded top-N heap.
package queue

import "container/heap"

// Compile time check to ensure TopN satisfies the heap interface.
var _ heap.Interface = (*TopN[int])(nil)

// TopN keeps the n best items pushed into it. cmp(a, b) < 0 means a ranks
// before b. The heap root is the worst item kept.
type TopN[T any] struct {
	n     int
	cmp   func(a, b T) int
	items []T
	seen  int
}

// NewTopN creates a queue keeping at most n items. n < 0 keeps everything.
func NewTopN[T any](n int, cmp func(a, b T) int) *TopN[T] {
	capacity := n
	if n < 0 || n > 1024 {
		capacity = 1024
	}
	return &TopN[T]{
		n:     n,
		cmp:   cmp,
		items: make([]T, 0, capacity),
	}
}

// Offer adds item if it ranks among the best n and reports whether it was
// kept.
func (q *TopN[T]) Offer(item T) bool {
	q.seen++
	if q.n == 0 {
		return false
	}
	if q.n < 0 || len(q.items) < q.n {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if q.cmp(item, q.items[0]) >= 0 {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Worst returns the lowest ranked item kept.
func (q *TopN[T]) Worst() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Seen returns the number of items offered so far.
func (q *TopN[T]) Seen() int { return q.seen }

// Dropped reports whether some offered item was not kept.
func (q *TopN[T]) Dropped() bool { return q.seen > len(q.items) }

// Drain removes all items and returns them best first.
func (q *TopN[T]) Drain() []T {
	out := make([]T, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q).(T)
	}
	return out
}

// less orders the heap so the worst item is at the root.
func (q *TopN[T]) less(i, j int) bool {
	return q.cmp(q.items[i], q.items[j]) > 0
}

func (q *TopN[T]) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopN[T]) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && q.less(r, l) {
			best = r
		}
		if !q.less(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}

// Len returns the number of items kept.
func (q *TopN[T]) Len() int { return len(q.items) }

// Less implements heap.Interface.
func (q *TopN[T]) Less(i, j int) bool { return q.less(i, j) }

// Swap implements heap.Interface.
func (q *TopN[T]) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

// Push implements heap.Interface. Use Offer to respect the bound.
func (q *TopN[T]) Push(x any) { q.items = append(q.items, x.(T)) }

// Pop implements heap.Interface.
func (q *TopN[T]) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	var zero T
	q.items[n-1] = zero
	q.items = q.items[:n-1]
	return item
}

// Reset clears the queue for reuse.
func (q *TopN[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.seen = 0
}
