package media

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO shared by one producer and one consumer stage.
// Every state change closes the channel returned by Changed, so waits can be
// combined with a context or a timer.
type Queue[T any] struct {
	items []T
	max   int

	head, tail, count int
	bytes             int

	sizeOf  func(T) int
	release func(T)

	finished bool
	aborted  bool
	gen      uint64

	mutex   sync.Mutex
	changed chan struct{}
}

func NewQueue[T any](max int, sizeOf func(T) int, release func(T)) *Queue[T] {
	if max <= 0 {
		max = 1
	}
	return &Queue[T]{
		items:   make([]T, max),
		max:     max,
		sizeOf:  sizeOf,
		release: release,
		changed: make(chan struct{}),
	}
}

// broadcast must be called with the mutex held.
func (q *Queue[T]) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Push appends item, blocking while the queue is full. It fails with
// ErrQueueFinished once the queue is finished and with ErrQueueFlushed when a
// flush happened during the wait. The item is not released on failure.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	q.mutex.Lock()
	gen := q.gen
	for {
		if q.finished {
			q.mutex.Unlock()
			return ErrQueueFinished
		}
		if q.gen != gen {
			q.mutex.Unlock()
			return ErrQueueFlushed
		}
		if q.count < q.max {
			break
		}

		ch := q.changed
		q.mutex.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		q.mutex.Lock()
	}
	defer q.mutex.Unlock()

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % q.max
	q.count += 1
	if q.sizeOf != nil {
		q.bytes += q.sizeOf(item)
	}

	q.broadcast()
	return nil
}

// Pop removes the oldest item, blocking while the queue is empty. It returns
// false once the queue is finished and empty or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	q.mutex.Lock()
	for q.count == 0 {
		if q.finished {
			q.mutex.Unlock()
			var zero T
			return zero, false
		}

		ch := q.changed
		q.mutex.Unlock()
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-ch:
		}
		q.mutex.Lock()
	}
	defer q.mutex.Unlock()

	return q.take(), true
}

func (q *Queue[T]) TryPop() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

func (q *Queue[T]) take() T {
	var zero T

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.max
	q.count -= 1
	if q.sizeOf != nil {
		q.bytes -= q.sizeOf(item)
	}

	q.broadcast()
	return item
}

func (q *Queue[T]) drop() {
	for q.count > 0 {
		item := q.take()
		if q.release != nil {
			q.release(item)
		}
	}
	q.head, q.tail, q.bytes = 0, 0, 0
}

// Clear discards every queued item. The finished flag is kept.
func (q *Queue[T]) Clear() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.drop()
	q.broadcast()
}

// Flush discards every queued item and re-arms a finished queue. An aborted
// queue stays finished.
func (q *Queue[T]) Flush() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.drop()
	q.finished = q.aborted
	q.gen += 1
	q.broadcast()
}

// Finish marks the end of input. Queued items can still be popped.
func (q *Queue[T]) Finish() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.finished {
		return
	}
	q.finished = true
	q.broadcast()
}

// Abort discards every queued item and finishes the queue for good.
func (q *Queue[T]) Abort() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.drop()
	q.finished = true
	q.aborted = true
	q.broadcast()
}

func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count
}

func (q *Queue[T]) Bytes() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.bytes
}

func (q *Queue[T]) Full() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count >= q.max
}

func (q *Queue[T]) Finished() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.finished
}

// Aborted reports whether nobody consumes the queue any more.
func (q *Queue[T]) Aborted() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.aborted
}

// Done reports whether the queue is finished and fully consumed.
func (q *Queue[T]) Done() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.finished && q.count == 0
}

func (q *Queue[T]) Changed() <-chan struct{} {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.changed
}
