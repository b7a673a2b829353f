// Package waiter implements the FIFO wait-queue primitive that every zone
// uses to suspend operations on contention: page loads, PBN-lock conflicts,
// journal-space pressure, and scrubbing barriers (spec §4.1). A Queue is
// owned by exactly one zone and is not safe for concurrent use; crossing a
// zone boundary happens by enqueuing a continuation on the destination
// zone's work queue, never by sharing a Queue across goroutines.
package waiter

// Callback is invoked when a waiter is notified. ctx is whatever the
// notifier passed to Notify/NotifyAll/NotifyNext.
type Callback func(w *Waiter, ctx any)

// Waiter is a single suspended operation. It carries no state beyond the
// callback to invoke on notification; callers embed whatever operation
// state they need behind Context.
type Waiter struct {
	callback Callback
	Context  any

	next *Waiter
}

// NewWaiter creates a waiter with the given callback and context.
func NewWaiter(cb Callback, ctx any) *Waiter {
	return &Waiter{callback: cb, Context: ctx}
}

// Queue is a circular singly-linked FIFO of waiters. Enqueue and
// DequeueNext are O(1) because the queue keeps only a tail pointer: the
// head is tail.next.
type Queue struct {
	tail  *Waiter
	count int
}

// Enqueue appends w to the back of the queue.
func (q *Queue) Enqueue(w *Waiter) {
	if q.tail == nil {
		w.next = w
	} else {
		w.next = q.tail.next
		q.tail.next = w
	}
	q.tail = w
	q.count++
}

// Count returns the number of waiters currently enqueued.
func (q *Queue) Count() int { return q.count }

// IsEmpty reports whether the queue has no waiters.
func (q *Queue) IsEmpty() bool { return q.tail == nil }

// DequeueNext removes and returns the waiter at the front of the queue, or
// nil if the queue is empty.
func (q *Queue) DequeueNext() *Waiter {
	if q.tail == nil {
		return nil
	}
	head := q.tail.next
	if head == q.tail {
		q.tail = nil
	} else {
		q.tail.next = head.next
	}
	head.next = nil
	q.count--
	return head
}

// NotifyNext dequeues the front waiter, if any, and invokes cb (or the
// waiter's own callback if cb is nil) with ctx. Reports whether a waiter
// was notified.
func (q *Queue) NotifyNext(cb Callback, ctx any) bool {
	w := q.DequeueNext()
	if w == nil {
		return false
	}
	invoke(w, cb, ctx)
	return true
}

// NotifyAll drains the entire queue in FIFO order, invoking cb (or each
// waiter's own callback if cb is nil) with ctx for every waiter.
func (q *Queue) NotifyAll(cb Callback, ctx any) {
	for {
		w := q.DequeueNext()
		if w == nil {
			return
		}
		invoke(w, cb, ctx)
	}
}

// TransferAll moves every waiter from q to dst, preserving order, without
// invoking any callback.
func TransferAll(q, dst *Queue) {
	for {
		w := q.DequeueNext()
		if w == nil {
			return
		}
		dst.Enqueue(w)
	}
}

// Predicate reports whether a waiter matches some selection criteria. ctx
// is caller-supplied and opaque to the queue.
type Predicate func(w *Waiter, ctx any) bool

// DequeueMatching removes every waiter for which pred returns true,
// appending them to out in FIFO order, and returns the updated slice.
// Non-matching waiters keep their relative order and remain queued.
func (q *Queue) DequeueMatching(pred Predicate, ctx any, out []*Waiter) []*Waiter {
	remaining := q.count
	for i := 0; i < remaining; i++ {
		w := q.DequeueNext()
		if w == nil {
			break
		}
		if pred(w, ctx) {
			out = append(out, w)
		} else {
			q.Enqueue(w)
		}
	}
	return out
}

func invoke(w *Waiter, cb Callback, ctx any) {
	if cb != nil {
		cb(w, ctx)
		return
	}
	if w.callback != nil {
		w.callback(w, ctx)
	}
}
