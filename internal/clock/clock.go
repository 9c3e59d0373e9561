// Package clock is a doubly-linked delta-queue event scheduler, the same
// shape as a traditional cycle-based CPU emulator's timer wheel, counting
// ticks instead of CPU cycles. The core loop advances it while events are
// pending; no package in this module schedules events on it.
package clock

type Callback = func(iarg int)

type event struct {
	time int
	cb   Callback
	iarg int
	prev *event
	next *event
}

// Queue is a delta queue of pending callbacks. The zero Queue is ready to use.
type Queue struct {
	head *event
	tail *event
}

// AddEvent schedules cb to run after the given number of ticks. A zero delay
// runs cb immediately, inline.
func (q *Queue) AddEvent(cb Callback, ticks int, iarg int) {
	if ticks <= 0 {
		cb(iarg)
		return
	}

	ev := &event{cb: cb, time: ticks, iarg: iarg}

	evptr := q.head
	if evptr == nil {
		q.head = ev
		q.tail = ev
		return
	}

	for evptr != nil {
		if ev.time <= evptr.time {
			evptr.time -= ev.time
			ev.prev = evptr.prev
			ev.next = evptr
			evptr.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return
		}
		ev.time -= evptr.time
		evptr = evptr.next
	}

	ev.prev = q.tail
	q.tail.next = ev
	q.tail = ev
}

// CancelEvent removes the first pending event whose argument matches.
// Matching is by iarg only, since Callback values are not comparable;
// callers that schedule more than one callback per iarg must disambiguate
// with distinct iarg values.
func (q *Queue) CancelEvent(iarg int) {
	evptr := q.head
	for evptr != nil {
		if evptr.iarg == iarg {
			nxt := evptr.next
			if nxt != nil {
				nxt.time += evptr.time
				nxt.prev = evptr.prev
			} else {
				q.tail = evptr.prev
			}
			if evptr.prev != nil {
				evptr.prev.next = evptr.next
			} else {
				q.head = evptr.next
			}
			return
		}
		evptr = evptr.next
	}
}

// Advance moves the queue forward by t ticks, firing every callback whose
// remaining time drops to zero or below.
func (q *Queue) Advance(t int) {
	evptr := q.head
	if evptr == nil {
		return
	}
	evptr.time -= t
	for evptr != nil && evptr.time <= 0 {
		evptr.cb(evptr.iarg)
		q.head = evptr.next
		evptr = q.head
		if evptr != nil {
			evptr.prev = nil
		} else {
			q.tail = nil
		}
	}
}

// AnyEvent reports whether any callback is still pending.
func (q *Queue) AnyEvent() bool {
	return q.head != nil
}
