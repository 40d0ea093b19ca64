// Package queue bounds the number of concurrent downloads and tells waiting
// clients where they stand.
//
// A ticket id is either waiting (FIFO), active (admitted or downloading), or
// unknown to the queue. The position of an id is
//
//	index in waiting + len(active) - limit
//
// and an id is admitted when its position is negative. An id that is not
// waiting is evaluated as if appended to the end of the queue.
package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyWaiting is returned when a second waiter registers for an id.
var ErrAlreadyWaiting = errors.New("already waiting")

// Status is what a waiter is told.
type Status struct {
	Position  int  `json:"position"`
	Available bool `json:"available"`
}

// Stats is a snapshot for health endpoints.
type Stats struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Limit   int `json:"limit"`
}

// Queue is safe for concurrent use. Every read-modify-write happens under mu,
// which makes check-and-admit a single serialization point.
type Queue struct {
	mu        sync.Mutex
	limit     int
	hold      time.Duration
	waiting   []string
	active    map[string]time.Time // zero: no expiry
	listeners map[string]chan struct{}
	now       func() time.Time
}

// New creates a queue admitting up to limit concurrent ids. An id admitted
// from the waiting list keeps its slot for hold before its download has to
// start; zero keeps it until Release.
func New(limit int, hold time.Duration) *Queue {
	return &Queue{
		limit:     limit,
		hold:      hold,
		active:    make(map[string]time.Time),
		listeners: make(map[string]chan struct{}),
		now:       time.Now,
	}
}

// Position recomputes the position of id.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	return q.position(id)
}

func (q *Queue) position(id string) int {
	idx := q.index(id)
	if idx < 0 {
		idx = len(q.waiting)
	}
	return idx + len(q.active) - q.limit
}

func (q *Queue) index(id string) int {
	for i, w := range q.waiting {
		if w == id {
			return i
		}
	}
	return -1
}

// Enqueue appends id to the waiting list and returns its notification
// channel. The channel receives a value after every change that may move id.
func (q *Queue) Enqueue(id string) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.enqueue(id)
}

func (q *Queue) enqueue(id string) (<-chan struct{}, error) {
	if q.index(id) >= 0 {
		return nil, ErrAlreadyWaiting
	}
	ch := make(chan struct{}, 1)
	q.waiting = append(q.waiting, id)
	q.listeners[id] = ch
	return ch, nil
}

// Admit is check-and-admit: when id's position is negative it leaves the
// waiting list and takes an active slot.
func (q *Queue) Admit(id string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.admit(id)
}

func (q *Queue) admit(id string) Status {
	q.prune()
	pos := q.position(id)
	if pos >= 0 {
		return Status{Position: pos}
	}
	q.remove(id)
	var deadline time.Time
	if q.hold > 0 {
		deadline = q.now().Add(q.hold)
	}
	q.active[id] = deadline
	return Status{Position: pos, Available: true}
}

// Leave removes id from the waiting list. It is safe to call for ids that
// are not waiting.
func (q *Queue) Leave(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.remove(id) {
		q.broadcast()
	}
}

func (q *Queue) remove(id string) bool {
	delete(q.listeners, id)
	idx := q.index(id)
	if idx < 0 {
		return false
	}
	q.waiting = append(q.waiting[:idx], q.waiting[idx+1:]...)
	return true
}

// Acquire marks id as downloading. An admitted id keeps its slot; others
// take a new one.
func (q *Queue) Acquire(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.remove(id)
	_, had := q.active[id]
	q.active[id] = time.Time{}
	if !had {
		q.broadcast()
	}
}

// Release frees the slot held by id and wakes every waiter.
func (q *Queue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[id]; ok {
		delete(q.active, id)
		q.broadcast()
	}
}

// Stats returns the current sizes.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	return Stats{Waiting: len(q.waiting), Active: len(q.active), Limit: q.limit}
}

// broadcast wakes all listeners without blocking. A listener that has not
// consumed its previous signal still has one pending, which is enough.
func (q *Queue) broadcast() {
	for _, ch := range q.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// prune drops admissions whose download never started.
func (q *Queue) prune() {
	now := q.now()
	expired := false
	for id, deadline := range q.active {
		if !deadline.IsZero() && now.After(deadline) {
			delete(q.active, id)
			expired = true
		}
	}
	if expired {
		q.broadcast()
	}
}
