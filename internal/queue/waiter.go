package queue

import "sync"

// Waiter is one registered wait connection. Leave must run on every exit
// path of the connection handler.
type Waiter struct {
	q      *Queue
	id     string
	notify <-chan struct{}
	once   sync.Once
}

// Join reports the status of id and, unless it is admitted on the spot,
// registers it as a waiter. Registering an id that already has a waiter
// fails with ErrAlreadyWaiting.
func (q *Queue) Join(id string) (*Waiter, Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.index(id) >= 0 {
		return nil, Status{}, ErrAlreadyWaiting
	}
	w := &Waiter{q: q, id: id}
	if st := q.admit(id); st.Available {
		w.once.Do(func() {})
		return w, st, nil
	}
	ch, err := q.enqueue(id)
	if err != nil {
		return nil, Status{}, err
	}
	w.notify = ch
	return w, Status{Position: q.position(id)}, nil
}

// C fires whenever the waiter should call Poll. It is nil for waiters
// admitted by Join.
func (w *Waiter) C() <-chan struct{} { return w.notify }

// Poll re-evaluates the waiter and admits it when possible.
func (w *Waiter) Poll() Status {
	return w.q.Admit(w.id)
}

// Leave deregisters the waiter. Safe to call more than once and after
// admission.
func (w *Waiter) Leave() {
	if w == nil {
		return
	}
	w.once.Do(func() { w.q.Leave(w.id) })
}
