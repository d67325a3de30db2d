package rx

import "sync"

type subscriber[T any] struct {
	id uint64
	o  Observer[T]
}

// Subject is a multicast Observable that is also its own producer.
// Values pushed with Next reach every current subscriber in subscription order.
type Subject[T any] struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers []subscriber[T]
	done        bool
	err         error
}

// NewSubject returns a Subject without subscribers.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

func (s *Subject[T]) Subscribe(o Observer[T]) Subscription {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			if o.Error != nil {
				o.Error(err)
			}
		} else if o.Complete != nil {
			o.Complete()
		}
		return NewSubscription(nil)
	}
	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber[T]{id: id, o: o})
	s.mu.Unlock()

	return NewSubscription(func() { s.remove(id) })
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *Subject[T]) snapshot() []subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	out := make([]subscriber[T], len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

// Next pushes v to every subscriber.
func (s *Subject[T]) Next(v T) {
	for _, sub := range s.snapshot() {
		if sub.o.Next != nil {
			sub.o.Next(v)
		}
	}
}

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) {
	subs := s.terminate(err)
	for _, sub := range subs {
		if sub.o.Error != nil {
			sub.o.Error(err)
		}
	}
}

// Complete terminates the subject successfully.
func (s *Subject[T]) Complete() {
	subs := s.terminate(nil)
	for _, sub := range subs {
		if sub.o.Complete != nil {
			sub.o.Complete()
		}
	}
}

func (s *Subject[T]) terminate(err error) []subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.err = err
	subs := s.subscribers
	s.subscribers = nil
	return subs
}

// Observed reports the number of active subscribers.
func (s *Subject[T]) Observed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// BehaviorSubject is a Subject that remembers its latest value and replays it
// synchronously to every new subscriber. Emissions that race with the replay
// are delivered after it, in order.
type BehaviorSubject[T any] struct {
	Subject[T]
	value T
}

// NewBehaviorSubject returns a BehaviorSubject holding initial.
func NewBehaviorSubject[T any](initial T) *BehaviorSubject[T] {
	return &BehaviorSubject[T]{value: initial}
}

func (b *BehaviorSubject[T]) Subscribe(o Observer[T]) Subscription {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return b.Subject.Subscribe(o)
	}
	v := b.value
	r := &replay[T]{o: o, held: true}
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber[T]{id: id, o: r.observer()})
	b.mu.Unlock()

	if o.Next != nil {
		o.Next(v)
	}
	r.release()
	return NewSubscription(func() { b.remove(id) })
}

// Next stores v and pushes it to every subscriber.
func (b *BehaviorSubject[T]) Next(v T) {
	b.mu.Lock()
	b.value = v
	if b.done {
		b.mu.Unlock()
		return
	}
	subs := make([]subscriber[T], len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.o.Next(v)
	}
}

// Value returns the latest value.
func (b *BehaviorSubject[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// replay queues the events of one observer until its replayed value has
// been delivered.
type replay[T any] struct {
	o Observer[T]

	mu      sync.Mutex
	held    bool
	pending []func()
}

func (r *replay[T]) observer() Observer[T] {
	return Observer[T]{
		Next: func(v T) {
			if r.o.Next != nil {
				r.run(func() { r.o.Next(v) })
			}
		},
		Error: func(err error) {
			if r.o.Error != nil {
				r.run(func() { r.o.Error(err) })
			}
		},
		Complete: func() {
			if r.o.Complete != nil {
				r.run(r.o.Complete)
			}
		},
	}
}

func (r *replay[T]) run(fn func()) {
	r.mu.Lock()
	if r.held {
		r.pending = append(r.pending, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

func (r *replay[T]) release() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.held = false
			r.mu.Unlock()
			return
		}
		fns := r.pending
		r.pending = nil
		r.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}
