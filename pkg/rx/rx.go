// Package rx provides the push-based streams and one-shot futures that the
// client contract speaks and the bindings adapt into state.
//
// An Observable emits zero or more values followed by at most one terminal
// event (error or completion). Subscribing returns a Subscription; calling
// Unsubscribe stops delivery and releases whatever the source holds. Sources
// are allowed to emit synchronously from inside Subscribe, which the bindings
// rely on to render a replacement stream's first value before releasing the
// stream it replaces.
package rx

import (
	"context"
	"sync"
	"sync/atomic"
)

// Observer receives the events of a single subscription.
// Any of the callbacks may be nil.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// Subscription is an active link between an Observable and an Observer.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Observable is a push-based stream of values.
type Observable[T any] interface {
	Subscribe(o Observer[T]) Subscription
}

// Future is a one-shot asynchronous computation.
type Future[T any] func(ctx context.Context) (T, error)

type funcSubscription struct {
	once sync.Once
	fn   func()
}

// NewSubscription wraps fn so that it runs at most once.
func NewSubscription(fn func()) Subscription {
	return &funcSubscription{fn: fn}
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}

// Func adapts a subscribe function to Observable.
//
// The observer handed to the function is guarded: once a terminal event has
// been delivered or the subscription was released, further events are
// dropped.
type Func[T any] func(o Observer[T]) Subscription

func (f Func[T]) Subscribe(o Observer[T]) Subscription {
	g := &guard[T]{o: o}
	inner := f(g.observer())
	return NewSubscription(func() {
		g.stop()
		if inner != nil {
			inner.Unsubscribe()
		}
	})
}

type guard[T any] struct {
	done atomic.Bool
	o    Observer[T]
}

func (g *guard[T]) observer() Observer[T] {
	return Observer[T]{Next: g.next, Error: g.error, Complete: g.complete}
}

func (g *guard[T]) stop() {
	g.done.Store(true)
}

func (g *guard[T]) next(v T) {
	if g.done.Load() || g.o.Next == nil {
		return
	}
	g.o.Next(v)
}

func (g *guard[T]) error(err error) {
	if g.done.Swap(true) || g.o.Error == nil {
		return
	}
	g.o.Error(err)
}

func (g *guard[T]) complete() {
	if g.done.Swap(true) || g.o.Complete == nil {
		return
	}
	g.o.Complete()
}

// Of emits the given values synchronously and completes.
func Of[T any](values ...T) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		for _, v := range values {
			o.Next(v)
		}
		o.Complete()
		return nil
	})
}

// Empty completes without emitting.
func Empty[T any]() Observable[T] {
	return Of[T]()
}

// Throw fails immediately with err.
func Throw[T any](err error) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		o.Error(err)
		return nil
	})
}

// FromFuture runs f once per subscription on its own goroutine, emits the
// result and completes.
//
// Unsubscribing suppresses delivery but never cancels ctx: the future's side
// effects still happen.
func FromFuture[T any](ctx context.Context, f Future[T]) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		go func() {
			v, err := f(ctx)
			if err != nil {
				o.Error(err)
				return
			}
			o.Next(v)
			o.Complete()
		}()
		return nil
	})
}

// SwitchFuture runs f and then mirrors the observable that fn derives from its
// result.
func SwitchFuture[T, U any](ctx context.Context, f Future[T], fn func(T) Observable[U]) Observable[U] {
	return Func[U](func(o Observer[U]) Subscription {
		var (
			mu       sync.Mutex
			inner    Subscription
			released bool
		)
		go func() {
			v, err := f(ctx)
			if err != nil {
				o.Error(err)
				return
			}
			sub := fn(v).Subscribe(o)
			mu.Lock()
			if released {
				mu.Unlock()
				sub.Unsubscribe()
				return
			}
			inner = sub
			mu.Unlock()
		}()
		return NewSubscription(func() {
			mu.Lock()
			released = true
			sub := inner
			mu.Unlock()
			if sub != nil {
				sub.Unsubscribe()
			}
		})
	})
}

// FromChannel forwards every value received on ch and completes when ch is
// closed.
func FromChannel[T any](ch <-chan T) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		quit := make(chan struct{})
		go func() {
			for {
				select {
				case <-quit:
					return
				case v, ok := <-ch:
					if !ok {
						o.Complete()
						return
					}
					o.Next(v)
				}
			}
		}()
		return NewSubscription(func() { close(quit) })
	})
}

// Map transforms every value of src.
func Map[T, U any](src Observable[T], fn func(T) U) Observable[U] {
	return Func[U](func(o Observer[U]) Subscription {
		return src.Subscribe(Observer[T]{
			Next:     func(v T) { o.Next(fn(v)) },
			Error:    o.Error,
			Complete: o.Complete,
		})
	})
}

// Tap calls fn for every value before passing it on unchanged.
func Tap[T any](src Observable[T], fn func(T)) Observable[T] {
	return Map(src, func(v T) T {
		fn(v)
		return v
	})
}

// CombineLatest emits the latest value of every source once each of them has
// emitted at least once, and again on every later emission. It completes when
// all sources completed and fails on the first error.
func CombineLatest[T any](sources []Observable[T]) Observable[[]T] {
	return Func[[]T](func(o Observer[[]T]) Subscription {
		if len(sources) == 0 {
			o.Complete()
			return nil
		}

		var (
			mu        sync.Mutex
			values    = make([]T, len(sources))
			seen      = make([]bool, len(sources))
			pending   = len(sources)
			remaining = len(sources)
			subs      = make([]Subscription, 0, len(sources))
		)

		for i, src := range sources {
			i := i
			sub := src.Subscribe(Observer[T]{
				Next: func(v T) {
					mu.Lock()
					values[i] = v
					if !seen[i] {
						seen[i] = true
						pending--
					}
					if pending > 0 {
						mu.Unlock()
						return
					}
					out := make([]T, len(values))
					copy(out, values)
					mu.Unlock()
					o.Next(out)
				},
				Error: o.Error,
				Complete: func() {
					mu.Lock()
					remaining--
					done := remaining == 0
					mu.Unlock()
					if done {
						o.Complete()
					}
				},
			})
			subs = append(subs, sub)
		}

		return NewSubscription(func() {
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		})
	})
}
