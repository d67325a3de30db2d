package squid

import (
	"context"

	"github.com/squidcloud/squid-go/pkg/rx"
)

// PromiseState is the snapshot a PromiseBinding reports.
type PromiseState[T any] struct {
	Loading bool
	Data    T
	Err     error
}

// PromiseOptions control a single Await call.
type PromiseOptions[T any] struct {
	Disabled    bool
	InitialData T
	Warm        bool
}

// PromiseBinding adapts one-shot futures into PromiseState. A new future
// runs whenever the dependencies change; the result of a superseded future
// is dropped.
type PromiseBinding[T any] struct {
	ctx context.Context
	b   *Binding[T]
}

// NewPromiseBinding returns a binding that calls onChange (which may be nil)
// after every state change.
func NewPromiseBinding[T any](onChange func(PromiseState[T]), opts ...Option) *PromiseBinding[T] {
	cfg := newConfig("promise", opts)
	var forward func(State[T])
	if onChange != nil {
		forward = func(s State[T]) {
			// completion always follows the emission and changes nothing visible
			if s.Complete {
				return
			}
			onChange(promiseState(s))
		}
	}
	return &PromiseBinding[T]{
		ctx: cfg.ctx,
		b:   NewBinding(forward, append(opts, WithName(cfg.name))...),
	}
}

// Await runs fn unless a future with equal deps already ran, and returns the
// current state.
func (p *PromiseBinding[T]) Await(fn rx.Future[T], opts PromiseOptions[T], deps ...any) PromiseState[T] {
	s := p.b.Observe(func() rx.Observable[T] {
		return rx.FromFuture(p.ctx, fn)
	}, ObserveOptions[T]{
		Disabled:    opts.Disabled,
		InitialData: opts.InitialData,
		Warm:        opts.Warm,
	}, deps...)
	return promiseState(s)
}

func (p *PromiseBinding[T]) State() PromiseState[T] {
	return promiseState(p.b.State())
}

// Close drops the result of any pending future. The future itself keeps
// running.
func (p *PromiseBinding[T]) Close() {
	p.b.Close()
}

func promiseState[T any](s State[T]) PromiseState[T] {
	return PromiseState[T]{Loading: s.Loading, Data: s.Data, Err: s.Err}
}
