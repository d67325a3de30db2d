package squid

import (
	"fmt"
	"sync"

	"github.com/squidcloud/squid-go/internal/codec"
	"github.com/squidcloud/squid-go/pkg/logger"
	"github.com/squidcloud/squid-go/pkg/metrics"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// State is the snapshot a binding reports for a stream.
type State[T any] struct {
	Loading  bool
	Data     T
	Err      error
	Complete bool
}

// ObserveOptions control a single Observe call.
type ObserveOptions[T any] struct {
	// Disabled releases the current subscription and creates none.
	Disabled bool
	// InitialData is reported until the stream first emits.
	InitialData T
	// Warm reports InitialData as already loaded on the first subscription.
	Warm bool
}

// Binding adapts an observable stream into State.
//
// Call Observe on every update with the current factory and dependencies.
// The factory only runs when the dependencies differ from the previous
// subscription (or after the binding was disabled). Events of a replaced
// stream never reach the state.
type Binding[T any] struct {
	name   string
	log    logger.Logger
	notify *notifier[State[T]]

	mu      sync.Mutex
	state   State[T]
	seeded  bool
	started bool
	active  bool
	key     string
	gen     uint64
	sub     rx.Subscription
	closed  bool
}

// NewBinding returns a binding that calls onChange (which may be nil) after
// every state change.
func NewBinding[T any](onChange func(State[T]), opts ...Option) *Binding[T] {
	cfg := newConfig("observable", opts)
	return &Binding[T]{
		name:   cfg.name,
		log:    cfg.log,
		notify: newNotifier(onChange),
	}
}

// Observe subscribes to the observable factory returns, unless the binding is
// already subscribed with equal deps, and returns the current state.
func (b *Binding[T]) Observe(factory func() rx.Observable[T], opts ObserveOptions[T], deps ...any) State[T] {
	key := codec.Key(deps...)

	b.mu.Lock()
	if b.closed {
		s := b.state
		b.mu.Unlock()
		return s
	}
	if !b.seeded {
		b.seeded = true
		b.state = State[T]{Data: opts.InitialData, Loading: !opts.Warm && !opts.Disabled}
	}

	if opts.Disabled {
		old := b.detachLocked()
		s := b.state
		b.mu.Unlock()
		b.release(old, "disabled")
		return s
	}
	if b.active && b.key == key {
		s := b.state
		b.mu.Unlock()
		return s
	}

	loading := b.started || !opts.Warm
	if b.state.Loading != loading || b.state.Complete {
		b.state.Loading = loading
		b.state.Complete = false
		b.notify.push(b.state)
	}
	old := b.detachLocked()
	b.active = true
	b.key = key
	b.started = true
	gen := b.gen
	b.mu.Unlock()
	b.notify.flush()

	b.log.Debug("binding subscribing", "binding", b.name, "gen", gen)
	sub := b.subscribe(factory, gen)

	b.mu.Lock()
	if b.gen != gen || b.closed {
		b.mu.Unlock()
		sub.Unsubscribe()
	} else {
		b.sub = sub
		b.mu.Unlock()
	}
	b.release(old, "replaced")

	return b.State()
}

// detachLocked invalidates the current subscription and returns it for
// release.
func (b *Binding[T]) detachLocked() rx.Subscription {
	b.gen++
	b.active = false
	old := b.sub
	b.sub = nil
	return old
}

func (b *Binding[T]) release(sub rx.Subscription, reason string) {
	if sub == nil {
		return
	}
	b.log.Debug("binding releasing", "binding", b.name, "reason", reason)
	sub.Unsubscribe()
}

func (b *Binding[T]) subscribe(factory func() rx.Observable[T], gen uint64) (sub rx.Subscription) {
	metrics.SubscriptionOpened(b.name)
	var inner rx.Subscription
	sub = rx.NewSubscription(func() {
		if inner != nil {
			inner.Unsubscribe()
		}
		metrics.SubscriptionClosed(b.name)
	})

	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("binding factory panicked", "binding", b.name, "panic", r)
			b.apply(gen, metrics.EventError, func(s *State[T]) {
				s.Loading = false
				s.Err = fmt.Errorf("observable factory: %v", r)
			})
		}
	}()

	obs := factory()
	if obs == nil {
		obs = rx.Empty[T]()
	}
	inner = obs.Subscribe(rx.Observer[T]{
		Next: func(v T) {
			b.apply(gen, metrics.EventNext, func(s *State[T]) {
				*s = State[T]{Data: v}
			})
		},
		Error: func(err error) {
			b.log.Warn("binding stream failed", "binding", b.name, "error", err)
			b.apply(gen, metrics.EventError, func(s *State[T]) {
				s.Loading = false
				s.Err = err
			})
		},
		Complete: func() {
			b.apply(gen, metrics.EventComplete, func(s *State[T]) {
				s.Loading = false
				s.Complete = true
			})
		},
	})
	return sub
}

// apply mutates the state on behalf of subscription gen. Events of any other
// generation are dropped.
func (b *Binding[T]) apply(gen uint64, event string, fn func(*State[T])) {
	b.mu.Lock()
	if b.gen != gen || b.closed {
		b.mu.Unlock()
		return
	}
	fn(&b.state)
	b.notify.push(b.state)
	b.mu.Unlock()

	metrics.Event(b.name, event)
	b.notify.flush()
}

// State returns the current state.
func (b *Binding[T]) State() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Active reports whether a subscription is attached.
func (b *Binding[T]) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active && !b.closed
}

// Close releases the subscription. Later events and Observe calls are
// ignored.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	old := b.detachLocked()
	b.mu.Unlock()
	b.release(old, "closed")
}
