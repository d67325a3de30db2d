package squid

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidcloud/squid-go/pkg/metrics"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// leaky hands out its observer without any guard, so events can still be
// pushed after the subscription was released.
type leaky[T any] struct {
	mu sync.Mutex
	o  rx.Observer[T]
}

func (l *leaky[T]) Subscribe(o rx.Observer[T]) rx.Subscription {
	l.mu.Lock()
	l.o = o
	l.mu.Unlock()
	return rx.NewSubscription(nil)
}

func (l *leaky[T]) next(v T) {
	l.mu.Lock()
	o := l.o
	l.mu.Unlock()
	o.Next(v)
}

func TestBindingFirstSubscription(t *testing.T) {
	var rec recorder[State[string]]
	b := NewBinding(rec.add)
	s := rx.NewSubject[string]()

	st := b.Observe(func() rx.Observable[string] { return s }, ObserveOptions[string]{InitialData: "init"})
	assert.True(t, st.Loading)
	assert.Equal(t, "init", st.Data)
	assert.Equal(t, 1, s.Observed())

	s.Next("a")
	assert.Equal(t, State[string]{Data: "a"}, rec.last())
	assert.Equal(t, State[string]{Data: "a"}, b.State())
}

func TestBindingWarmStart(t *testing.T) {
	b := NewBinding[string](nil)
	st := b.Observe(func() rx.Observable[string] { return rx.NewSubject[string]() },
		ObserveOptions[string]{InitialData: "cached", Warm: true})

	assert.False(t, st.Loading)
	assert.Equal(t, "cached", st.Data)
}

func TestBindingEqualDepsKeepSubscription(t *testing.T) {
	calls := 0
	b := NewBinding[int](nil)
	factory := func() rx.Observable[int] {
		calls++
		return rx.NewSubject[int]()
	}

	b.Observe(factory, ObserveOptions[int]{}, map[string]any{"a": 1, "b": []string{"x"}}, "q")
	b.Observe(factory, ObserveOptions[int]{}, map[string]any{"b": []string{"x"}, "a": 1}, "q")
	b.Observe(factory, ObserveOptions[int]{}, map[string]any{"a": 1, "b": []string{"x"}}, "q")
	assert.Equal(t, 1, calls)

	b.Observe(factory, ObserveOptions[int]{}, map[string]any{"a": 2, "b": []string{"x"}}, "q")
	assert.Equal(t, 2, calls)
}

func TestBindingResubscribePreservesData(t *testing.T) {
	var rec recorder[State[string]]
	b := NewBinding(rec.add, WithName("test_resubscribe"))
	s1, s2 := rx.NewSubject[string](), rx.NewSubject[string]()

	b.Observe(func() rx.Observable[string] { return s1 }, ObserveOptions[string]{}, 1)
	s1.Next("a")
	s1.Complete()
	require.True(t, b.State().Complete)

	st := b.Observe(func() rx.Observable[string] { return s2 }, ObserveOptions[string]{}, 2)
	assert.Equal(t, State[string]{Loading: true, Data: "a"}, st)
	assert.Equal(t, 0, s1.Observed())
	assert.Equal(t, 1, s2.Observed())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveSubscriptions("test_resubscribe")))

	s2.Next("b")
	assert.Equal(t, State[string]{Data: "b"}, b.State())
}

func TestBindingReplaceThenRelease(t *testing.T) {
	var (
		mu  sync.Mutex
		log []string
	)
	record := func(e string) {
		mu.Lock()
		log = append(log, e)
		mu.Unlock()
	}

	b := NewBinding(func(s State[string]) {
		if !s.Loading {
			record("render " + s.Data)
		}
	})
	stream := func(name string) rx.Observable[string] {
		return rx.Func[string](func(o rx.Observer[string]) rx.Subscription {
			o.Next(name)
			return rx.NewSubscription(func() { record("release " + name) })
		})
	}

	b.Observe(func() rx.Observable[string] { return stream("a") }, ObserveOptions[string]{}, "a")
	b.Observe(func() rx.Observable[string] { return stream("b") }, ObserveOptions[string]{}, "b")

	assert.Equal(t, []string{"render a", "render b", "release a"}, log)
}

func TestBindingDropsLateEvents(t *testing.T) {
	old := &leaky[string]{}
	b := NewBinding[string](nil)

	b.Observe(func() rx.Observable[string] { return old }, ObserveOptions[string]{}, 1)
	old.next("a")
	b.Observe(func() rx.Observable[string] { return rx.NewSubject[string]() }, ObserveOptions[string]{}, 2)
	old.next("late")

	assert.Equal(t, State[string]{Loading: true, Data: "a"}, b.State())
}

func TestBindingErrorFreezesData(t *testing.T) {
	boom := errors.New("boom")
	b := NewBinding[string](nil)
	s := rx.NewSubject[string]()

	b.Observe(func() rx.Observable[string] { return s }, ObserveOptions[string]{})
	s.Next("a")
	s.Error(boom)

	st := b.State()
	assert.False(t, st.Loading)
	assert.Equal(t, "a", st.Data)
	assert.ErrorIs(t, st.Err, boom)
	assert.False(t, st.Complete)
}

func TestBindingCompletionKeepsData(t *testing.T) {
	b := NewBinding[int](nil)
	b.Observe(func() rx.Observable[int] { return rx.Of(1, 2) }, ObserveOptions[int]{})

	assert.Equal(t, State[int]{Data: 2, Complete: true}, b.State())
}

func TestBindingDisabled(t *testing.T) {
	calls := 0
	var subject *rx.Subject[string]
	factory := func() rx.Observable[string] {
		calls++
		subject = rx.NewSubject[string]()
		return subject
	}
	b := NewBinding[string](nil)

	st := b.Observe(factory, ObserveOptions[string]{Disabled: true, InitialData: "x"}, "k")
	assert.Equal(t, 0, calls)
	assert.False(t, st.Loading)
	assert.Equal(t, "x", st.Data)
	assert.False(t, b.Active())

	b.Observe(factory, ObserveOptions[string]{}, "k")
	require.Equal(t, 1, calls)
	first := subject
	first.Next("a")

	st = b.Observe(factory, ObserveOptions[string]{Disabled: true}, "k")
	assert.Equal(t, 0, first.Observed())
	assert.Equal(t, State[string]{Data: "a"}, st)

	b.Observe(factory, ObserveOptions[string]{}, "k")
	assert.Equal(t, 2, calls)
	assert.NotSame(t, first, subject)
	assert.Equal(t, 1, subject.Observed())
	assert.True(t, b.State().Loading)
}

func TestBindingRecoversFactoryPanic(t *testing.T) {
	b := NewBinding[string](nil)
	var st State[string]
	require.NotPanics(t, func() {
		st = b.Observe(func() rx.Observable[string] { panic("no agent") }, ObserveOptions[string]{})
	})

	assert.False(t, st.Loading)
	assert.ErrorContains(t, st.Err, "no agent")
}

func TestBindingNilObservableCompletes(t *testing.T) {
	b := NewBinding[string](nil)
	st := b.Observe(func() rx.Observable[string] { return nil }, ObserveOptions[string]{})

	assert.True(t, st.Complete)
}

func TestBindingClose(t *testing.T) {
	var rec recorder[State[string]]
	b := NewBinding(rec.add)
	s := rx.NewSubject[string]()
	b.Observe(func() rx.Observable[string] { return s }, ObserveOptions[string]{})
	s.Next("a")
	n := rec.len()

	b.Close()
	b.Close()
	assert.Equal(t, 0, s.Observed())

	s.Next("b")
	calls := 0
	b.Observe(func() rx.Observable[string] { calls++; return s }, ObserveOptions[string]{}, "other")

	assert.Equal(t, 0, calls)
	assert.Equal(t, n, rec.len())
	assert.Equal(t, "a", b.State().Data)
}

func TestBindingReentrantOnChangeKeepsOrder(t *testing.T) {
	var rec recorder[State[string]]
	var b *Binding[string]
	b = NewBinding(func(s State[string]) {
		rec.add(s)
		if s.Data == "go" && !s.Loading {
			b.Observe(func() rx.Observable[string] { return rx.Of("done") }, ObserveOptions[string]{}, 2)
		}
	})
	s := rx.NewSubject[string]()
	b.Observe(func() rx.Observable[string] { return s }, ObserveOptions[string]{}, 1)
	s.Next("go")

	assert.Equal(t, []State[string]{
		{Data: "go"},
		{Data: "go", Loading: true},
		{Data: "done"},
		{Data: "done", Complete: true},
	}, rec.all())
}

func TestBindingConcurrentEmissions(t *testing.T) {
	var rec recorder[State[int]]
	b := NewBinding(rec.add)
	s := rx.NewSubject[int]()
	b.Observe(func() rx.Observable[int] { return s }, ObserveOptions[int]{})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				s.Next(i*100 + j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, rec.len())
	assert.Equal(t, rec.last(), b.State())
}
