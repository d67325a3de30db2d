package rx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectMulticast(t *testing.T) {
	s := NewSubject[int]()
	var order []string
	s.Subscribe(Observer[int]{Next: func(v int) { order = append(order, "a") }})
	sub := s.Subscribe(Observer[int]{Next: func(v int) { order = append(order, "b") }})

	s.Next(1)
	sub.Unsubscribe()
	s.Next(2)

	assert.Equal(t, []string{"a", "b", "a"}, order)
	assert.Equal(t, 1, s.Observed())
}

func TestSubjectReplaysTerminal(t *testing.T) {
	boom := errors.New("boom")
	s := NewSubject[int]()
	s.Error(boom)

	var got error
	s.Subscribe(Observer[int]{Error: func(err error) { got = err }})
	assert.ErrorIs(t, got, boom)

	c := NewSubject[int]()
	c.Complete()
	completed := false
	c.Subscribe(Observer[int]{Complete: func() { completed = true }})
	assert.True(t, completed)
	assert.Equal(t, 0, c.Observed())
}

func TestSubjectIgnoresEventsAfterTerminal(t *testing.T) {
	s := NewSubject[int]()
	var values []int
	completions := 0
	s.Subscribe(Observer[int]{
		Next:     func(v int) { values = append(values, v) },
		Complete: func() { completions++ },
	})

	s.Complete()
	s.Complete()
	s.Next(1)

	assert.Empty(t, values)
	assert.Equal(t, 1, completions)
}

func TestBehaviorSubject(t *testing.T) {
	b := NewBehaviorSubject("a")
	var first, second []string
	b.Subscribe(Observer[string]{Next: func(v string) { first = append(first, v) }})
	b.Next("b")
	b.Subscribe(Observer[string]{Next: func(v string) { second = append(second, v) }})
	b.Next("c")

	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, []string{"b", "c"}, second)
	assert.Equal(t, "c", b.Value())
}

func TestBehaviorSubjectKeepsEmissionsDuringReplay(t *testing.T) {
	b := NewBehaviorSubject(0)
	var seen []int
	b.Subscribe(Observer[int]{Next: func(v int) {
		seen = append(seen, v)
		if v == 0 {
			done := make(chan struct{})
			go func() {
				b.Next(1)
				b.Next(2)
				close(done)
			}()
			<-done
		}
	}})

	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, 2, b.Value())
}

func TestBehaviorSubjectHoldsTerminalUntilReplayed(t *testing.T) {
	b := NewBehaviorSubject("a")
	var events []string
	b.Subscribe(Observer[string]{
		Next: func(v string) {
			events = append(events, v)
			if v == "a" {
				done := make(chan struct{})
				go func() {
					b.Next("b")
					b.Complete()
					close(done)
				}()
				<-done
			}
		},
		Complete: func() { events = append(events, "complete") },
	})

	assert.Equal(t, []string{"a", "b", "complete"}, events)
}
