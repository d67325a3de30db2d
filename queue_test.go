package squid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidcloud/squid-go/pkg/constants"
)

func TestQueueBindingConsumesAndProduces(t *testing.T) {
	ctx, c := newFakeContext(t)
	fq := c.Q("orders", "")

	var rec recorder[State[any]]
	q := NewQueueBinding(rec.add)
	defer q.Close()

	st := q.Update(c.Queue("orders", ""), QueueOptions{}, "orders")
	assert.True(t, st.Loading)
	assert.Equal(t, 1, fq.Consumers())

	require.NoError(t, q.Produce(ctx, "a", "b"))
	assert.Equal(t, []any{"a", "b"}, fq.Produced())
	assert.Equal(t, State[any]{Data: "b"}, q.State())
	assert.Equal(t, 2, rec.len())
}

func TestQueueBindingPauseKeepsProducing(t *testing.T) {
	ctx, c := newFakeContext(t)
	fq := c.Q("orders", "")

	q := NewQueueBinding(nil)
	defer q.Close()
	q.Update(fq, QueueOptions{}, "orders")
	require.NoError(t, q.Produce(ctx, 1))

	q.Update(fq, QueueOptions{Disabled: true}, "orders")
	assert.Equal(t, 0, fq.Consumers())
	require.NoError(t, q.Produce(ctx, 2))
	assert.Equal(t, 1, q.State().Data)

	q.Update(fq, QueueOptions{}, "orders")
	assert.Equal(t, 1, fq.Consumers())
	require.NoError(t, q.Produce(ctx, 3))
	assert.Equal(t, 3, q.State().Data)
}

func TestQueueBindingProduceErrors(t *testing.T) {
	ctx, c := newFakeContext(t)

	q := NewQueueBinding(nil)
	defer q.Close()
	assert.ErrorIs(t, q.Produce(ctx, "early"), constants.ErrPrecondition)

	fq := c.Q("orders", "")
	q.Update(fq, QueueOptions{}, "orders")
	boom := errors.New("queue full")
	fq.FailNext(boom)
	assert.ErrorIs(t, q.Produce(context.Background(), "x"), boom)
}
