package squid

import (
	"context"
	"fmt"
	"sync"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

// QueueOptions control a QueueBinding.
type QueueOptions struct {
	// Disabled pauses consumption. The queue handle stays usable for Produce.
	Disabled bool
}

// QueueBinding consumes a queue and produces to it. Data holds the last
// consumed message.
type QueueBinding struct {
	b *Binding[any]

	mu    sync.Mutex
	queue client.Queue
}

func NewQueueBinding(onChange func(State[any]), opts ...Option) *QueueBinding {
	cfg := newConfig("queue", opts)
	return &QueueBinding{b: NewBinding(onChange, append(opts, WithName(cfg.name))...)}
}

// Update consumes from queue. deps identify the queue: consumption is only
// restarted when they change or after the binding was disabled.
func (q *QueueBinding) Update(queue client.Queue, opts QueueOptions, deps ...any) State[any] {
	q.mu.Lock()
	q.queue = queue
	q.mu.Unlock()

	return q.b.Observe(queue.Consume, ObserveOptions[any]{Disabled: opts.Disabled}, deps...)
}

// Produce sends messages to the queue of the latest Update.
func (q *QueueBinding) Produce(ctx context.Context, messages ...any) error {
	q.mu.Lock()
	queue := q.queue
	q.mu.Unlock()
	if queue == nil {
		return fmt.Errorf("%w: produce before the queue is known", constants.ErrPrecondition)
	}
	return queue.Produce(ctx, messages)
}

func (q *QueueBinding) State() State[any] { return q.b.State() }
func (q *QueueBinding) Close()            { q.b.Close() }
