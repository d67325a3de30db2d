package squid

import (
	"context"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// QueryOptions control a QueryBinding.
type QueryOptions struct {
	// Subscribe follows every change instead of fetching once.
	Subscribe bool
	Disabled  bool
	// InitialData, when not nil, is reported as already loaded instead of
	// peeking the local cache.
	InitialData []client.DocumentData
}

// QueryBinding follows the results of a query.
type QueryBinding struct {
	ctx context.Context
	b   *Binding[[]client.DocumentData]
}

func NewQueryBinding(onChange func(State[[]client.DocumentData]), opts ...Option) *QueryBinding {
	cfg := newConfig("query", opts)
	return &QueryBinding{
		ctx: cfg.ctx,
		b:   NewBinding(onChange, append(opts, WithName(cfg.name))...),
	}
}

// Update points the binding at query. Queries are compared by their
// serialized form, so rebuilding an equal query on every update keeps the
// existing subscription. deps force a new subscription when they change.
func (q *QueryBinding) Update(query client.Query, opts QueryOptions, deps ...any) State[[]client.DocumentData] {
	initial, warm := opts.InitialData, opts.InitialData != nil
	if !warm {
		initial = peekQuery(query)
	}

	key := append([]any{query.Serialize(), opts.Subscribe}, deps...)
	return q.b.Observe(func() rx.Observable[[]client.DocumentData] {
		if opts.Subscribe {
			return query.Snapshots()
		}
		return rx.FromFuture(q.ctx, query.Snapshot)
	}, ObserveOptions[[]client.DocumentData]{
		Disabled:    opts.Disabled,
		InitialData: initial,
		Warm:        warm,
	}, key...)
}

func (q *QueryBinding) State() State[[]client.DocumentData] { return q.b.State() }
func (q *QueryBinding) Close()                               { q.b.Close() }

// peekQuery reads the local cache and never fails: a miss or a panicking
// implementation yields an empty list.
func peekQuery(query client.Query) (docs []client.DocumentData) {
	defer func() {
		if recover() != nil {
			docs = []client.DocumentData{}
		}
	}()
	docs, ok := query.Peek()
	if !ok || docs == nil {
		return []client.DocumentData{}
	}
	return docs
}
