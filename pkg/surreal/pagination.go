package surreal

import (
	"context"
	"sync"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// pagination pages through a query by offset. Each page fetch asks for one
// extra row to learn whether a next page exists.
type pagination struct {
	q      *query
	size   int
	state  *rx.BehaviorSubject[client.PaginationState]
	ctx    context.Context
	cancel context.CancelFunc
	live   rx.Subscription
	fetch  *refresher

	mu      sync.Mutex
	page    int
	loading bool
	hasNext bool
	closed  bool
}

func newPagination(q *query, opts client.PaginationOptions) *pagination {
	size := opts.PageSize
	if size <= 0 {
		size = constants.DefaultPageSize
	}
	ctx, cancel := context.WithCancel(q.c.ctx)
	p := &pagination{
		q:       q,
		size:    size,
		state:   rx.NewBehaviorSubject(client.PaginationState{IsLoading: true}),
		ctx:     ctx,
		cancel:  cancel,
		loading: true,
	}
	p.fetch = newRefresher(ctx, p.load)

	if opts.Subscribe {
		table, err := tableName(q.desc.Collection, q.desc.IntegrationID)
		if err != nil {
			p.state.Error(err)
			return p
		}
		p.live = q.c.hub.watch(table).Subscribe(rx.Observer[Change]{
			Next:  func(Change) { p.fetch.trigger() },
			Error: p.fail,
		})
	}
	p.fetch.trigger()
	return p
}

func (p *pagination) load(ctx context.Context) {
	p.mu.Lock()
	page := p.page
	p.mu.Unlock()

	rows, err := p.q.fetch(ctx, &window{Start: page * p.size, Limit: p.size + 1})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.fail(err)
		return
	}

	hasNext := len(rows) > p.size
	if hasNext {
		rows = rows[:p.size]
	}

	p.mu.Lock()
	if p.closed || p.page != page {
		p.mu.Unlock()
		return
	}
	p.loading = false
	p.hasNext = hasNext
	p.mu.Unlock()

	p.state.Next(client.PaginationState{
		Data:    rows,
		HasNext: hasNext,
		HasPrev: page > 0,
	})
}

func (p *pagination) fail(err error) {
	p.q.c.log.Warn("pagination failed", "collection", p.q.desc.Collection, "error", err)
	p.state.Error(err)
	p.cancel()
}

func (p *pagination) ObserveState() rx.Observable[client.PaginationState] {
	return p.state
}

func (p *pagination) Next() {
	p.move(1)
}

func (p *pagination) Prev() {
	p.move(-1)
}

// move is ignored while a page loads. Past either end the current page is
// emitted again so observers waiting for a state change settle.
func (p *pagination) move(delta int) {
	p.mu.Lock()
	if p.closed || p.loading {
		p.mu.Unlock()
		return
	}
	if (delta > 0 && !p.hasNext) || p.page+delta < 0 {
		p.mu.Unlock()
		p.state.Next(p.state.Value())
		return
	}
	p.page += delta
	p.loading = true
	p.mu.Unlock()

	p.state.Next(client.PaginationState{IsLoading: true})
	p.fetch.trigger()
}

func (p *pagination) Unsubscribe() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if p.live != nil {
		p.live.Unsubscribe()
	}
	p.state.Complete()
}
