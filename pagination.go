package squid

import (
	"sync"

	"github.com/squidcloud/squid-go/internal/codec"
	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/logger"
	"github.com/squidcloud/squid-go/pkg/metrics"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// PaginationState is what a PaginationBinding reports. While Loading,
// HasNext and HasPrev are false.
type PaginationState struct {
	Loading bool
	Data    []client.DocumentData
	HasNext bool
	HasPrev bool
	Err     error
}

// PaginationBinding pages through the results of a query.
type PaginationBinding struct {
	name   string
	log    logger.Logger
	notify *notifier[PaginationState]

	mu     sync.Mutex
	state  PaginationState
	active bool
	key    string
	gen    uint64
	handle client.Pagination
	sub    rx.Subscription
	closed bool
}

func NewPaginationBinding(onChange func(PaginationState), opts ...Option) *PaginationBinding {
	cfg := newConfig("pagination", opts)
	return &PaginationBinding{
		name:   cfg.name,
		log:    cfg.log,
		notify: newNotifier(onChange),
		state:  PaginationState{Loading: true, Data: []client.DocumentData{}},
	}
}

// Update paginates query with opts. A new pagination handle is created when
// the serialized query, the options or deps change; the previous handle is
// released after the new one is attached.
func (p *PaginationBinding) Update(query client.Query, opts client.PaginationOptions, deps ...any) PaginationState {
	key := codec.Key(query.Serialize(), opts, deps)

	p.mu.Lock()
	if p.closed || (p.active && p.key == key) {
		s := p.state
		p.mu.Unlock()
		return s
	}
	p.gen++
	gen := p.gen
	p.active = true
	p.key = key
	oldHandle, oldSub := p.handle, p.sub
	p.handle, p.sub = nil, nil
	p.enterLoadingLocked()
	p.mu.Unlock()
	p.notify.flush()

	p.log.Debug("pagination subscribing", "binding", p.name, "pageSize", opts.PageSize, "subscribe", opts.Subscribe)
	metrics.SubscriptionOpened(p.name)
	handle := query.Paginate(opts)
	sub := handle.ObserveState().Subscribe(rx.Observer[client.PaginationState]{
		Next: func(st client.PaginationState) {
			p.apply(gen, metrics.EventNext, func(s *PaginationState) {
				if st.IsLoading {
					s.Loading = true
					s.HasNext = false
					s.HasPrev = false
					return
				}
				*s = PaginationState{Data: st.Data, HasNext: st.HasNext, HasPrev: st.HasPrev}
			})
		},
		Error: func(err error) {
			p.log.Warn("pagination failed", "binding", p.name, "error", err)
			p.apply(gen, metrics.EventError, func(s *PaginationState) {
				s.Loading = false
				s.Err = err
			})
		},
	})

	p.mu.Lock()
	if p.gen != gen || p.closed {
		p.mu.Unlock()
		releasePagination(p.name, handle, sub)
	} else {
		p.handle, p.sub = handle, sub
		p.mu.Unlock()
	}
	releasePagination(p.name, oldHandle, oldSub)

	return p.State()
}

func (p *PaginationBinding) enterLoadingLocked() {
	if p.state.Loading && !p.state.HasNext && !p.state.HasPrev {
		return
	}
	p.state.Loading = true
	p.state.HasNext = false
	p.state.HasPrev = false
	p.notify.push(p.state)
}

func (p *PaginationBinding) apply(gen uint64, event string, fn func(*PaginationState)) {
	p.mu.Lock()
	if p.gen != gen || p.closed {
		p.mu.Unlock()
		return
	}
	fn(&p.state)
	p.notify.push(p.state)
	p.mu.Unlock()

	metrics.Event(p.name, event)
	p.notify.flush()
}

// Next moves to the next page. It does nothing while a page is loading or
// after the pagination failed, and reports whether the move was requested.
func (p *PaginationBinding) Next() bool {
	return p.move(client.Pagination.Next)
}

// Prev moves to the previous page, like Next.
func (p *PaginationBinding) Prev() bool {
	return p.move(client.Pagination.Prev)
}

func (p *PaginationBinding) move(fn func(client.Pagination)) bool {
	p.mu.Lock()
	if p.closed || p.handle == nil || p.state.Loading || p.state.Err != nil {
		p.mu.Unlock()
		return false
	}
	handle := p.handle
	p.enterLoadingLocked()
	p.mu.Unlock()
	p.notify.flush()

	fn(handle)
	return true
}

func (p *PaginationBinding) State() PaginationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close releases the pagination handle.
func (p *PaginationBinding) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	handle, sub := p.handle, p.sub
	p.handle, p.sub = nil, nil
	p.mu.Unlock()
	releasePagination(p.name, handle, sub)
}

func releasePagination(name string, handle client.Pagination, sub rx.Subscription) {
	if handle == nil {
		return
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	handle.Unsubscribe()
	metrics.SubscriptionClosed(name)
}
