package fakesquid

import (
	"context"
	"maps"
	"sync"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// Collection is a fake client.Collection backed by a map.
type Collection struct {
	name          string
	integrationID string

	// changes carries the id of every written document.
	changes *rx.Subject[string]

	mu          sync.Mutex
	docs        map[string]client.DocumentData
	order       []string
	warm        bool
	fetches     int
	failure     error
	gate        chan struct{}
	holdPages   bool
	paginations []*Pagination
}

var _ client.Collection = (*Collection)(nil)

func newCollection(name, integrationID string) *Collection {
	return &Collection{
		name:          name,
		integrationID: integrationID,
		changes:       rx.NewSubject[string](),
		docs:          map[string]client.DocumentData{},
	}
}

func (c *Collection) Name() string          { return c.name }
func (c *Collection) IntegrationID() string { return c.integrationID }

func (c *Collection) Doc(id string) client.DocumentRef {
	return &DocRef{col: c, id: id}
}

func (c *Collection) Query() client.Query {
	return &Query{col: c, q: client.NewQuery(c.name, c.integrationID)}
}

// Put inserts or replaces a document and notifies live subscribers.
func (c *Collection) Put(id string, data client.DocumentData) {
	c.mu.Lock()
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = maps.Clone(data)
	c.mu.Unlock()
	c.changes.Next(id)
}

// Delete removes a document and notifies live subscribers.
func (c *Collection) Delete(id string) {
	c.mu.Lock()
	if _, ok := c.docs[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.docs, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.changes.Next(id)
}

// SetWarm makes Peek report the stored content, as if it had been synced
// before.
func (c *Collection) SetWarm(warm bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warm = warm
}

// FailNext makes the next fetch or subscription fail with err.
func (c *Collection) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

// Hold blocks one-shot fetches until the returned release func is called.
func (c *Collection) Hold() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.gate == gate {
				c.gate = nil
			}
			c.mu.Unlock()
			close(gate)
		})
	}
}

// HoldPages makes pagination handles record moves without emitting, until
// Flush is called on them.
func (c *Collection) HoldPages(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdPages = hold
}

// Fetches counts one-shot fetches.
func (c *Collection) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Subscribers counts live document and query subscriptions.
func (c *Collection) Subscribers() int {
	return c.changes.Observed()
}

// Paginations lists every pagination handle created on the collection.
func (c *Collection) Paginations() []*Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Pagination(nil), c.paginations...)
}

func (c *Collection) get(id string) client.DocumentData {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	if !ok {
		return nil
	}
	return maps.Clone(d)
}

func (c *Collection) all() []client.DocumentData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]client.DocumentData, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, maps.Clone(c.docs[id]))
	}
	return out
}

func (c *Collection) isWarm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warm
}

func (c *Collection) takeFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.failure
	c.failure = nil
	return err
}

func (c *Collection) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetches++
	gate := c.gate
	err := c.failure
	c.failure = nil
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// DocRef is a fake client.DocumentRef.
type DocRef struct {
	col *Collection
	id  string
}

var _ client.DocumentRef = (*DocRef)(nil)

func (d *DocRef) RefID() string {
	return d.col.integrationID + "/" + d.col.name + "/" + d.id
}

func (d *DocRef) Peek() (client.DocumentData, bool) {
	if !d.col.isWarm() {
		return nil, false
	}
	data := d.col.get(d.id)
	return data, data != nil
}

func (d *DocRef) Snapshot(ctx context.Context) (client.DocumentData, error) {
	if err := d.col.fetch(ctx); err != nil {
		return nil, err
	}
	return d.col.get(d.id), nil
}

func (d *DocRef) Snapshots() rx.Observable[client.DocumentData] {
	return rx.Func[client.DocumentData](func(o rx.Observer[client.DocumentData]) rx.Subscription {
		if err := d.col.takeFailure(); err != nil {
			o.Error(err)
			return nil
		}
		o.Next(d.col.get(d.id))
		return d.col.changes.Subscribe(rx.Observer[string]{
			Next: func(id string) {
				if id == d.id {
					o.Next(d.col.get(d.id))
				}
			},
		})
	})
}

// Query is a fake client.Query evaluated in memory.
type Query struct {
	col *Collection
	q   client.SerializedQuery
}

var _ client.Query = (*Query)(nil)

func (q *Query) with(s client.SerializedQuery) client.Query {
	return &Query{col: q.col, q: s}
}

func (q *Query) Where(field string, op client.Operator, value any) client.Query {
	return q.with(q.q.Where(field, op, value))
}

func (q *Query) Eq(field string, value any) client.Query {
	return q.with(q.q.Eq(field, value))
}

func (q *Query) SortBy(field string, asc bool) client.Query {
	return q.with(q.q.SortBy(field, asc))
}

func (q *Query) Limit(n int) client.Query {
	return q.with(q.q.WithLimit(n))
}

func (q *Query) Dereference() client.Query {
	return q.with(q.q.WithDereference())
}

func (q *Query) Snapshot(ctx context.Context) ([]client.DocumentData, error) {
	if err := q.col.fetch(ctx); err != nil {
		return nil, err
	}
	return q.q.Apply(q.col.all()), nil
}

func (q *Query) Snapshots() rx.Observable[[]client.DocumentData] {
	return rx.Func[[]client.DocumentData](func(o rx.Observer[[]client.DocumentData]) rx.Subscription {
		if err := q.col.takeFailure(); err != nil {
			o.Error(err)
			return nil
		}
		o.Next(q.q.Apply(q.col.all()))
		return q.col.changes.Subscribe(rx.Observer[string]{
			Next: func(string) { o.Next(q.q.Apply(q.col.all())) },
		})
	})
}

func (q *Query) Peek() ([]client.DocumentData, bool) {
	if !q.col.isWarm() {
		return nil, false
	}
	return q.q.Apply(q.col.all()), true
}

func (q *Query) Serialize() client.SerializedQuery {
	return q.q
}

func (q *Query) Paginate(opts client.PaginationOptions) client.Pagination {
	return newPagination(q.col, q.q, opts)
}

// Pagination is a fake client.Pagination over an in-memory query.
type Pagination struct {
	col   *Collection
	q     client.SerializedQuery
	size  int
	state *rx.BehaviorSubject[client.PaginationState]
	live  rx.Subscription

	mu       sync.Mutex
	page     int
	nexts    int
	prevs    int
	released bool
}

var _ client.Pagination = (*Pagination)(nil)

func newPagination(col *Collection, q client.SerializedQuery, opts client.PaginationOptions) *Pagination {
	size := opts.PageSize
	if size <= 0 {
		size = constants.DefaultPageSize
	}
	p := &Pagination{col: col, q: q, size: size}
	p.state = rx.NewBehaviorSubject(p.compute())
	if opts.Subscribe {
		p.live = col.changes.Subscribe(rx.Observer[string]{Next: func(string) { p.Flush() }})
	}
	col.mu.Lock()
	col.paginations = append(col.paginations, p)
	col.mu.Unlock()
	return p
}

func (p *Pagination) compute() client.PaginationState {
	all := p.q.Apply(p.col.all())
	p.mu.Lock()
	page := p.page
	p.mu.Unlock()
	start := min(page*p.size, len(all))
	end := min(start+p.size, len(all))
	return client.PaginationState{
		Data:    append([]client.DocumentData{}, all[start:end]...),
		HasPrev: page > 0,
		HasNext: end < len(all),
	}
}

func (p *Pagination) ObserveState() rx.Observable[client.PaginationState] {
	return p.state
}

func (p *Pagination) Next() {
	p.move(1)
}

func (p *Pagination) Prev() {
	p.move(-1)
}

func (p *Pagination) move(delta int) {
	p.mu.Lock()
	if delta > 0 {
		p.nexts++
	} else {
		p.prevs++
	}
	if p.released {
		p.mu.Unlock()
		return
	}
	p.page = max(p.page+delta, 0)
	p.mu.Unlock()

	p.col.mu.Lock()
	hold := p.col.holdPages
	p.col.mu.Unlock()
	if !hold {
		p.Flush()
	}
}

// Flush emits the state of the current page.
func (p *Pagination) Flush() {
	if p.Released() {
		return
	}
	p.state.Next(p.compute())
}

// EmitLoading emits a state flagged as loading.
func (p *Pagination) EmitLoading() {
	p.state.Next(client.PaginationState{IsLoading: true})
}

// Moves returns how often Next and Prev were called.
func (p *Pagination) Moves() (nexts, prevs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nexts, p.prevs
}

func (p *Pagination) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pagination) Unsubscribe() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()
	if p.live != nil {
		p.live.Unsubscribe()
	}
	p.state.Complete()
}

// Queue is a fake client.Queue that delivers produced messages to every
// consumer synchronously.
type Queue struct {
	subject *rx.Subject[any]

	mu       sync.Mutex
	produced []any
	failure  error
}

var _ client.Queue = (*Queue)(nil)

func newQueue() *Queue {
	return &Queue{subject: rx.NewSubject[any]()}
}

func (q *Queue) Produce(_ context.Context, messages []any) error {
	q.mu.Lock()
	if err := q.failure; err != nil {
		q.failure = nil
		q.mu.Unlock()
		return err
	}
	q.produced = append(q.produced, messages...)
	q.mu.Unlock()
	for _, m := range messages {
		q.subject.Next(m)
	}
	return nil
}

func (q *Queue) Consume() rx.Observable[any] {
	return q.subject
}

// FailNext makes the next Produce fail with err.
func (q *Queue) FailNext(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failure = err
}

// Produced lists every message produced so far.
func (q *Queue) Produced() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]any(nil), q.produced...)
}

// Consumers counts live consumers.
func (q *Queue) Consumers() int {
	return q.subject.Observed()
}
