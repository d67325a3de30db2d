package surreal

import (
	"context"
	"reflect"
	"sync"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

type collection struct {
	c             *Client
	name          string
	integrationID string
}

func (col *collection) Name() string          { return col.name }
func (col *collection) IntegrationID() string { return col.integrationID }

func (col *collection) Doc(id string) client.DocumentRef {
	return &docRef{col: col, id: id}
}

func (col *collection) Query() client.Query {
	return &query{c: col.c, desc: client.NewQuery(col.name, col.integrationID)}
}

type docRef struct {
	col *collection
	id  string
}

func (d *docRef) RefID() string {
	return d.col.integrationID + "/" + d.col.name + "/" + d.id
}

func (d *docRef) Peek() (client.DocumentData, bool) {
	v, ok := d.col.c.peek("doc:" + d.RefID())
	if !ok {
		return nil, false
	}
	data, _ := v.(client.DocumentData)
	return data, true
}

func (d *docRef) Snapshot(ctx context.Context) (client.DocumentData, error) {
	if d.col.c.closed.Load() {
		return nil, constants.ErrClosed
	}
	table, err := tableName(d.col.name, d.col.integrationID)
	if err != nil {
		return nil, err
	}
	rows, err := d.col.c.be.Select(ctx, selectRecord(table, d.id))
	if err != nil {
		return nil, err
	}
	var data client.DocumentData
	if len(rows) > 0 {
		data = rows[0]
	}
	d.col.c.remember("doc:"+d.RefID(), data)
	return data, nil
}

func (d *docRef) Snapshots() rx.Observable[client.DocumentData] {
	table, err := tableName(d.col.name, d.col.integrationID)
	if err != nil {
		return rx.Throw[client.DocumentData](err)
	}
	return follow(d.col.c, table, d.Snapshot, func(c Change) bool {
		return c.ID == "" || c.ID == d.id
	})
}

// follow emits fetch's result once, then again after every matching change
// on table. Results equal to the previous emission are skipped.
func follow[T any](c *Client, table string, fetch func(context.Context) (T, error), match func(Change) bool) rx.Observable[T] {
	return rx.Func[T](func(o rx.Observer[T]) rx.Subscription {
		ctx, cancel := context.WithCancel(c.ctx)

		var (
			mu   sync.Mutex
			last T
			seen bool
		)
		r := newRefresher(ctx, func(ctx context.Context) {
			v, err := fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				o.Error(err)
				cancel()
				return
			}
			mu.Lock()
			if seen && reflect.DeepEqual(last, v) {
				mu.Unlock()
				return
			}
			last, seen = v, true
			mu.Unlock()
			o.Next(v)
		})

		live := c.hub.watch(table).Subscribe(rx.Observer[Change]{
			Next: func(ch Change) {
				if match(ch) {
					r.trigger()
				}
			},
			Error: func(err error) {
				o.Error(err)
				cancel()
			},
		})
		r.trigger()

		return rx.NewSubscription(func() {
			cancel()
			live.Unsubscribe()
		})
	})
}

type query struct {
	c    *Client
	desc client.SerializedQuery
}

func (q *query) with(desc client.SerializedQuery) client.Query {
	return &query{c: q.c, desc: desc}
}

func (q *query) Where(field string, op client.Operator, value any) client.Query {
	return q.with(q.desc.Where(field, op, value))
}

func (q *query) Eq(field string, value any) client.Query {
	return q.with(q.desc.Eq(field, value))
}

func (q *query) SortBy(field string, asc bool) client.Query {
	return q.with(q.desc.SortBy(field, asc))
}

func (q *query) Limit(n int) client.Query {
	return q.with(q.desc.WithLimit(n))
}

// Dereference is the only shape this client returns: rows are always
// document data.
func (q *query) Dereference() client.Query {
	return q.with(q.desc.WithDereference())
}

func (q *query) Serialize() client.SerializedQuery {
	return q.desc
}

func (q *query) Snapshot(ctx context.Context) ([]client.DocumentData, error) {
	rows, err := q.fetch(ctx, nil)
	if err != nil {
		return nil, err
	}
	q.c.remember("query:"+q.desc.Key(), rows)
	return rows, nil
}

func (q *query) fetch(ctx context.Context, w *window) ([]client.DocumentData, error) {
	if q.c.closed.Load() {
		return nil, constants.ErrClosed
	}
	st, err := buildSelect(q.desc, w)
	if err != nil {
		return nil, err
	}
	rows, err := q.c.be.Select(ctx, st.SQL, st.Vars)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []client.DocumentData{}
	}
	return st.finish(q.desc, rows, w), nil
}

func (q *query) Snapshots() rx.Observable[[]client.DocumentData] {
	table, err := tableName(q.desc.Collection, q.desc.IntegrationID)
	if err != nil {
		return rx.Throw[[]client.DocumentData](err)
	}
	return follow(q.c, table, q.Snapshot, func(Change) bool { return true })
}

func (q *query) Peek() ([]client.DocumentData, bool) {
	v, ok := q.c.peek("query:" + q.desc.Key())
	if !ok {
		return nil, false
	}
	rows, _ := v.([]client.DocumentData)
	return rows, true
}

func (q *query) Paginate(opts client.PaginationOptions) client.Pagination {
	return newPagination(q, opts)
}
