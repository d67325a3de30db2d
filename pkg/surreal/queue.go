package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go/contrib/surrealql"

	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// queue stores each message as a record of its own table. Consumers only
// see messages created while they are subscribed.
type queue struct {
	c             *Client
	name          string
	integrationID string
}

func (q *queue) table() (string, error) {
	t, err := tableName(q.name, q.integrationID)
	if err != nil {
		return "", err
	}
	return queuePrefix + t, nil
}

func (q *queue) Produce(ctx context.Context, messages []any) error {
	if len(messages) == 0 {
		return nil
	}
	if q.c.closed.Load() {
		return constants.ErrClosed
	}
	table, err := q.table()
	if err != nil {
		return err
	}

	tx := surrealql.Begin()
	for i, m := range messages {
		tx = tx.Query(surrealql.Create(table).Content(map[string]any{"payload": m, "seq": i}))
	}
	sql, vars := tx.Build()
	if err := q.c.be.Exec(ctx, sql, vars); err != nil {
		return fmt.Errorf("produce to %s: %w", q.name, err)
	}
	return nil
}

func (q *queue) Consume() rx.Observable[any] {
	table, err := q.table()
	if err != nil {
		return rx.Throw[any](err)
	}
	return rx.Func[any](func(o rx.Observer[any]) rx.Subscription {
		return q.c.hub.watch(table).Subscribe(rx.Observer[Change]{
			Next: func(c Change) {
				if c.Action != "CREATE" || c.Record == nil {
					return
				}
				o.Next(c.Record["payload"])
			},
			Error:    o.Error,
			Complete: o.Complete,
		})
	})
}
