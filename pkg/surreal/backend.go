package surreal

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/squidcloud/squid-go/pkg/client"
)

// Change is one live notification on a table.
type Change struct {
	Action string
	// ID is the record key without its table prefix.
	ID     string
	Record client.DocumentData
}

// backend is the slice of the database the client needs.
type backend interface {
	Select(ctx context.Context, sql string, vars map[string]any) ([]client.DocumentData, error)
	Exec(ctx context.Context, sql string, vars map[string]any) error
	// Live starts a live query on table. The returned channel is closed when
	// the query is killed or the connection drops.
	Live(ctx context.Context, table string) (string, <-chan Change, error)
	Kill(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

type dbBackend struct {
	db *surrealdb.DB

	mu    sync.Mutex
	stops map[string]chan struct{}
}

func dial(ctx context.Context, opts client.Options) (*dbBackend, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Endpoint, err)
	}
	if opts.Username != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": opts.Username,
			"pass": opts.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}
	if err := db.Use(ctx, opts.Namespace, opts.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", opts.Namespace, opts.Database, err)
	}
	return &dbBackend{db: db, stops: map[string]chan struct{}{}}, nil
}

func (b *dbBackend) Select(ctx context.Context, sql string, vars map[string]any) ([]client.DocumentData, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, b.db, sql, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	rows := (*res)[len(*res)-1].Result
	out := make([]client.DocumentData, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalize(row))
	}
	return out, nil
}

func (b *dbBackend) Exec(ctx context.Context, sql string, vars map[string]any) error {
	_, err := surrealdb.Query[any](ctx, b.db, sql, vars)
	return err
}

func (b *dbBackend) Live(ctx context.Context, table string) (string, <-chan Change, error) {
	uuid, err := surrealdb.Live(ctx, b.db, models.Table(table), false)
	if err != nil {
		return "", nil, err
	}
	id := uuid.String()
	notifications, err := b.db.LiveNotifications(id)
	if err != nil {
		_ = surrealdb.Kill(ctx, b.db, id)
		return "", nil, err
	}

	stop := make(chan struct{})
	b.mu.Lock()
	b.stops[id] = stop
	b.mu.Unlock()

	out := make(chan Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				c := fromNotification(n)
				select {
				case out <- c:
				case <-stop:
					return
				}
			}
		}
	}()
	return id, out, nil
}

func (b *dbBackend) Kill(ctx context.Context, id string) error {
	b.mu.Lock()
	if stop, ok := b.stops[id]; ok {
		close(stop)
		delete(b.stops, id)
	}
	b.mu.Unlock()

	err := surrealdb.Kill(ctx, b.db, id)
	if cerr := b.db.CloseLiveNotifications(id); err == nil {
		err = cerr
	}
	return err
}

func (b *dbBackend) Close(ctx context.Context) error {
	return b.db.Close(ctx)
}

func fromNotification(n connection.Notification) Change {
	c := Change{Action: string(n.Action)}
	if rec, ok := n.Result.(map[string]any); ok {
		c.Record = normalize(rec)
		c.ID, _ = c.Record["id"].(string)
	}
	return c
}

// normalize replaces record ids by their plain key so that documents look
// the same whatever backend produced them.
func normalize(row map[string]any) client.DocumentData {
	out := make(client.DocumentData, len(row))
	for k, v := range row {
		out[k] = v
	}
	switch id := row["id"].(type) {
	case models.RecordID:
		out["id"] = fmt.Sprint(id.ID)
	case *models.RecordID:
		if id != nil {
			out["id"] = fmt.Sprint(id.ID)
		}
	}
	return out
}
