package surreal

import (
	"context"
	"errors"
	"fmt"

	"github.com/surrealdb/surrealdb.go/contrib/surrealql"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// Jobs keeps job outcomes in a table so that any client of the same
// database can await them.
type Jobs struct {
	c *Client
}

var _ client.Jobs = (*Jobs)(nil)

// Finish records the outcome of jobID.
func (j *Jobs) Finish(ctx context.Context, jobID, result string, jobErr error) error {
	if jobID == "" {
		return nil
	}
	var msg string
	if jobErr != nil {
		msg = jobErr.Error()
	}
	sql, vars := surrealql.Upsert(surrealql.Thing(jobTable, jobID)).
		Content(map[string]any{"done": true, "result": result, "error": msg}).
		Build()
	return j.c.be.Exec(ctx, sql, vars)
}

func (j *Jobs) AwaitJob(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("%w: job id is required", constants.ErrPrecondition)
	}

	kick := make(chan struct{}, 1)
	failed := make(chan error, 1)
	sub := j.c.hub.watch(jobTable).Subscribe(rx.Observer[Change]{
		Next: func(c Change) {
			if c.ID != jobID {
				return
			}
			select {
			case kick <- struct{}{}:
			default:
			}
		},
		Error: func(err error) { failed <- err },
	})
	defer sub.Unsubscribe()

	for {
		rows, err := j.c.be.Select(ctx, selectRecord(jobTable, jobID))
		if err != nil {
			return "", err
		}
		if len(rows) > 0 {
			if done, _ := rows[0]["done"].(bool); done {
				result, _ := rows[0]["result"].(string)
				if msg, _ := rows[0]["error"].(string); msg != "" {
					return result, errors.New(msg)
				}
				return result, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-failed:
			return "", err
		case <-kick:
		}
	}
}
