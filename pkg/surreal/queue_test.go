package surreal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

func TestQueueProduceWritesOneStatement(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)

	q := c.Queue("events", "")
	require.NoError(t, q.Produce(context.Background(), []any{"a", map[string]any{"n": 1}}))
	require.NoError(t, q.Produce(context.Background(), nil))

	calls := be.execCalls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].SQL, "BEGIN TRANSACTION;"))
	assert.Equal(t, 2, strings.Count(calls[0].SQL, "CREATE squid_queue__events CONTENT"))
	assert.Equal(t, []map[string]any{
		{"payload": "a", "seq": 0},
		{"payload": map[string]any{"n": 1}, "seq": 1},
	}, contents(calls[0].Vars))
}

func TestQueueProduceErrors(t *testing.T) {
	be := newMemBackend()
	be.onExec = func(call) error { return errors.New("write failed") }
	c := newTestClient(t, be)

	err := c.Queue("events", "").Produce(context.Background(), []any{"a"})
	require.ErrorContains(t, err, "write failed")

	err = c.Queue("bad name", "").Produce(context.Background(), []any{"a"})
	require.ErrorIs(t, err, constants.ErrPrecondition)
}

func TestQueueConsumeSeesNewMessages(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)

	rec := &collector[any]{}
	sub := c.Queue("events", "").Consume().Subscribe(rec.observer())
	defer sub.Unsubscribe()
	waitFor(t, func() bool { return be.liveCount("squid_queue__events") == 1 })

	be.create("squid_queue__events", client.DocumentData{"id": "m1", "payload": "hello"})
	be.put("squid_queue__events", client.DocumentData{"id": "m1", "payload": "edited"})
	be.create("squid_queue__events", client.DocumentData{"id": "m2", "payload": "world"})

	waitFor(t, func() bool { return rec.len() == 2 })
	values, _, _ := rec.snapshot()
	assert.Equal(t, []any{"hello", "world"}, values)
}

func TestJobsAwait(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)

	_, err := c.Jobs().AwaitJob(context.Background(), "")
	require.ErrorIs(t, err, constants.ErrPrecondition)

	be.put(jobTable, client.DocumentData{"id": "done", "done": true, "result": "42"})
	res, err := c.Jobs().AwaitJob(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, "42", res)
	waitFor(t, func() bool { return len(be.killedIDs()) == 1 })

	type outcome struct {
		res string
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		res, err := c.Jobs().AwaitJob(context.Background(), "later")
		out <- outcome{res, err}
	}()
	waitFor(t, func() bool { return be.liveCount(jobTable) == 1 && be.recordSelects() >= 2 })

	be.put(jobTable, client.DocumentData{"id": "other", "done": true, "result": "x"})
	be.put(jobTable, client.DocumentData{"id": "later", "done": true, "result": "", "error": "agent failed"})

	select {
	case o := <-out:
		require.EqualError(t, o.err, "agent failed")
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitJob did not return")
	}
}

func TestJobsAwaitHonorsContext(t *testing.T) {
	c := newTestClient(t, newMemBackend())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Jobs().AwaitJob(ctx, "never")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobsFinish(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)

	require.NoError(t, c.jobs.Finish(context.Background(), "", "ignored", nil))
	require.NoError(t, c.jobs.Finish(context.Background(), "j1", "", errors.New("boom")))

	calls := be.execCalls()
	require.Len(t, calls, 1)
	rid, ok := recordVar(calls[0].Vars)
	require.True(t, ok)
	assert.Equal(t, models.NewRecordID(jobTable, "j1"), rid)
	assert.Equal(t, []map[string]any{{"done": true, "result": "", "error": "boom"}}, contents(calls[0].Vars))
}
