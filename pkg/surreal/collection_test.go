package surreal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

func TestNewRequiresAppAndEndpoint(t *testing.T) {
	_, err := New(context.Background(), client.Options{})
	require.ErrorIs(t, err, constants.ErrPrecondition)

	_, err = New(context.Background(), client.Options{AppID: "app"})
	require.ErrorIs(t, err, constants.ErrNoBaseURL)
}

func TestClientDetailsAndClose(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)

	assert.Equal(t, constants.DefaultRegion, c.Options().Region)
	details := c.ConnectionDetails()
	assert.NotEmpty(t, details.ClientID)
	assert.True(t, details.Connected)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, be.closed)
	assert.False(t, c.ConnectionDetails().Connected)
	require.ErrorIs(t, c.Close(context.Background()), constants.ErrClosed)

	_, err := c.Collection("users", "").Query().Snapshot(context.Background())
	require.ErrorIs(t, err, constants.ErrClosed)
}

func TestDeserializeQuery(t *testing.T) {
	c := newTestClient(t, newMemBackend())

	q, err := c.DeserializeQuery(client.NewQuery("users", "").Eq("team", "a"))
	require.NoError(t, err)
	assert.Equal(t, client.NewQuery("users", "").Eq("team", "a"), q.Serialize())

	_, err = c.DeserializeQuery(client.NewQuery("bad name", ""))
	require.ErrorIs(t, err, constants.ErrPrecondition)
}

func TestDocSnapshotAndPeek(t *testing.T) {
	be := newMemBackend()
	be.put("users", client.DocumentData{"id": "1", "name": "ann"})
	c := newTestClient(t, be)

	ref := c.Collection("users", "").Doc("1")
	assert.Equal(t, "/users/1", ref.RefID())

	_, ok := ref.Peek()
	assert.False(t, ok)

	data, err := ref.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ann", data["name"])

	cached, ok := ref.Peek()
	require.True(t, ok)
	assert.Equal(t, data, cached)

	missing, err := c.Collection("users", "").Doc("2").Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocSnapshotsFollowOwnRecord(t *testing.T) {
	be := newMemBackend()
	be.put("users", client.DocumentData{"id": "1", "name": "ann"})
	c := newTestClient(t, be)

	rec := &collector[client.DocumentData]{}
	sub := c.Collection("users", "").Doc("1").Snapshots().Subscribe(rec.observer())
	defer sub.Unsubscribe()

	waitFor(t, func() bool { return rec.len() == 1 && be.liveCount("users") == 1 })

	be.put("users", client.DocumentData{"id": "2", "name": "bob"})
	be.put("users", client.DocumentData{"id": "1", "name": "anna"})
	waitFor(t, func() bool { return rec.len() == 2 })

	values, done, err := rec.snapshot()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "ann", values[0]["name"])
	assert.Equal(t, "anna", values[1]["name"])
	assert.Equal(t, 2, be.recordSelects())
}

func TestQuerySnapshotsRefetchOnChange(t *testing.T) {
	be := newMemBackend()
	be.put("users", client.DocumentData{"id": "1"})
	c := newTestClient(t, be)

	q := c.Collection("users", "").Query()
	rec := &collector[[]client.DocumentData]{}
	sub := q.Snapshots().Subscribe(rec.observer())
	defer sub.Unsubscribe()

	waitFor(t, func() bool { return rec.len() == 1 && be.liveCount("users") == 1 })
	be.put("users", client.DocumentData{"id": "2"})
	waitFor(t, func() bool { return rec.len() == 2 })

	values, _, _ := rec.snapshot()
	assert.Len(t, values[0], 1)
	assert.Len(t, values[1], 2)

	peeked, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, values[1], peeked)
}

func TestQuerySnapshotsReportFetchErrors(t *testing.T) {
	be := newMemBackend()
	be.selectErr = errors.New("boom")
	c := newTestClient(t, be)

	rec := &collector[[]client.DocumentData]{}
	sub := c.Collection("users", "").Query().Snapshots().Subscribe(rec.observer())
	defer sub.Unsubscribe()

	waitFor(t, func() bool {
		_, _, err := rec.snapshot()
		return err != nil
	})
	_, _, err := rec.snapshot()
	require.EqualError(t, err, "boom")
}

func TestLiveQueryFailureSurfaces(t *testing.T) {
	be := newMemBackend()
	be.liveErr = errors.New("live down")
	c := newTestClient(t, be)

	rec := &collector[client.DocumentData]{}
	sub := c.Collection("users", "").Doc("1").Snapshots().Subscribe(rec.observer())
	defer sub.Unsubscribe()

	waitFor(t, func() bool {
		_, _, err := rec.snapshot()
		return err != nil
	})
	_, _, err := rec.snapshot()
	require.EqualError(t, err, "live down")
}

func TestLiveQueryIsSharedAndHandedOver(t *testing.T) {
	be := newMemBackend()
	c := newTestClient(t, be)
	col := c.Collection("users", "")

	first := col.Query().Snapshots().Subscribe(newIgnore[[]client.DocumentData]())
	waitFor(t, func() bool { return be.liveCount("users") == 1 })

	second := col.Doc("1").Snapshots().Subscribe(newIgnore[client.DocumentData]())
	assert.Equal(t, 2, c.hub.watchers("users"))

	first.Unsubscribe()
	assert.Equal(t, 1, c.hub.watchers("users"))
	assert.Equal(t, 1, be.liveCount("users"))
	assert.Empty(t, be.killedIDs())

	second.Unsubscribe()
	waitFor(t, func() bool { return be.liveCount("users") == 0 })
	assert.Equal(t, []string{"live-1"}, be.killedIDs())
	assert.Zero(t, c.hub.watchers("users"))
}
