package squid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidcloud/squid-go/pkg/client"
)

func TestDocBindingPeekSeedsOneShotFetch(t *testing.T) {
	ctx, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("ann", client.DocumentData{"name": "Ann", "age": 5})
	people.SetWarm(true)
	col, err := Collection(ctx, "people", "")
	require.NoError(t, err)

	release := people.Hold()

	var rec recorder[State[client.DocumentData]]
	d := NewDocBinding(rec.add)
	defer d.Close()

	st := d.Update(col.Doc("ann"), DocOptions{})
	assert.Equal(t, State[client.DocumentData]{Data: client.DocumentData{"name": "Ann", "age": 5}}, st)
	release()

	eventually(t, func() bool { return d.State().Complete })
	for _, s := range rec.all() {
		assert.False(t, s.Loading)
		assert.Equal(t, "Ann", s.Data["name"])
	}
	assert.Equal(t, 1, people.Fetches())
}

func TestDocBindingColdFetch(t *testing.T) {
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("bob", client.DocumentData{"name": "Bob"})
	release := people.Hold()

	d := NewDocBinding(nil)
	defer d.Close()

	st := d.Update(people.Doc("bob"), DocOptions{})
	assert.True(t, st.Loading)
	assert.Nil(t, st.Data)

	release()
	eventually(t, func() bool { return !d.State().Loading })
	assert.Equal(t, "Bob", d.State().Data["name"])
}

func TestDocBindingSubscribe(t *testing.T) {
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("ann", client.DocumentData{"name": "Ann"})

	d := NewDocBinding(nil)
	st := d.Update(people.Doc("ann"), DocOptions{Subscribe: true})
	assert.Equal(t, "Ann", st.Data["name"])
	assert.Equal(t, 1, people.Subscribers())

	people.Put("ann", client.DocumentData{"name": "Annie"})
	assert.Equal(t, "Annie", d.State().Data["name"])

	people.Delete("ann")
	assert.Nil(t, d.State().Data)
	assert.False(t, d.State().Loading)

	d.Update(people.Doc("ann"), DocOptions{Subscribe: true})
	assert.Equal(t, 1, people.Subscribers())

	d.Close()
	assert.Equal(t, 0, people.Subscribers())
}

func TestDocBindingSwitchesDocuments(t *testing.T) {
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("ann", client.DocumentData{"name": "Ann"})
	people.Put("bob", client.DocumentData{"name": "Bob"})

	d := NewDocBinding(nil)
	defer d.Close()
	d.Update(people.Doc("ann"), DocOptions{Subscribe: true})
	st := d.Update(people.Doc("bob"), DocOptions{Subscribe: true})

	assert.Equal(t, "Bob", st.Data["name"])
	assert.Equal(t, 1, people.Subscribers())
}

func TestDocBindingError(t *testing.T) {
	boom := errors.New("permission denied")
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.FailNext(boom)

	d := NewDocBinding(nil)
	defer d.Close()
	st := d.Update(people.Doc("ann"), DocOptions{Subscribe: true})

	assert.False(t, st.Loading)
	assert.ErrorIs(t, st.Err, boom)
}

func TestDocsBinding(t *testing.T) {
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("ann", client.DocumentData{"name": "Ann"})
	people.Put("bob", client.DocumentData{"name": "Bob"})

	d := NewDocsBinding(nil)
	defer d.Close()

	refs := []client.DocumentRef{people.Doc("ann"), people.Doc("bob"), people.Doc("nobody")}
	st := d.Update(refs, DocOptions{Subscribe: true})
	require.Len(t, st.Data, 3)
	assert.Equal(t, "Ann", st.Data[0]["name"])
	assert.Equal(t, "Bob", st.Data[1]["name"])
	assert.Nil(t, st.Data[2])

	people.Put("bob", client.DocumentData{"name": "Robert"})
	assert.Equal(t, "Robert", d.State().Data[1]["name"])
}

func TestDocsBindingOneShot(t *testing.T) {
	_, c := newFakeContext(t)
	people := c.Coll("people", "")
	people.Put("ann", client.DocumentData{"name": "Ann"})

	d := NewDocsBinding(nil)
	defer d.Close()
	d.Update([]client.DocumentRef{people.Doc("ann"), people.Doc("ann")}, DocOptions{})

	eventually(t, func() bool { return d.State().Complete })
	assert.Len(t, d.State().Data, 2)
	assert.Equal(t, 2, people.Fetches())
}

func TestDocsBindingEmpty(t *testing.T) {
	d := NewDocsBinding(nil)
	st := d.Update(nil, DocOptions{Subscribe: true})

	assert.False(t, st.Loading)
	assert.True(t, st.Complete)
	assert.Empty(t, st.Data)
}
