// Package fakesquid provides an in-memory implementation of the client
// contract for tests.
//
// Collections hold documents in maps and push every write to live
// subscribers synchronously, which makes binding behavior deterministic.
// Tests drive the remaining collaborators (pagination handles, queues,
// agents, jobs) through exported helpers, and can inject failures or hold
// fetches open to observe intermediate states.
package fakesquid

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

var clientSeq atomic.Int64

// Client is a fake client.Client.
type Client struct {
	opts     client.Options
	clientID string

	mu          sync.Mutex
	collections map[string]*Collection
	queues      map[string]*Queue
	ai          *AI
	jobs        *Jobs
	closed      bool
}

var _ client.Client = (*Client)(nil)

// New returns an empty fake client.
func New(opts client.Options) *Client {
	return &Client{
		opts:        opts,
		clientID:    fmt.Sprintf("fake-%d", clientSeq.Add(1)),
		collections: map[string]*Collection{},
		queues:      map[string]*Queue{},
		ai:          newAI(),
		jobs:        &Jobs{results: map[string]jobResult{}},
	}
}

// Factory matches the provider's client factory signature.
func Factory(_ context.Context, opts client.Options) (client.Client, error) {
	return New(opts), nil
}

func (c *Client) Collection(name, integrationID string) client.Collection {
	return c.Coll(name, integrationID)
}

// Coll returns the fake collection so tests can seed and inspect it.
func (c *Client) Coll(name, integrationID string) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := integrationID + "/" + name
	col, ok := c.collections[key]
	if !ok {
		col = newCollection(name, integrationID)
		c.collections[key] = col
	}
	return col
}

func (c *Client) Queue(name, integrationID string) client.Queue {
	return c.Q(name, integrationID)
}

// Q returns the fake queue so tests can inspect it.
func (c *Client) Q(name, integrationID string) *Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := integrationID + "/" + name
	q, ok := c.queues[key]
	if !ok {
		q = newQueue()
		c.queues[key] = q
	}
	return q
}

func (c *Client) AI() client.AI {
	return c.ai
}

// FakeAI returns the fake AI so tests can script it.
func (c *Client) FakeAI() *AI {
	return c.ai
}

func (c *Client) Jobs() client.Jobs {
	return c.jobs
}

// FakeJobs returns the fake job registry.
func (c *Client) FakeJobs() *Jobs {
	return c.jobs
}

func (c *Client) DeserializeQuery(s client.SerializedQuery) (client.Query, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Query{col: c.Coll(s.Collection, s.IntegrationID), q: s}, nil
}

func (c *Client) Options() client.Options {
	return c.opts
}

func (c *Client) ConnectionDetails() client.ConnectionDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	return client.ConnectionDetails{ClientID: c.clientID, Connected: !c.closed}
}

func (c *Client) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return constants.ErrClosed
	}
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type jobResult struct {
	result string
	err    error
}

// Jobs is a fake client.Jobs with scripted results.
type Jobs struct {
	mu      sync.Mutex
	results map[string]jobResult
	awaited []string
}

// Finish records the outcome of a job.
func (j *Jobs) Finish(jobID, result string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[jobID] = jobResult{result: result, err: err}
}

func (j *Jobs) AwaitJob(_ context.Context, jobID string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.awaited = append(j.awaited, jobID)
	r, ok := j.results[jobID]
	if !ok {
		return "", fmt.Errorf("job %q not found", jobID)
	}
	return r.result, r.err
}

// Awaited lists the job ids AwaitJob was called with.
func (j *Jobs) Awaited() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.awaited...)
}
