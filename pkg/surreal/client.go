// Package surreal implements the client contract on top of SurrealDB.
//
// Collections map to tables, live streams are backed by LIVE queries that are
// shared per table, and every change notification re-runs the affected
// select. Queues and jobs are plain tables. Agents talk to an OpenAI
// compatible endpoint and keep their memory in a table.
//
//	c, err := surreal.New(ctx, client.Options{
//		AppID:     "app",
//		Endpoint:  "ws://localhost:8000/rpc",
//		Namespace: "squid",
//		Database:  "squid",
//	})
package surreal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/logger"
)

// Client is a client.Client backed by SurrealDB.
type Client struct {
	opts client.Options
	id   string
	log  logger.Logger
	ctx  context.Context

	be    backend
	hub   *hub
	cache sync.Map

	ai   *AI
	jobs *Jobs

	closed atomic.Bool
}

var _ client.Client = (*Client)(nil)

type settings struct {
	log     logger.Logger
	openai  *openai.ClientConfig
	backend backend
}

// Option configures New.
type Option func(*settings)

func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithOpenAIConfig overrides the configuration derived from
// client.Options.OpenAIKey, for example to target a compatible endpoint.
func WithOpenAIConfig(cfg openai.ClientConfig) Option {
	return func(s *settings) { s.openai = &cfg }
}

func withBackend(be backend) Option {
	return func(s *settings) { s.backend = be }
}

// New connects to the endpoint in opts.
func New(ctx context.Context, opts client.Options, options ...Option) (*Client, error) {
	s := settings{log: logger.Nop}
	for _, o := range options {
		o(&s)
	}
	if opts.AppID == "" {
		return nil, fmt.Errorf("%w: app id is required", constants.ErrPrecondition)
	}
	if opts.Region == "" {
		opts.Region = constants.DefaultRegion
	}

	be := s.backend
	if be == nil {
		if opts.Endpoint == "" {
			return nil, constants.ErrNoBaseURL
		}
		db, err := dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		be = db
	}

	c := &Client{
		opts: opts,
		id:   uuid.NewString(),
		log:  logger.OrNop(s.log),
		ctx:  context.WithoutCancel(ctx),
		be:   be,
	}
	c.hub = newHub(c.ctx, be, c.log)
	c.jobs = &Jobs{c: c}
	c.ai = newAI(c, s.openai)
	c.log.Info("client connected", "app", opts.AppID, "client_id", c.id)
	return c, nil
}

// Factory matches the provider's client factory signature.
func Factory(ctx context.Context, opts client.Options) (client.Client, error) {
	return New(ctx, opts)
}

// FactoryWith returns a Factory that passes options to New.
func FactoryWith(options ...Option) func(context.Context, client.Options) (client.Client, error) {
	return func(ctx context.Context, opts client.Options) (client.Client, error) {
		return New(ctx, opts, options...)
	}
}

func (c *Client) Collection(name, integrationID string) client.Collection {
	return &collection{c: c, name: name, integrationID: integrationID}
}

func (c *Client) Queue(name, integrationID string) client.Queue {
	return &queue{c: c, name: name, integrationID: integrationID}
}

func (c *Client) AI() client.AI {
	return c.ai
}

func (c *Client) Jobs() client.Jobs {
	return c.jobs
}

func (c *Client) DeserializeQuery(s client.SerializedQuery) (client.Query, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if _, err := tableName(s.Collection, s.IntegrationID); err != nil {
		return nil, err
	}
	return &query{c: c, desc: s}, nil
}

func (c *Client) Options() client.Options {
	return c.opts
}

func (c *Client) ConnectionDetails() client.ConnectionDetails {
	return client.ConnectionDetails{ClientID: c.id, Connected: !c.closed.Load()}
}

func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return constants.ErrClosed
	}
	c.log.Info("client closing", "client_id", c.id)
	return c.be.Close(ctx)
}

func (c *Client) peek(key string) (any, bool) {
	return c.cache.Load(key)
}

func (c *Client) remember(key string, v any) {
	c.cache.Store(key, v)
}
