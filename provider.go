package squid

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/logger"
)

// Factory builds a client for a set of options.
type Factory func(ctx context.Context, opts client.Options) (client.Client, error)

// Provider owns one client per distinct set of options.
type Provider struct {
	factory Factory
	log     logger.Logger

	group   singleflight.Group
	mu      sync.Mutex
	clients map[string]client.Client
	closed  bool
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the provider's logger.
func WithProviderLogger(l logger.Logger) ProviderOption {
	return func(p *Provider) {
		p.log = l
	}
}

// NewProvider returns a provider building clients with factory.
func NewProvider(factory Factory, opts ...ProviderOption) *Provider {
	p := &Provider{
		factory: factory,
		clients: map[string]client.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	p.log = logger.OrNop(p.log)
	return p
}

// Client returns the client for opts, building it on first use. Concurrent
// callers with equal options share a single build.
func (p *Provider) Client(ctx context.Context, opts client.Options) (client.Client, error) {
	key := opts.Key()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, constants.ErrClosed
	}
	if c, ok := p.clients[key]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		if c, ok := p.clients[key]; ok {
			p.mu.Unlock()
			return c, nil
		}
		p.mu.Unlock()

		p.log.Info("creating client", "app", opts.AppID, "region", opts.Region, "environment", opts.Environment)
		c, err := p.factory(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("create client for app %q: %w", opts.AppID, err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = c.Close(ctx)
			return nil, constants.ErrClosed
		}
		p.clients[key] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(client.Client), nil
}

// Context returns a child of ctx carrying the client for opts.
func (p *Provider) Context(ctx context.Context, opts client.Options) (context.Context, error) {
	c, err := p.Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return WithClient(ctx, c), nil
}

// Close closes every client the provider built.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	clients := p.clients
	p.clients = map[string]client.Client{}
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		g.Go(func() error {
			return c.Close(gctx)
		})
	}
	return g.Wait()
}

type clientKey struct{}

// WithClient returns a child of ctx carrying c.
func WithClient(ctx context.Context, c client.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the client attached to ctx.
func FromContext(ctx context.Context) (client.Client, error) {
	c, ok := ctx.Value(clientKey{}).(client.Client)
	if !ok || c == nil {
		return nil, constants.ErrNoClient
	}
	return c, nil
}

// MustFromContext is like FromContext but panics when ctx carries no client.
func MustFromContext(ctx context.Context) client.Client {
	c, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return c
}

// Collection returns a handle to a collection of the client attached to ctx.
func Collection(ctx context.Context, name, integrationID string) (client.Collection, error) {
	c, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.Collection(name, integrationID), nil
}
