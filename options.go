package squid

import (
	"context"
	"net/http"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/logger"
)

type config struct {
	name string
	log  logger.Logger
	ctx  context.Context

	chatOptions  client.ChatOptions
	agentOptions client.AgentClientOptions
	queryOptions client.AIQueryOptions
	httpClient   *http.Client
}

// Option configures a binding.
type Option func(*config)

// WithName sets the binding kind reported in logs and metrics.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithContext sets the context futures run on. Cancellation of ctx is not
// propagated: closing a binding never cancels work already started.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

// WithChatOptions sets the chat options every AI request starts from.
func WithChatOptions(opts client.ChatOptions) Option {
	return func(c *config) {
		c.chatOptions = opts
	}
}

// WithAgentClientOptions configures the agent handle of an AI chat.
func WithAgentClientOptions(opts client.AgentClientOptions) Option {
	return func(c *config) {
		c.agentOptions = opts
	}
}

// WithAIQueryOptions tunes AI queries.
func WithAIQueryOptions(opts client.AIQueryOptions) Option {
	return func(c *config) {
		c.queryOptions = opts
	}
}

// WithHTTPClient sets the HTTP client used for custom AI endpoints.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

func newConfig(name string, opts []Option) config {
	c := config{name: name}
	for _, o := range opts {
		o(&c)
	}
	c.log = logger.OrNop(c.log)
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	c.ctx = context.WithoutCancel(c.ctx)
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return c
}
