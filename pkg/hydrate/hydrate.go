// Package hydrate renders a query on the server and hands it over to a live
// subscription on the client.
//
// The server phase awaits one snapshot and renders the component with it.
// When the rendering should stay live, it also returns a Handoff carrying the
// serialized query and the snapshot. The client phase, possibly in another
// process with its own client instance, binds the query again and keeps the
// component rendered with every update, starting from the snapshot so that
// nothing is fetched twice.
//
// A component sees the same Props in both phases.
package hydrate

import (
	"context"
	"fmt"

	"github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/internal/codec"
	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/logger"
	"github.com/squidcloud/squid-go/pkg/metrics"
)

// Props is what a component renders from.
type Props[P any] struct {
	Data  []client.DocumentData
	Extra P
}

// Component renders props.
type Component[P any] func(Props[P])

// Handoff is passed from the server phase to the client phase.
type Handoff struct {
	Query client.SerializedQuery `cbor:"query" json:"query"`
	Data  []client.DocumentData  `cbor:"data" json:"data"`
}

// Encode returns h as a URL-safe string.
func (h *Handoff) Encode() (string, error) {
	return codec.EncodeString(h)
}

// DecodeHandoff parses a string produced by Encode.
func DecodeHandoff(s string) (*Handoff, error) {
	var h Handoff
	if err := codec.DecodeString(s, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidHandoff, err)
	}
	if err := h.Query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidHandoff, err)
	}
	for i := range h.Query.Conditions {
		h.Query.Conditions[i].Value = codec.Normalize(h.Query.Conditions[i].Value)
	}
	h.Data = normalizeDocs(h.Data)
	return &h, nil
}

type options struct {
	subscribe bool
	log       logger.Logger
}

// Option configures a hydration phase.
type Option func(*options)

// WithSubscribe controls whether the server phase produces a handoff.
// The default is true.
func WithSubscribe(subscribe bool) Option {
	return func(o *options) {
		o.subscribe = subscribe
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func newOptions(opts []Option) options {
	o := options{subscribe: true}
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logger.OrNop(o.log)
	return o
}

// Server renders component with one snapshot of query. It returns the
// handoff for the client phase, or nil when subscribing was turned off.
func Server[P any](ctx context.Context, query client.Query, component Component[P], extra P, opts ...Option) (*Handoff, error) {
	o := newOptions(opts)

	data, err := query.Snapshot(ctx)
	if err != nil {
		metrics.Hydration("server", "error")
		return nil, err
	}
	if data == nil {
		data = []client.DocumentData{}
	}
	if !o.subscribe {
		component(Props[P]{Data: data, Extra: extra})
		metrics.Hydration("server", "ok")
		return nil, nil
	}

	// The server renders the records as the client will decode them.
	var handed []client.DocumentData
	if err := (codec.CBOR{}).Clone(data, &handed); err != nil {
		metrics.Hydration("server", "error")
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidHandoff, err)
	}
	handed = normalizeDocs(handed)
	component(Props[P]{Data: handed, Extra: extra})
	metrics.Hydration("server", "ok")

	o.log.Debug("hydration handoff", "collection", query.Serialize().Collection, "records", len(handed))
	return &Handoff{Query: query.Serialize(), Data: handed}, nil
}

func normalizeDocs(docs []client.DocumentData) []client.DocumentData {
	if docs == nil {
		return []client.DocumentData{}
	}
	for _, d := range docs {
		for k, v := range d {
			d[k] = codec.Normalize(v)
		}
	}
	return docs
}

// View is a live client phase rendering.
type View struct {
	binding *squid.QueryBinding
}

// Client renders component with the handoff data right away, then again
// on every update of the query, using the client attached to ctx.
func Client[P any](ctx context.Context, h *Handoff, component Component[P], extra P, opts ...Option) (*View, error) {
	o := newOptions(opts)
	if h == nil {
		return nil, constants.ErrInvalidHandoff
	}

	c, err := squid.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	query, err := client.DeserializeQuery(c, h.Query)
	if err != nil {
		metrics.Hydration("client", "error")
		return nil, err
	}

	data := h.Data
	if data == nil {
		data = []client.DocumentData{}
	}
	component(Props[P]{Data: data, Extra: extra})

	binding := squid.NewQueryBinding(func(s squid.State[[]client.DocumentData]) {
		switch {
		case s.Err != nil:
			o.log.Warn("hydrated query failed", "collection", h.Query.Collection, "error", s.Err)
		case !s.Loading && !s.Complete:
			component(Props[P]{Data: s.Data, Extra: extra})
		}
	}, squid.WithName("hydrate"), squid.WithLogger(o.log))
	binding.Update(query, squid.QueryOptions{Subscribe: true, InitialData: data})
	metrics.Hydration("client", "ok")

	return &View{binding: binding}, nil
}

// State returns the state of the live query.
func (v *View) State() squid.State[[]client.DocumentData] {
	return v.binding.State()
}

// Close stops the live updates.
func (v *View) Close() {
	v.binding.Close()
}
