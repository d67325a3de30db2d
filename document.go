package squid

import (
	"context"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// DocOptions control document bindings.
type DocOptions struct {
	// Subscribe follows every change instead of fetching once.
	Subscribe bool
	Disabled  bool
}

// DocBinding follows a single document.
type DocBinding struct {
	ctx context.Context
	b   *Binding[client.DocumentData]
}

func NewDocBinding(onChange func(State[client.DocumentData]), opts ...Option) *DocBinding {
	cfg := newConfig("doc", opts)
	return &DocBinding{
		ctx: cfg.ctx,
		b:   NewBinding(onChange, append(opts, WithName(cfg.name))...),
	}
}

// Update points the binding at doc. Locally cached content is reported
// right away; a one-shot fetch of a cached document does not report loading.
func (d *DocBinding) Update(doc client.DocumentRef, opts DocOptions) State[client.DocumentData] {
	initial, cached := doc.Peek()
	return d.b.Observe(func() rx.Observable[client.DocumentData] {
		if opts.Subscribe {
			return doc.Snapshots()
		}
		return rx.FromFuture(d.ctx, doc.Snapshot)
	}, ObserveOptions[client.DocumentData]{
		Disabled:    opts.Disabled,
		InitialData: initial,
		Warm:        cached,
	}, doc.RefID(), opts.Subscribe)
}

func (d *DocBinding) State() State[client.DocumentData] { return d.b.State() }
func (d *DocBinding) Close()                             { d.b.Close() }

// DocsBinding follows a set of documents. Data holds one entry per
// document, in order, nil for documents that do not exist.
type DocsBinding struct {
	ctx context.Context
	b   *Binding[[]client.DocumentData]
}

func NewDocsBinding(onChange func(State[[]client.DocumentData]), opts ...Option) *DocsBinding {
	cfg := newConfig("docs", opts)
	return &DocsBinding{
		ctx: cfg.ctx,
		b:   NewBinding(onChange, append(opts, WithName(cfg.name))...),
	}
}

// Update points the binding at docs. Nothing is reported until every
// document has produced a value.
func (d *DocsBinding) Update(docs []client.DocumentRef, opts DocOptions) State[[]client.DocumentData] {
	refIDs := make([]string, len(docs))
	initial := make([]client.DocumentData, len(docs))
	for i, doc := range docs {
		refIDs[i] = doc.RefID()
		initial[i], _ = doc.Peek()
	}

	return d.b.Observe(func() rx.Observable[[]client.DocumentData] {
		sources := make([]rx.Observable[client.DocumentData], len(docs))
		for i, doc := range docs {
			if opts.Subscribe {
				sources[i] = doc.Snapshots()
			} else {
				sources[i] = rx.FromFuture(d.ctx, doc.Snapshot)
			}
		}
		return rx.CombineLatest(sources)
	}, ObserveOptions[[]client.DocumentData]{
		Disabled:    opts.Disabled,
		InitialData: initial,
		Warm:        len(docs) == 0,
	}, refIDs, opts.Subscribe)
}

func (d *DocsBinding) State() State[[]client.DocumentData] { return d.b.State() }
func (d *DocsBinding) Close()                               { d.b.Close() }
