// The [squid] package binds a realtime database and AI client to long-lived
// Go values that hold loading, data, error and completion state.
//
// # Bindings
//
// A binding is the Go counterpart of a UI hook. It is created once, updated
// on every "render" with the current inputs, and closed when its owner goes
// away. Whenever its state changes, the binding calls the OnChange callback it
// was created with.
//
// [Binding] adapts any [rx.Observable]. Its inputs are compared by their
// canonical CBOR encoding, so passing structurally equal dependencies on every
// update never resubscribes. When dependencies do change, the new stream is
// attached before the old one is released, which lets streams that share an
// underlying live subscription hand over without tearing it down.
//
// [PromiseBinding] does the same for one-shot futures.
//
// The domain bindings build on these two:
//
//   - [DocBinding] and [DocsBinding] follow one or several documents
//   - [QueryBinding] follows the results of a query
//   - [PaginationBinding] pages through a query
//   - [QueueBinding] consumes from and produces to a queue
//   - [AIChat] keeps a conversation with an AI agent or integration
//
// # Client instances
//
// Bindings find their client in a [context.Context]. Use [WithClient] to
// attach one, or a [Provider] to build and share one client per distinct set
// of [client.Options].
//
// # Hydration
//
// Server side rendering with a live handoff to the client lives in
// [github.com/squidcloud/squid-go/pkg/hydrate].
//
// [rx.Observable]: https://pkg.go.dev/github.com/squidcloud/squid-go/pkg/rx#Observable
// [client.Options]: https://pkg.go.dev/github.com/squidcloud/squid-go/pkg/client#Options
package squid
