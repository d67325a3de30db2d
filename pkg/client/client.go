// Package client defines the contract the bindings consume: a realtime
// database and AI client whose implementation lives elsewhere.
//
// Two implementations ship with this module: the SurrealDB backed client in
// pkg/surreal and the in-memory fake used by tests. Any other implementation
// only has to satisfy these interfaces.
package client

import (
	"context"
	"io"

	"github.com/squidcloud/squid-go/pkg/rx"
)

// DocumentData is the materialized content of a single record.
type DocumentData = map[string]any

// Client is a configured handle to the remote service.
type Client interface {
	// Collection returns a handle to the named collection. An empty
	// integrationID selects the built-in database.
	Collection(name, integrationID string) Collection
	Queue(name, integrationID string) Queue
	AI() AI
	Jobs() Jobs

	// DeserializeQuery binds a serialized query descriptor to this client.
	DeserializeQuery(s SerializedQuery) (Query, error)

	Options() Options
	ConnectionDetails() ConnectionDetails
	Close(ctx context.Context) error
}

// ConnectionDetails describes the live link of a client.
type ConnectionDetails struct {
	ClientID  string
	Connected bool
}

// Collection is a named set of documents.
type Collection interface {
	Name() string
	IntegrationID() string
	Doc(id string) DocumentRef
	Query() Query
}

// DocumentRef points at one document, whether or not it exists.
type DocumentRef interface {
	// RefID identifies the document across clients.
	RefID() string
	// Peek returns the locally cached content without any I/O.
	Peek() (DocumentData, bool)
	// Snapshot fetches the current content. A missing document yields nil data.
	Snapshot(ctx context.Context) (DocumentData, error)
	// Snapshots streams the content on every change.
	Snapshots() rx.Observable[DocumentData]
}

// Query is a live handle over a query descriptor. Builder methods never
// modify the receiver; each returns a new Query.
type Query interface {
	Where(field string, op Operator, value any) Query
	Eq(field string, value any) Query
	SortBy(field string, asc bool) Query
	Limit(n int) Query
	Dereference() Query

	Snapshot(ctx context.Context) ([]DocumentData, error)
	Snapshots() rx.Observable[[]DocumentData]
	// Peek is a best-effort cached read.
	Peek() ([]DocumentData, bool)
	Serialize() SerializedQuery
	Paginate(opts PaginationOptions) Pagination
}

// Pagination moves a window over the results of a query.
type Pagination interface {
	ObserveState() rx.Observable[PaginationState]
	Next()
	Prev()
	Unsubscribe()
}

// PaginationOptions configures a pagination handle.
type PaginationOptions struct {
	PageSize  int  `cbor:"pageSize" json:"pageSize"`
	Subscribe bool `cbor:"subscribe" json:"subscribe"`
}

// PaginationState is what a pagination handle reports after each move.
type PaginationState struct {
	Data      []DocumentData
	HasNext   bool
	HasPrev   bool
	IsLoading bool
}

// Queue is a producer/consumer message queue.
type Queue interface {
	Produce(ctx context.Context, messages []any) error
	Consume() rx.Observable[any]
}

// Jobs gives access to asynchronous jobs started on the backend.
type Jobs interface {
	// AwaitJob blocks until the job finishes and returns its textual result.
	AwaitJob(ctx context.Context, jobID string) (string, error)
}

// File is an uploaded file, for example audio to transcribe.
type File struct {
	Name   string
	Reader io.Reader
}

// DeserializeQuery binds s to c.
func DeserializeQuery(c Client, s SerializedQuery) (Query, error) {
	return c.DeserializeQuery(s)
}
