package constants

import "time"

const (
	// DefaultRegion is used when client options leave the region empty.
	DefaultRegion = "local"

	// DefaultPageSize is the page size of a pagination handle created with a zero size.
	DefaultPageSize = 100

	// DefaultHTTPTimeout bounds custom API chat requests.
	DefaultHTTPTimeout = 60 * time.Second

	// ClientIDHeader carries the client id on custom API chat requests.
	ClientIDHeader = "x-squid-clientid"
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)
