// Package acquire declares the boundary between the ingestion loop and
// the external content-gathering collaborators spec.md section 1 places
// out of scope (RSS/HTTP acquisition, feed polling, site-specific
// scraping). The core only consumes ContentSource; no HTTP client lives
// here.
package acquire

import "context"

// Item is one unit of raw text pulled from a ContentSource, already
// attributed to the domain it came from.
type Item struct {
	Domain string
	Text   string
}

// ContentSource is polled by the ingestion loop once per tick. A real
// deployment wires in an RSS poller, a web crawler, or a manual feed;
// this package defines only the interface the loop depends on.
type ContentSource interface {
	// Fetch returns whatever new items are available since the last
	// call. An empty slice and nil error means nothing new; sources are
	// expected to track their own high-water mark internally.
	Fetch(ctx context.Context) ([]Item, error)
}
