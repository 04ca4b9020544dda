package transport

import (
	"context"

	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
)

// Fetcher fetches pages of query results from
// a partitioned container.
type Fetcher interface {
	// FetchPage returns the next page of results for r.
	// state is nil for the first page of a range. Otherwise
	// it is the state returned with the previous page of r
	// or, after a split, of the range r was split from.
	// hint is the preferred maximum number of items; zero
	// means no preference. The returned page's state must
	// name r. A page without a state means r is exhausted.
	FetchPage(ctx context.Context, r partition.Range, state *page.State, hint int) (page.Page[page.State], error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, r partition.Range, state *page.State, hint int) (page.Page[page.State], error)

// FetchPage implements Fetcher
func (f FetcherFunc) FetchPage(ctx context.Context, r partition.Range, state *page.State, hint int) (page.Page[page.State], error) {
	return f(ctx, r, state, hint)
}
