// Package fetch is the transport capability: given a URL it returns page
// content. Adapters depend on the Fetcher interface only, so tests inject
// recorded fixtures and the HTTP implementation stays swappable.
package fetch

import "context"

// Page is one fetched page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves rendered page content for a URL. Implementations own
// their anti-blocking behavior (identity headers, per-host pacing, retry);
// callers only see content or a classified error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}
