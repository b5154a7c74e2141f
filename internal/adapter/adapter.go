// Package adapter holds the marketplace adapter contract and its four
// implementations (Mercari, Yahoo Auction, Suruga-ya, Lashinbang). Each
// adapter translates a monitored item's keywords into a normalized
// ScrapeResult; failure to reach or parse a page surfaces as an
// AdapterFailure, never as a NotFound result.
package adapter

import (
	"context"
	"time"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Adapter is one marketplace integration. Scrape tries the item's search
// keywords in priority order until candidates are found; absence of any
// matching listing is a NotFound result, not an error. A non-nil error is
// always an *model.AdapterFailure.
type Adapter interface {
	Platform() model.Platform
	Scrape(ctx context.Context, item model.MonitoredItem) (*model.ScrapeResult, error)
}

// Options configures one adapter instance.
type Options struct {
	// BaseURL overrides the marketplace origin, used by tests to point the
	// adapter at a fixture server.
	BaseURL string
	// MinInterval is the floor between requests to this marketplace.
	// Enforced inside the adapter: anti-blocking is a correctness
	// requirement, not caller courtesy.
	MinInterval time.Duration
	// Jitter is the randomized extra delay added to MinInterval.
	Jitter time.Duration
	// MaxCandidates caps how many search hits are considered per keyword.
	MaxCandidates int
}

func (o *Options) defaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = 3 * time.Second
	}
	if o.Jitter <= 0 {
		o.Jitter = time.Second
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 20
	}
}

// notFound builds the valid "genuinely unavailable" result.
func notFound(platform model.Platform, itemID string) *model.ScrapeResult {
	return &model.ScrapeResult{
		Platform:   platform,
		ItemID:     itemID,
		Status:     model.StatusNotFound,
		ObservedAt: time.Now().UTC(),
	}
}

// failure classifies err into the adapter failure taxonomy.
func failure(platform model.Platform, itemID string, err error) *model.AdapterFailure {
	if f, ok := model.AsFailure(err); ok {
		return f
	}
	kind := fetch.Classify(err)
	if kind == "" {
		kind = model.FailureUnknown
	}
	return model.NewFailure(platform, itemID, kind, err.Error())
}

// structureChanged reports markup drift: the page loaded but the expected
// elements are gone, so the scraper needs updating rather than the item
// being unavailable.
func structureChanged(platform model.Platform, itemID, msg string) *model.AdapterFailure {
	return model.NewFailure(platform, itemID, model.FailureStructureChanged, msg)
}
