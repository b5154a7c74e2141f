package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Platform identifies one marketplace integration.
type Platform string

const (
	PlatformMercari      Platform = "mercari"
	PlatformYahooAuction Platform = "yahoo_auction"
	PlatformSurugaya     Platform = "surugaya"
	PlatformLashinbang   Platform = "lashinbang"
)

// AllPlatforms returns every known platform in stable order.
func AllPlatforms() []Platform {
	return []Platform{PlatformMercari, PlatformYahooAuction, PlatformSurugaya, PlatformLashinbang}
}

// Status is the market state of one item on one platform.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusRecentlySold Status = "recently_sold"
	StatusNotFound     Status = "not_found"
)

// SnapshotKey identifies the (item, platform) pair a snapshot belongs to.
type SnapshotKey struct {
	ItemID   string   `json:"item_id"`
	Platform Platform `json:"platform"`
}

// ScrapeResult is the normalized outcome of one adapter invocation for one
// (item, platform) pair. Price is in JPY and present iff the status is not
// NotFound. MatchedTitle is the marketplace's own listing title, kept for
// traceability.
type ScrapeResult struct {
	Platform     Platform  `json:"platform"`
	ItemID       string    `json:"item_id"`
	Status       Status    `json:"status"`
	Price        *int64    `json:"price,omitempty"`
	ListingURL   string    `json:"listing_url,omitempty"`
	MatchedTitle string    `json:"matched_title,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
	ExactMatch   bool      `json:"exact_match"`
}

// Key returns the (item, platform) key for this result.
func (r ScrapeResult) Key() SnapshotKey {
	return SnapshotKey{ItemID: r.ItemID, Platform: r.Platform}
}

// Validate enforces the result invariant: price absent iff status is NotFound.
func (r ScrapeResult) Validate() error {
	if r.ItemID == "" || r.Platform == "" {
		return eris.New("model: scrape result missing item or platform")
	}
	switch r.Status {
	case StatusAvailable, StatusRecentlySold:
		if r.Price == nil {
			return eris.Errorf("model: %s result for %s has status %s without a price", r.Platform, r.ItemID, r.Status)
		}
	case StatusNotFound:
		if r.Price != nil {
			return eris.Errorf("model: %s result for %s is not_found but carries a price", r.Platform, r.ItemID)
		}
	default:
		return eris.Errorf("model: unknown status %q", r.Status)
	}
	return nil
}

// Snapshot is the most recently persisted ScrapeResult for one
// (item, platform) pair. Mutated only after a successful comparison;
// adapter failures never touch it.
type Snapshot struct {
	ScrapeResult
	FirstSeen time.Time `json:"first_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceOf is a convenience for building optional prices in literals.
func PriceOf(v int64) *int64 { return &v }
