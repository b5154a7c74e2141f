package model

import "time"

// EventKind classifies a detected change.
type EventKind string

const (
	EventNewItemFound        EventKind = "new_item_found"
	EventPriceIncrease       EventKind = "price_increase"
	EventPriceDecrease       EventKind = "price_decrease"
	EventSoldOut             EventKind = "sold_out"
	EventBackInStock         EventKind = "back_in_stock"
	EventCreatorAnnouncement EventKind = "creator_announcement"
)

// CreatorEntry is one post on a creator's announcement feed. Entries are
// deduplicated by ID, not content, since announcement text may be edited
// without being a new event.
type CreatorEntry struct {
	ID          string    `json:"id"`
	Creator     string    `json:"creator"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
}

// ChangeEvent is a derived, immutable fact computed by comparing two
// successive snapshots (or a creator feed against its seen set).
type ChangeEvent struct {
	ID         string        `json:"id,omitempty"`
	Kind       EventKind     `json:"kind"`
	ItemID     string        `json:"item_id,omitempty"`
	Platform   Platform      `json:"platform,omitempty"`
	Old        *ScrapeResult `json:"old,omitempty"`
	New        *ScrapeResult `json:"new,omitempty"`
	Entry      *CreatorEntry `json:"entry,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// PriceDelta returns new minus old price for price events, zero otherwise.
func (e ChangeEvent) PriceDelta() int64 {
	if e.Old == nil || e.New == nil || e.Old.Price == nil || e.New.Price == nil {
		return 0
	}
	return *e.New.Price - *e.Old.Price
}
