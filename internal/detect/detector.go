// Package detect turns two successive snapshots into typed change events.
// Detection is a pure function of (previous snapshot or absent, new
// result): identical inputs always yield identical event sequences, and a
// comparison where nothing changed yields nothing. Adapter failures never
// reach this package, so a transient scraping failure can never masquerade
// as a SoldOut.
package detect

import (
	"time"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Detect compares the stored snapshot (nil when the pair has never been
// scraped successfully) against a new result. Rules, in precedence order:
//
//  1. no snapshot + Available/RecentlySold   -> NewItemFound
//  2. snapshot Available -> Available, price moved -> PriceIncrease/Decrease
//  3. snapshot Available -> NotFound/RecentlySold  -> SoldOut
//  4. snapshot NotFound/RecentlySold -> Available  -> BackInStock
//  5. otherwise nothing
func Detect(prev *model.Snapshot, next model.ScrapeResult) []model.ChangeEvent {
	now := next.ObservedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if prev == nil {
		if next.Status == model.StatusAvailable || next.Status == model.StatusRecentlySold {
			return []model.ChangeEvent{{
				Kind:       model.EventNewItemFound,
				ItemID:     next.ItemID,
				Platform:   next.Platform,
				New:        &next,
				OccurredAt: now,
			}}
		}
		return nil
	}

	old := prev.ScrapeResult

	switch {
	case old.Status == model.StatusAvailable && next.Status == model.StatusAvailable:
		if old.Price == nil || next.Price == nil || *old.Price == *next.Price {
			return nil
		}
		kind := model.EventPriceIncrease
		if *next.Price < *old.Price {
			kind = model.EventPriceDecrease
		}
		return []model.ChangeEvent{{
			Kind:       kind,
			ItemID:     next.ItemID,
			Platform:   next.Platform,
			Old:        &old,
			New:        &next,
			OccurredAt: now,
		}}

	case old.Status == model.StatusAvailable &&
		(next.Status == model.StatusNotFound || next.Status == model.StatusRecentlySold):
		return []model.ChangeEvent{{
			Kind:       model.EventSoldOut,
			ItemID:     next.ItemID,
			Platform:   next.Platform,
			Old:        &old,
			New:        &next,
			OccurredAt: now,
		}}

	case (old.Status == model.StatusNotFound || old.Status == model.StatusRecentlySold) &&
		next.Status == model.StatusAvailable:
		return []model.ChangeEvent{{
			Kind:       model.EventBackInStock,
			ItemID:     next.ItemID,
			Platform:   next.Platform,
			Old:        &old,
			New:        &next,
			OccurredAt: now,
		}}
	}

	return nil
}
