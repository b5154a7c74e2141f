package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Mercari scrapes jp.mercari.com. Listing pages are React-rendered, so the
// transport is expected to hand back rendered content; extraction works on
// the data-testid hooks Mercari keeps stable across redesigns.
type Mercari struct {
	site
}

// Sold markers observed on Mercari listing pages.
var mercariSoldMarkers = []string{
	"売り切れ",
	"売切れ",
	"SOLD",
	"販売終了",
	"この商品は売り切れです",
}

// NewMercari creates the Mercari adapter.
func NewMercari(fetcher fetch.Fetcher, opts Options) *Mercari {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://jp.mercari.com"
	}
	return &Mercari{site: newSite(model.PlatformMercari, fetcher, opts)}
}

func (a *Mercari) Platform() model.Platform { return model.PlatformMercari }

// Scrape searches each keyword until a matching listing is found, then
// extracts price and availability from its detail page.
func (a *Mercari) Scrape(ctx context.Context, item model.MonitoredItem) (*model.ScrapeResult, error) {
	best, ok, err := a.searchKeywords(ctx, item, a.search)
	if err != nil {
		return nil, failure(a.platform, item.ID, err)
	}
	if !ok {
		return notFound(a.platform, item.ID), nil
	}
	res, err := a.extract(ctx, item, best)
	if err != nil {
		return nil, failure(a.platform, item.ID, err)
	}
	return res, nil
}

func (a *Mercari) search(ctx context.Context, keyword string) ([]candidate, error) {
	searchURL := fmt.Sprintf("%s/search?keyword=%s", a.opts.BaseURL, url.QueryEscape(keyword))
	doc, err := a.fetchDoc(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	return a.collectLinks(doc, `a[href*="/item/m"]`, a.opts.BaseURL), nil
}

func (a *Mercari) extract(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	doc, err := a.fetchDoc(ctx, c.URL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(`[data-testid="name"]`).First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		return nil, structureChanged(a.platform, item.ID, "mercari: listing title not found at "+c.URL)
	}

	priceText := doc.Find(`[data-testid="price"], .item-price, mer-price`).First().Text()
	price, hasPrice := parsePrice(priceText)

	pageText := doc.Text()
	_, sold := containsAny(pageText, mercariSoldMarkers)
	if !sold {
		// No sold marker and no buy button means the listing is no longer
		// purchasable even though the page is still up.
		if doc.Find(`[data-testid="buy-button"]`).Length() == 0 {
			sold = true
		}
	}

	res := &model.ScrapeResult{
		Platform:     a.platform,
		ItemID:       item.ID,
		ListingURL:   c.URL,
		MatchedTitle: title,
		ObservedAt:   time.Now().UTC(),
		ExactMatch:   isExactMatch(title, item),
	}

	switch {
	case sold && hasPrice:
		res.Status = model.StatusRecentlySold
		res.Price = &price
	case sold:
		// Sold page without a recoverable price: report absence so the
		// price-iff-status invariant holds.
		res.Status = model.StatusNotFound
	case hasPrice:
		res.Status = model.StatusAvailable
		res.Price = &price
	default:
		return nil, structureChanged(a.platform, item.ID, "mercari: price not found on live listing "+c.URL)
	}
	return res, nil
}
