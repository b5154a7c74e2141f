package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Lashinbang scrapes shop.lashinbang.com, a first-party secondhand doujin
// shop like Suruga-ya.
type Lashinbang struct {
	site
}

var (
	lashinbangSoldMarkers = []string{
		"在庫なし",
		"品切中",
		"品切れ",
		"売り切れ",
		"SOLD",
	}
	lashinbangAvailableMarkers = []string{
		"在庫あり",
		"カートに入れる",
	}
)

// NewLashinbang creates the Lashinbang adapter.
func NewLashinbang(fetcher fetch.Fetcher, opts Options) *Lashinbang {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://shop.lashinbang.com"
	}
	return &Lashinbang{site: newSite(model.PlatformLashinbang, fetcher, opts)}
}

func (a *Lashinbang) Platform() model.Platform { return model.PlatformLashinbang }

func (a *Lashinbang) Scrape(ctx context.Context, item model.MonitoredItem) (*model.ScrapeResult, error) {
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

func (a *Lashinbang) search(ctx context.Context, keyword string) ([]candidate, error) {
	searchURL := fmt.Sprintf("%s/products/list?name=%s", a.opts.BaseURL, url.QueryEscape(keyword))
	doc, err := a.fetchDoc(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	return a.collectLinks(doc, `a[href*="/products/detail"]`, a.opts.BaseURL), nil
}

func (a *Lashinbang) extract(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	doc, err := a.fetchDoc(ctx, c.URL)
	if err != nil {
		return nil, err
	}

	title := firstText(doc, "h1", ".item_name", ".product-title")
	if title == "" {
		return nil, structureChanged(a.platform, item.ID, "lashinbang: listing title not found at "+c.URL)
	}

	// Price text reads like "1,980円税込".
	price, hasPrice := parsePrice(doc.Find(".price").First().Text())

	pageText := doc.Text()
	_, sold := containsAny(pageText, lashinbangSoldMarkers)
	_, inStock := containsAny(pageText, lashinbangAvailableMarkers)

	res := &model.ScrapeResult{
		Platform:     a.platform,
		ItemID:       item.ID,
		ListingURL:   c.URL,
		MatchedTitle: title,
		ObservedAt:   time.Now().UTC(),
		ExactMatch:   isExactMatch(title, item),
	}

	switch {
	case sold && !inStock && hasPrice:
		res.Status = model.StatusRecentlySold
		res.Price = &price
	case sold && !inStock:
		res.Status = model.StatusNotFound
	case hasPrice:
		res.Status = model.StatusAvailable
		res.Price = &price
	default:
		return nil, structureChanged(a.platform, item.ID, "lashinbang: price not found on live listing "+c.URL)
	}
	return res, nil
}
