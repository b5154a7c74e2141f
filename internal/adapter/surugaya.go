package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Surugaya scrapes the Suruga-ya web shop. Suruga-ya sells first-party, so
// a listing stays up after selling out and flips to a 品切 (out of stock)
// marker instead of disappearing.
type Surugaya struct {
	site
}

var (
	surugayaSoldMarkers = []string{
		"品切れ",
		"通販品切",
		"品切",
		"在庫なし",
		"売り切れ",
	}
	surugayaAvailableMarkers = []string{
		"カートに入れる",
		"かごに入れる",
		"在庫あり",
	}
)

// NewSurugaya creates the Suruga-ya adapter.
func NewSurugaya(fetcher fetch.Fetcher, opts Options) *Surugaya {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.suruga-ya.jp"
	}
	return &Surugaya{site: newSite(model.PlatformSurugaya, fetcher, opts)}
}

func (a *Surugaya) Platform() model.Platform { return model.PlatformSurugaya }

func (a *Surugaya) Scrape(ctx context.Context, item model.MonitoredItem) (*model.ScrapeResult, error) {
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

func (a *Surugaya) search(ctx context.Context, keyword string) ([]candidate, error) {
	searchURL := fmt.Sprintf("%s/search?category=&search_word=%s", a.opts.BaseURL, url.QueryEscape(keyword))
	doc, err := a.fetchDoc(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	return a.collectLinks(doc, `a[href*="/product/detail/"]`, a.opts.BaseURL), nil
}

func (a *Surugaya) extract(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	doc, err := a.fetchDoc(ctx, c.URL)
	if err != nil {
		return nil, err
	}

	title := firstText(doc, `h1.title`, `h1`, `.item_title`, `[itemprop="name"]`)
	if title == "" {
		return nil, structureChanged(a.platform, item.ID, "surugaya: listing title not found at "+c.URL)
	}

	var (
		price    int64
		hasPrice bool
	)
	for _, sel := range []string{`.price`, `.item_price`, `[itemprop="price"]`, `p.price`} {
		if price, hasPrice = parsePrice(doc.Find(sel).First().Text()); hasPrice {
			break
		}
	}

	pageText := doc.Text()
	_, sold := containsAny(pageText, surugayaSoldMarkers)
	_, inStock := containsAny(pageText, surugayaAvailableMarkers)

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
		return nil, structureChanged(a.platform, item.ID, "surugaya: price not found on live listing "+c.URL)
	}
	return res, nil
}

// firstText returns the first non-empty text among the selectors.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if txt := strings.TrimSpace(doc.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}
