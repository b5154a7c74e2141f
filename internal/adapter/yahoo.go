package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// YahooAuction scrapes Yahoo! Auctions and the PayPay Flea Market, which
// share listings and a search backend. Ended auctions stay readable with
// their final price, so they map to RecentlySold rather than disappearing.
type YahooAuction struct {
	site
	paypayURL string
}

var (
	// Bare 終了 appears on every live auction ("終了日時"), so only the
	// full closed-auction phrases count.
	yahooEndedMarkers = []string{
		"オークションは終了しました",
		"このオークションは終了しています",
	}
	paypaySoldMarkers = []string{
		"売り切れ",
		"SOLD",
	}
)

// NewYahooAuction creates the Yahoo Auction adapter. When opts.BaseURL is
// overridden (tests), PayPay searches go to the same origin.
func NewYahooAuction(fetcher fetch.Fetcher, opts Options) *YahooAuction {
	paypayURL := opts.BaseURL
	if opts.BaseURL == "" {
		opts.BaseURL = "https://auctions.yahoo.co.jp"
		paypayURL = "https://paypayfleamarket.yahoo.co.jp"
	}
	return &YahooAuction{
		site:      newSite(model.PlatformYahooAuction, fetcher, opts),
		paypayURL: paypayURL,
	}
}

func (a *YahooAuction) Platform() model.Platform { return model.PlatformYahooAuction }

func (a *YahooAuction) Scrape(ctx context.Context, item model.MonitoredItem) (*model.ScrapeResult, error) {
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

// search queries the auction site first, then the flea market, and merges
// the candidates.
func (a *YahooAuction) search(ctx context.Context, keyword string) ([]candidate, error) {
	q := url.QueryEscape(keyword)

	auctionURL := fmt.Sprintf("%s/search/search?p=%s&va=%s", a.opts.BaseURL, q, q)
	doc, err := a.fetchDoc(ctx, auctionURL)
	if err != nil {
		return nil, err
	}
	cands := a.collectLinks(doc, `a[href*="/auction/"], a[href*="/item/"]`, a.opts.BaseURL)

	paypayURL := fmt.Sprintf("%s/search/%s", a.paypayURL, q)
	doc, err = a.fetchDoc(ctx, paypayURL)
	if err != nil {
		// With auction candidates in hand a flea-market outage only
		// narrows the search; with none it would masquerade as NotFound.
		if len(cands) == 0 {
			return nil, err
		}
		zap.L().Warn("paypay search failed, keeping auction candidates",
			zap.String("keyword", keyword),
			zap.Error(err),
		)
		return cands, nil
	}
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		seen[c.URL] = true
	}
	for _, c := range a.collectLinks(doc, `a[href*="/item/"]`, a.paypayURL) {
		if !seen[c.URL] {
			cands = append(cands, c)
		}
	}
	return cands, nil
}

func (a *YahooAuction) extract(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	if strings.Contains(c.URL, "paypay") {
		return a.extractPayPay(ctx, item, c)
	}
	return a.extractAuction(ctx, item, c)
}

func (a *YahooAuction) extractAuction(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	doc, err := a.fetchDoc(ctx, c.URL)
	if err != nil {
		return nil, err
	}

	title := firstText(doc, "h1.ProductTitle__text", "h1")
	if title == "" {
		return nil, structureChanged(a.platform, item.ID, "yahoo: auction title not found at "+c.URL)
	}

	price, hasPrice := parsePrice(doc.Find(".Price__value, .Price--current").First().Text())

	_, ended := containsAny(doc.Text(), yahooEndedMarkers)

	res := &model.ScrapeResult{
		Platform:     a.platform,
		ItemID:       item.ID,
		ListingURL:   c.URL,
		MatchedTitle: title,
		ObservedAt:   time.Now().UTC(),
		ExactMatch:   isExactMatch(title, item),
	}

	switch {
	case ended && hasPrice:
		res.Status = model.StatusRecentlySold
		res.Price = &price
	case ended:
		res.Status = model.StatusNotFound
	case hasPrice:
		res.Status = model.StatusAvailable
		res.Price = &price
	default:
		return nil, structureChanged(a.platform, item.ID, "yahoo: price not found on live auction "+c.URL)
	}
	return res, nil
}

func (a *YahooAuction) extractPayPay(ctx context.Context, item model.MonitoredItem, c candidate) (*model.ScrapeResult, error) {
	doc, err := a.fetchDoc(ctx, c.URL)
	if err != nil {
		return nil, err
	}

	title := firstText(doc, "h1", ".sc-product-name")
	if title == "" {
		return nil, structureChanged(a.platform, item.ID, "yahoo: paypay title not found at "+c.URL)
	}

	price, hasPrice := parsePrice(doc.Find(`.sc-price, [class*="price"]`).First().Text())

	_, sold := containsAny(doc.Text(), paypaySoldMarkers)

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
		res.Status = model.StatusNotFound
	case hasPrice:
		res.Status = model.StatusAvailable
		res.Price = &price
	default:
		return nil, structureChanged(a.platform, item.ID, "yahoo: price not found on live paypay listing "+c.URL)
	}
	return res, nil
}
