// Package creator watches announcement feeds (creator blogs, circle news
// pages) and reports entries that have not been seen before.
package creator

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/config"
	"github.com/dakiwatch/dakiwatch/internal/detect"
	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Source extracts announcement entries from one feed page.
type Source interface {
	FetchEntries(ctx context.Context, feed config.CreatorFeed) ([]model.CreatorEntry, error)
}

// seenStore is the slice of the store the monitor needs.
type seenStore interface {
	GetCreatorSeen(ctx context.Context, creator string) (map[string]bool, error)
	PutCreatorSeen(ctx context.Context, creator string, entries []model.CreatorEntry) error
}

// defaultSelector matches common blog/news list markup when a feed does
// not configure its own.
const defaultSelector = "article a, .entry-title a, .news-list a, ul.news a"

// HTMLFeed scrapes entries out of an HTML page with a CSS selector.
type HTMLFeed struct {
	fetcher fetch.Fetcher
}

// NewHTMLFeed builds the goquery-backed Source.
func NewHTMLFeed(fetcher fetch.Fetcher) *HTMLFeed {
	return &HTMLFeed{fetcher: fetcher}
}

// FetchEntries pulls the feed page and extracts one entry per matched
// anchor. Entry IDs are derived from the resolved link URL so a retitled
// post keeps its identity.
func (h *HTMLFeed) FetchEntries(ctx context.Context, feed config.CreatorFeed) ([]model.CreatorEntry, error) {
	page, err := h.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "creator: fetch feed %s", feed.Name)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, eris.Wrapf(err, "creator: parse feed %s", feed.Name)
	}

	selector := feed.Selector
	if selector == "" {
		selector = defaultSelector
	}
	base, err := url.Parse(feed.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "creator: parse feed url %s", feed.Name)
	}

	var entries []model.CreatorEntry
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		link := href
		if ref, err := url.Parse(href); err == nil {
			link = base.ResolveReference(ref).String()
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return
		}
		id := entryID(feed.Name, link)
		if seen[id] {
			return
		}
		seen[id] = true
		entries = append(entries, model.CreatorEntry{
			ID:          id,
			Creator:     feed.Name,
			Title:       title,
			URL:         link,
			PublishedAt: publishedAt(sel),
		})
	})
	return entries, nil
}

// publishedLayouts covers the date formats Japanese blog engines commonly
// render into <time> nodes.
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006年1月2日",
}

// publishedAt pulls a publication timestamp from the entry's surrounding
// markup. Feeds without a <time> node leave it zero and the event falls
// back to the scrape time.
func publishedAt(sel *goquery.Selection) time.Time {
	node := sel.Closest("article, li, .entry").Find("time").First()
	if node.Length() == 0 {
		return time.Time{}
	}
	raw, ok := node.Attr("datetime")
	if !ok || strings.TrimSpace(raw) == "" {
		raw = node.Text()
	}
	return parsePublished(strings.TrimSpace(raw))
}

func parsePublished(raw string) time.Time {
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func entryID(creator, href string) string {
	sum := sha1.Sum([]byte(creator + "\x00" + href))
	return hex.EncodeToString(sum[:8])
}

// Monitor checks every configured feed once per cycle.
type Monitor struct {
	feeds  []config.CreatorFeed
	source Source
	store  seenStore
}

// NewMonitor wires feeds, a source, and the seen-set store together.
func NewMonitor(feeds []config.CreatorFeed, source Source, store seenStore) *Monitor {
	return &Monitor{feeds: feeds, source: source, store: store}
}

// Check fetches every feed and returns announcement events for unseen
// entries. The seen set is persisted only after a feed fetch succeeds, so
// a transient fetch failure never silently marks entries as seen. Feed
// failures are logged and skipped; one broken blog never blocks the rest.
func (m *Monitor) Check(ctx context.Context) ([]model.ChangeEvent, error) {
	var events []model.ChangeEvent
	for _, feed := range m.feeds {
		entries, err := m.source.FetchEntries(ctx, feed)
		if err != nil {
			zap.L().Warn("creator feed check failed",
				zap.String("creator", feed.Name),
				zap.Error(err),
			)
			continue
		}

		seen, err := m.store.GetCreatorSeen(ctx, feed.Name)
		if err != nil {
			return nil, err
		}
		fresh := detect.NewEntries(seen, entries)
		for i := range fresh {
			if fresh[i].OccurredAt.IsZero() {
				fresh[i].OccurredAt = time.Now().UTC()
			}
		}
		events = append(events, fresh...)

		if err := m.store.PutCreatorSeen(ctx, feed.Name, entries); err != nil {
			return nil, err
		}
	}
	return events, nil
}
