package adapter

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// site bundles the pieces every marketplace adapter shares: the transport,
// the adapter-local throttle, and its options.
type site struct {
	platform model.Platform
	fetcher  fetch.Fetcher
	throttle *throttle
	opts     Options
}

func newSite(platform model.Platform, fetcher fetch.Fetcher, opts Options) site {
	opts.defaults()
	return site{
		platform: platform,
		fetcher:  fetcher,
		throttle: newThrottle(opts.MinInterval, opts.Jitter),
		opts:     opts,
	}
}

// fetchDoc throttles, fetches one page, and parses it.
func (s *site) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.throttle.wait(ctx); err != nil {
		return nil, err
	}
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, eris.Wrapf(err, "adapter: parse html from %s", pageURL)
	}
	return doc, nil
}

// collectLinks pulls candidate listings out of a search page: anchors
// matching linkSelector, resolved against base, query string stripped,
// deduplicated, capped at MaxCandidates.
func (s *site) collectLinks(doc *goquery.Document, linkSelector, base string) []candidate {
	seen := make(map[string]bool)
	var cands []candidate

	doc.Find(linkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		full := absoluteURL(base, href)
		if full == "" || seen[full] {
			return true
		}
		seen[full] = true

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title, _ = sel.Attr("aria-label")
			title = strings.TrimSpace(title)
		}
		cands = append(cands, candidate{Title: title, URL: full})
		return len(cands) < s.opts.MaxCandidates
	})

	return cands
}

// searchKeywords runs search for each keyword in priority order and picks
// the best-matching candidate. ok is false when every keyword came up
// empty, which is the genuine NotFound outcome.
func (s *site) searchKeywords(
	ctx context.Context,
	item model.MonitoredItem,
	search func(ctx context.Context, keyword string) ([]candidate, error),
) (candidate, bool, error) {
	for _, kw := range item.SearchKeywords {
		cands, err := search(ctx, kw)
		if err != nil {
			return candidate{}, false, err
		}
		if len(cands) == 0 {
			continue
		}
		best, ok := selectBest(cands, item)
		if !ok {
			zap.L().Debug("candidates matched keyword but not item, trying next keyword",
				zap.String("platform", string(s.platform)),
				zap.String("item", item.ID),
				zap.String("keyword", kw),
				zap.Int("candidates", len(cands)),
			)
			continue
		}
		return best, true, nil
	}
	return candidate{}, false, nil
}

// containsAny reports whether text contains any of the markers.
func containsAny(text string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return m, true
		}
	}
	return "", false
}

// absoluteURL resolves href against base and strips the query string,
// keeping only the canonical listing path.
func absoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(h)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
