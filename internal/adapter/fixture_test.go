package adapter

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

// fixtureFetcher serves recorded page bodies by longest-prefix match on the
// request path, so search URLs with varying query strings and keyword paths
// hit the same fixture.
type fixtureFetcher struct {
	pages map[string]string
}

func (f *fixtureFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	bestKey := ""
	for key := range f.pages {
		if len(key) > len(bestKey) && hasPrefix(u.Path, key) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return nil, eris.Errorf("fixture: no page for %s", u.Path)
	}
	return &fetch.Page{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: 200,
		Body:       []byte(f.pages[bestKey]),
	}, nil
}

func hasPrefix(path, key string) bool {
	return len(path) >= len(key) && path[:len(key)] == key
}

// errFetcher fails every request with a fixed error.
type errFetcher struct {
	err error
}

func (f *errFetcher) Fetch(context.Context, string) (*fetch.Page, error) {
	return nil, f.err
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:       baseURL,
		MinInterval:   time.Millisecond,
		Jitter:        time.Millisecond,
		MaxCandidates: 20,
	}
}

func testItem() model.MonitoredItem {
	return model.MonitoredItem{
		ID:             "alice-daki",
		Name:           "Alice dakimakura cover",
		Character:      "アリス",
		Circle:         "うさぎ小屋",
		SearchKeywords: []string{"アリス 抱き枕カバー"},
	}
}
