package adapter

import (
	"context"
	"net/url"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
)

const mercariSearchPage = `<html><body>
<a href="/item/m111">アリス 抱き枕カバー うさぎ小屋</a>
<a href="/item/m222">アリス キーホルダー</a>
</body></html>`

func TestMercariAvailable(t *testing.T) {
	t.Parallel()

	f := &fixtureFetcher{pages: map[string]string{
		"/search": mercariSearchPage,
		"/item/m111": `<html><body>
<h1 data-testid="name">アリス 抱き枕カバー うさぎ小屋 C97</h1>
<div data-testid="price">¥19,380</div>
<button data-testid="buy-button">購入手続きへ</button>
</body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), testItem())
	require.NoError(t, err)

	assert.Equal(t, model.StatusAvailable, res.Status)
	require.NotNil(t, res.Price)
	assert.Equal(t, int64(19380), *res.Price)
	assert.Equal(t, "https://mercari.test/item/m111", res.ListingURL)
	assert.True(t, res.ExactMatch)
	assert.NoError(t, res.Validate())
}

func TestMercariSold(t *testing.T) {
	t.Parallel()

	f := &fixtureFetcher{pages: map[string]string{
		"/search": mercariSearchPage,
		"/item/m111": `<html><body>
<h1 data-testid="name">アリス 抱き枕カバー うさぎ小屋 C97</h1>
<div data-testid="price">¥19,380</div>
<p>この商品は売り切れです</p>
</body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), testItem())
	require.NoError(t, err)

	assert.Equal(t, model.StatusRecentlySold, res.Status)
	require.NotNil(t, res.Price)
	assert.Equal(t, int64(19380), *res.Price)
}

func TestMercariMissingBuyButtonMeansSold(t *testing.T) {
	t.Parallel()

	// No sold banner but also no buy button: the listing is not
	// purchasable.
	f := &fixtureFetcher{pages: map[string]string{
		"/search": mercariSearchPage,
		"/item/m111": `<html><body>
<h1 data-testid="name">アリス 抱き枕カバー うさぎ小屋</h1>
<div data-testid="price">¥19,380</div>
</body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecentlySold, res.Status)
}

func TestMercariNotFound(t *testing.T) {
	t.Parallel()

	f := &fixtureFetcher{pages: map[string]string{
		"/search": `<html><body><p>検索結果はありません</p></body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), testItem())
	require.NoError(t, err)

	assert.Equal(t, model.StatusNotFound, res.Status)
	assert.Nil(t, res.Price)
	assert.NoError(t, res.Validate())
}

func TestMercariNoMatchingCandidateIsNotFound(t *testing.T) {
	t.Parallel()

	// Search returned hits, but none match the item's keywords or names.
	f := &fixtureFetcher{pages: map[string]string{
		"/search": `<html><body><a href="/item/m999">巫女 タペストリー</a></body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotFound, res.Status)
}

func TestMercariStructureChanged(t *testing.T) {
	t.Parallel()

	// Detail page loads but carries neither title hooks.
	f := &fixtureFetcher{pages: map[string]string{
		"/search":    mercariSearchPage,
		"/item/m111": `<html><body><div id="app"></div></body></html>`,
	}}

	a := NewMercari(f, testOptions("https://mercari.test"))
	_, err := a.Scrape(context.Background(), testItem())
	require.Error(t, err)

	fail, ok := model.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, model.FailureStructureChanged, fail.Kind)
	assert.Equal(t, model.PlatformMercari, fail.Platform)
}

func TestMercariBlockedClassified(t *testing.T) {
	t.Parallel()

	a := NewMercari(&errFetcher{err: eris.Wrap(fetch.ErrBlocked, "fetch: challenge page")},
		testOptions("https://mercari.test"))
	_, err := a.Scrape(context.Background(), testItem())
	require.Error(t, err)

	fail, ok := model.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, model.FailureBlocked, fail.Kind)
}

func TestMercariFallsThroughToLaterKeyword(t *testing.T) {
	t.Parallel()

	// The first keyword's hits match nothing about the item; the adapter
	// must keep trying later keywords instead of reporting NotFound.
	item := testItem()
	item.SearchKeywords = []string{"巫女", "アリス 抱き枕カバー"}

	f := &keywordFetcher{
		pagesByKeyword: map[string]string{
			"巫女":          `<html><body><a href="/item/m900">巫女 タペストリー</a></body></html>`,
			"アリス 抱き枕カバー": mercariSearchPage,
		},
		detail: map[string]string{
			"/item/m111": `<html><body>
<h1 data-testid="name">アリス 抱き枕カバー うさぎ小屋</h1>
<div data-testid="price">¥19,380</div>
<button data-testid="buy-button">購入</button>
</body></html>`,
		},
	}

	a := NewMercari(f, testOptions("https://mercari.test"))
	res, err := a.Scrape(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, res.Status)
}

// keywordFetcher serves different search pages per keyword query and exact
// detail pages by path.
type keywordFetcher struct {
	pagesByKeyword map[string]string
	detail         map[string]string
}

func (k *keywordFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	body, ok := k.detail[u.Path]
	if !ok {
		kw := u.Query().Get("keyword")
		body, ok = k.pagesByKeyword[kw]
	}
	if !ok {
		return nil, eris.Errorf("keywordFetcher: no page for %s", rawURL)
	}
	return &fetch.Page{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}
