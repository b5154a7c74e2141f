package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

func sampleSnapshots() []model.Snapshot {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return []model.Snapshot{
		{
			ScrapeResult: model.ScrapeResult{
				Platform:     model.PlatformSurugaya,
				ItemID:       "alice-daki",
				Status:       model.StatusAvailable,
				Price:        model.PriceOf(19380),
				ListingURL:   "https://www.suruga-ya.jp/product/detail/101",
				MatchedTitle: "アリス 抱き枕カバー うさぎ小屋",
				ObservedAt:   now,
			},
			FirstSeen: now,
			UpdatedAt: now,
		},
		{
			ScrapeResult: model.ScrapeResult{
				Platform:   model.PlatformMercari,
				ItemID:     "alice-daki",
				Status:     model.StatusNotFound,
				ObservedAt: now,
			},
			FirstSeen: now,
			UpdatedAt: now,
		},
	}
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	events := []model.ChangeEvent{{
		Kind:     model.EventPriceDecrease,
		ItemID:   "alice-daki",
		Platform: model.PlatformSurugaya,
		Old:      &model.ScrapeResult{Price: model.PriceOf(25000)},
		New:      &model.ScrapeResult{Price: model.PriceOf(19380)},
	}}

	var buf bytes.Buffer
	require.NoError(t, New(sampleSnapshots(), events, nil).WriteHTML(&buf))

	html := buf.String()
	assert.Contains(t, html, "alice-daki")
	assert.Contains(t, html, "surugaya")
	assert.Contains(t, html, "¥19380")
	assert.Contains(t, html, "アリス 抱き枕カバー うさぎ小屋")
	assert.Contains(t, html, "price_decrease")
	assert.Contains(t, html, "¥25000 -&gt; ¥19380")
	assert.Contains(t, html, `class="status-available"`)
	assert.Contains(t, html, `class="status-not_found"`)
}

func TestWriteHTMLEscapes(t *testing.T) {
	t.Parallel()

	snaps := sampleSnapshots()
	snaps[0].MatchedTitle = `<script>alert(1)</script>`

	var buf bytes.Buffer
	require.NoError(t, New(snaps, nil, nil).WriteHTML(&buf))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, New(sampleSnapshots(), nil, nil).WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 snapshots

	assert.Equal(t, "item_id", rows[0][0])
	// Sorted by item then platform: mercari before surugaya.
	assert.Equal(t, "mercari", rows[1][1])
	assert.Equal(t, "", rows[1][3]) // not_found has no price
	assert.Equal(t, "surugaya", rows[2][1])
	assert.Equal(t, "19380", rows[2][3])
}

func TestNewSortsEventsByTime(t *testing.T) {
	t.Parallel()

	early := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)
	r := New(nil, []model.ChangeEvent{
		{Kind: model.EventSoldOut, OccurredAt: late},
		{Kind: model.EventNewItemFound, OccurredAt: early},
	}, nil)

	require.Len(t, r.Events, 2)
	assert.Equal(t, model.EventNewItemFound, r.Events[0].Kind)
}
