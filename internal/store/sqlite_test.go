package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func availableResult(price int64) model.ScrapeResult {
	return model.ScrapeResult{
		Platform:     model.PlatformMercari,
		ItemID:       "item-1",
		Status:       model.StatusAvailable,
		Price:        model.PriceOf(price),
		ListingURL:   "https://jp.mercari.com/item/m111",
		MatchedTitle: "アリス 抱き枕カバー うさぎ小屋",
		ObservedAt:   time.Now().UTC().Truncate(time.Second),
		ExactMatch:   true,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// Absent key reads as nil, not an error.
	snap, err := s.GetSnapshot(ctx, "item-1", model.PlatformMercari)
	require.NoError(t, err)
	assert.Nil(t, snap)

	res := availableResult(19380)
	require.NoError(t, s.PutSnapshot(ctx, res))

	snap, err = s.GetSnapshot(ctx, "item-1", model.PlatformMercari)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, model.StatusAvailable, snap.Status)
	require.NotNil(t, snap.Price)
	assert.Equal(t, int64(19380), *snap.Price)
	assert.Equal(t, res.ListingURL, snap.ListingURL)
	assert.True(t, snap.ExactMatch)
	assert.False(t, snap.FirstSeen.IsZero())
}

func TestPutSnapshotSupersedes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSnapshot(ctx, availableResult(25000)))

	sold := availableResult(0)
	sold.Status = model.StatusNotFound
	sold.Price = nil
	require.NoError(t, s.PutSnapshot(ctx, sold))

	snap, err := s.GetSnapshot(ctx, "item-1", model.PlatformMercari)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, model.StatusNotFound, snap.Status)
	assert.Nil(t, snap.Price)

	// Still exactly one row for the key.
	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestPutSnapshotRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	bad := availableResult(0)
	bad.Price = nil
	assert.Error(t, s.PutSnapshot(context.Background(), bad))
}

func TestSnapshotsKeyedPerPlatform(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	m := availableResult(19380)
	y := availableResult(21000)
	y.Platform = model.PlatformYahooAuction

	require.NoError(t, s.PutSnapshot(ctx, m))
	require.NoError(t, s.PutSnapshot(ctx, y))

	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestRecordAndNotifyEvents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	old := availableResult(25000)
	new_ := availableResult(22000)
	events := []model.ChangeEvent{{
		Kind:       model.EventPriceDecrease,
		ItemID:     "item-1",
		Platform:   model.PlatformMercari,
		Old:        &old,
		New:        &new_,
		OccurredAt: time.Now().UTC(),
	}}

	recorded, err := s.RecordEvents(ctx, events)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.NotEmpty(t, recorded[0].ID)

	pending, err := s.ListUnnotifiedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.EventPriceDecrease, pending[0].Kind)
	require.NotNil(t, pending[0].Old)
	assert.Equal(t, int64(25000), *pending[0].Old.Price)

	require.NoError(t, s.MarkEventsNotified(ctx, []string{recorded[0].ID}))

	pending, err = s.ListUnnotifiedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPriceHistoryAppend(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.AppendPrice(ctx, "item-1", model.PlatformMercari, 25000, now.Add(-time.Hour)))
	require.NoError(t, s.AppendPrice(ctx, "item-1", model.PlatformMercari, 22000, now))

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_history WHERE item_id = ? AND platform = ?`,
		"item-1", string(model.PlatformMercari),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCycleLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateCycle(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	summary := model.NewCycleSummary(id, model.AllPlatforms())
	summary.ItemsChecked = 2
	summary.CompletedAt = time.Now().UTC()
	require.NoError(t, s.CompleteCycle(ctx, *summary))

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT summary FROM cycles WHERE id = ?`, id).Scan(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw, `"items_checked":2`)
}

func TestCreatorSeenRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	seen, err := s.GetCreatorSeen(ctx, "usagigoya")
	require.NoError(t, err)
	assert.Empty(t, seen)

	entries := []model.CreatorEntry{
		{ID: "e1", Creator: "usagigoya", Title: "C105 info", PublishedAt: time.Now().UTC()},
		{ID: "e2", Creator: "usagigoya", Title: "restock"},
	}
	require.NoError(t, s.PutCreatorSeen(ctx, "usagigoya", entries))
	// Re-putting the same entries is a no-op, not an error.
	require.NoError(t, s.PutCreatorSeen(ctx, "usagigoya", entries))

	seen, err = s.GetCreatorSeen(ctx, "usagigoya")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"e1": true, "e2": true}, seen)

	// Seen sets are per creator.
	other, err := s.GetCreatorSeen(ctx, "jinjado")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}
