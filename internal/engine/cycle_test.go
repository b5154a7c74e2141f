package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dakiwatch/dakiwatch/internal/model"
	"github.com/dakiwatch/dakiwatch/internal/notify"
	"github.com/dakiwatch/dakiwatch/internal/registry"
	"github.com/dakiwatch/dakiwatch/internal/store"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu        sync.Mutex
	snapshots map[model.SnapshotKey]model.Snapshot
	events    []model.ChangeEvent
	notified  map[string]bool
	prices    int
	cycles    int
	completed []model.CycleSummary

	putErr error
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[model.SnapshotKey]model.Snapshot),
		notified:  make(map[string]bool),
	}
}

func (m *memStore) GetSnapshot(_ context.Context, itemID string, platform model.Platform) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[model.SnapshotKey{ItemID: itemID, Platform: platform}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memStore) PutSnapshot(_ context.Context, result model.ScrapeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.snapshots[result.Key()] = model.Snapshot{ScrapeResult: result}
	return nil
}

func (m *memStore) ListSnapshots(context.Context) ([]model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) AppendPrice(context.Context, string, model.Platform, int64, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices++
	return nil
}

func (m *memStore) RecordEvents(_ context.Context, events []model.ChangeEvent) ([]model.ChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = events[i].ItemID + "/" + string(events[i].Kind)
		}
		m.events = append(m.events, events[i])
	}
	return events, nil
}

func (m *memStore) ListUnnotifiedEvents(context.Context) ([]model.ChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChangeEvent
	for _, ev := range m.events {
		if !m.notified[ev.ID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) MarkEventsNotified(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.notified[id] = true
	}
	return nil
}

func (m *memStore) CreateCycle(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	return "run-1", nil
}

func (m *memStore) CompleteCycle(_ context.Context, summary model.CycleSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, summary)
	return nil
}

func (m *memStore) GetCreatorSeen(context.Context, string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (m *memStore) PutCreatorSeen(context.Context, string, []model.CreatorEntry) error {
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// scriptedDispatcher returns canned outcomes per item.
type scriptedDispatcher struct {
	platforms []model.Platform
	outcomes  map[string]map[model.Platform]registry.Outcome
}

func (d *scriptedDispatcher) Platforms() []model.Platform { return d.platforms }

func (d *scriptedDispatcher) Dispatch(_ context.Context, item model.MonitoredItem) map[model.Platform]registry.Outcome {
	return d.outcomes[item.ID]
}

// recordingNotifier captures batches, optionally failing.
type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]model.ChangeEvent
	fail    bool
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, events []model.ChangeEvent, _ *model.CycleSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return eris.New("smtp down")
	}
	n.batches = append(n.batches, events)
	return nil
}

func availableOutcome(platform model.Platform, itemID string, price int64) registry.Outcome {
	return registry.Outcome{Result: &model.ScrapeResult{
		Platform:   platform,
		ItemID:     itemID,
		Status:     model.StatusAvailable,
		Price:      model.PriceOf(price),
		ObservedAt: time.Now().UTC(),
	}}
}

func testItems() []model.MonitoredItem {
	return []model.MonitoredItem{
		{ID: "item-1", SearchKeywords: []string{"kw"}},
		{ID: "item-2", SearchKeywords: []string{"kw"}},
	}
}

func TestRunCycleDetectsAndPersists(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-1", 19380)},
			"item-2": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-2", 5000)},
		},
	}
	n := &recordingNotifier{}

	eng := New(Options{Store: st, Dispatcher: d, Notifiers: []notify.Notifier{n}, MaxConcurrent: 2})
	summary, err := eng.RunCycle(context.Background(), testItems())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ItemsChecked)
	assert.Equal(t, 2, summary.EventCount) // two NewItemFound
	assert.Empty(t, summary.Failures)

	// Snapshots written, prices appended, events delivered and marked.
	assert.Len(t, st.snapshots, 2)
	assert.Equal(t, 2, st.prices)
	require.Len(t, n.batches, 1)
	assert.Len(t, n.batches[0], 2)

	pending, err := st.ListUnnotifiedEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, st.completed, 1)
}

func TestRunCycleFailureNeverTouchesSnapshot(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	existing := model.ScrapeResult{
		Platform:   model.PlatformMercari,
		ItemID:     "item-1",
		Status:     model.StatusAvailable,
		Price:      model.PriceOf(25000),
		ObservedAt: time.Now().UTC(),
	}
	require.NoError(t, st.PutSnapshot(context.Background(), existing))

	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: {
				Failure: model.NewFailure(model.PlatformMercari, "item-1", model.FailureTimeout, "deadline exceeded"),
			}},
			"item-2": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-2", 5000)},
		},
	}

	eng := New(Options{Store: st, Dispatcher: d, MaxConcurrent: 2})
	summary, err := eng.RunCycle(context.Background(), testItems())
	require.NoError(t, err)

	// The failed pair's snapshot is untouched and the cycle kept going.
	snap, err := st.GetSnapshot(context.Background(), "item-1", model.PlatformMercari)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(25000), *snap.Price)

	assert.Equal(t, 2, summary.ItemsChecked)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.FailureTimeout, summary.Failures[0].Kind)
	assert.Equal(t, 1, summary.Tallies[model.PlatformMercari].Failures)

	// A SoldOut must never have been derived from the failure.
	for _, ev := range st.events {
		assert.NotEqual(t, model.EventSoldOut, ev.Kind)
	}
}

func TestRunCycleStoreErrorAborts(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.putErr = eris.New("disk full")
	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-1", 19380)},
			"item-2": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-2", 5000)},
		},
	}

	eng := New(Options{Store: st, Dispatcher: d, MaxConcurrent: 1})
	_, err := eng.RunCycle(context.Background(), testItems())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, st.completed)
}

func TestRunCycleFailedNotifierKeepsEventsPending(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-1", 19380)},
		},
	}
	bad := &recordingNotifier{fail: true}
	good := &recordingNotifier{}

	eng := New(Options{Store: st, Dispatcher: d, Notifiers: []notify.Notifier{bad, good}, MaxConcurrent: 1})
	_, err := eng.RunCycle(context.Background(), testItems()[:1])
	require.NoError(t, err)

	// One channel failed, so nothing is marked; the batch retries next cycle.
	pending, err := st.ListUnnotifiedEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunCycleDetectsPriceChangeAgainstStoredSnapshot(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.PutSnapshot(context.Background(), model.ScrapeResult{
		Platform:   model.PlatformMercari,
		ItemID:     "item-1",
		Status:     model.StatusAvailable,
		Price:      model.PriceOf(25000),
		ObservedAt: time.Now().UTC(),
	}))

	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-1", 22000)},
		},
	}

	eng := New(Options{Store: st, Dispatcher: d, MaxConcurrent: 1})
	summary, err := eng.RunCycle(context.Background(), testItems()[:1])
	require.NoError(t, err)

	assert.Equal(t, 1, summary.EventCount)
	require.Len(t, st.events, 1)
	assert.Equal(t, model.EventPriceDecrease, st.events[0].Kind)

	// Snapshot superseded by the new price.
	snap, err := st.GetSnapshot(context.Background(), "item-1", model.PlatformMercari)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), *snap.Price)
}

// staticCreator returns fixed announcement events.
type staticCreator struct {
	events []model.ChangeEvent
}

func (c *staticCreator) Check(context.Context) ([]model.ChangeEvent, error) {
	return c.events, nil
}

func TestRunCycleIncludesCreatorEvents(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	d := &scriptedDispatcher{
		platforms: []model.Platform{model.PlatformMercari},
		outcomes: map[string]map[model.Platform]registry.Outcome{
			"item-1": {model.PlatformMercari: availableOutcome(model.PlatformMercari, "item-1", 19380)},
		},
	}
	creators := &staticCreator{events: []model.ChangeEvent{{
		Kind:       model.EventCreatorAnnouncement,
		Entry:      &model.CreatorEntry{ID: "e1", Creator: "usagigoya", Title: "C105"},
		OccurredAt: time.Now().UTC(),
	}}}

	eng := New(Options{Store: st, Dispatcher: d, Creators: creators, MaxConcurrent: 1})
	summary, err := eng.RunCycle(context.Background(), testItems()[:1])
	require.NoError(t, err)

	assert.Equal(t, 2, summary.EventCount)
	kinds := make(map[model.EventKind]bool)
	for _, ev := range st.events {
		kinds[ev.Kind] = true
	}
	assert.True(t, kinds[model.EventCreatorAnnouncement])
}
