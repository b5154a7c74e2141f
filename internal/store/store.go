// Package store persists snapshots, change events, price history, cycle
// runs, and creator seen-sets behind a narrow interface with SQLite and
// Postgres drivers.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Store is the persistence interface for the monitor. Snapshot reads and
// writes are atomic per (item, platform) key; a failed cycle never leaves
// a partially written snapshot behind.
type Store interface {
	// Snapshots
	GetSnapshot(ctx context.Context, itemID string, platform model.Platform) (*model.Snapshot, error)
	PutSnapshot(ctx context.Context, result model.ScrapeResult) error
	ListSnapshots(ctx context.Context) ([]model.Snapshot, error)

	// Price history (append-only; the current pointer stays in snapshots)
	AppendPrice(ctx context.Context, itemID string, platform model.Platform, price int64, recordedAt time.Time) error

	// Change events
	RecordEvents(ctx context.Context, events []model.ChangeEvent) ([]model.ChangeEvent, error)
	ListUnnotifiedEvents(ctx context.Context) ([]model.ChangeEvent, error)
	MarkEventsNotified(ctx context.Context, ids []string) error

	// Cycle runs
	CreateCycle(ctx context.Context) (string, error)
	CompleteCycle(ctx context.Context, summary model.CycleSummary) error

	// Creator feeds
	GetCreatorSeen(ctx context.Context, creator string) (map[string]bool, error)
	PutCreatorSeen(ctx context.Context, creator string, entries []model.CreatorEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a store for the configured driver.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
