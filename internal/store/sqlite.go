package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. SQLite serializes writers, which gives the per-key write ordering
// the snapshot table requires for free.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	item_id       TEXT NOT NULL,
	platform      TEXT NOT NULL,
	status        TEXT NOT NULL,
	price         INTEGER,
	listing_url   TEXT,
	matched_title TEXT,
	exact_match   INTEGER NOT NULL DEFAULT 0,
	observed_at   DATETIME NOT NULL,
	first_seen    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (item_id, platform)
);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id     TEXT NOT NULL,
	platform    TEXT NOT NULL,
	price       INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	item_id     TEXT,
	platform    TEXT,
	payload     TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	notified    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cycles (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	summary      TEXT
);

CREATE TABLE IF NOT EXISTS creator_seen (
	creator      TEXT NOT NULL,
	entry_id     TEXT NOT NULL,
	title        TEXT,
	url          TEXT,
	published_at DATETIME,
	first_seen   DATETIME NOT NULL,
	PRIMARY KEY (creator, entry_id)
);

CREATE INDEX IF NOT EXISTS idx_price_history_key ON price_history(item_id, platform);
CREATE INDEX IF NOT EXISTS idx_change_events_notified ON change_events(notified);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, itemID string, platform model.Platform) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at
		 FROM snapshots WHERE item_id = ? AND platform = ?`,
		itemID, string(platform),
	)

	var (
		snap         model.Snapshot
		price        sql.NullInt64
		listingURL   sql.NullString
		matchedTitle sql.NullString
	)
	err := row.Scan(
		&snap.ItemID, &snap.Platform, &snap.Status, &price, &listingURL, &matchedTitle,
		&snap.ExactMatch, &snap.ObservedAt, &snap.FirstSeen, &snap.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s/%s", itemID, platform)
	}
	if price.Valid {
		snap.Price = &price.Int64
	}
	snap.ListingURL = listingURL.String
	snap.MatchedTitle = matchedTitle.String
	return &snap, nil
}

func (s *SQLiteStore) PutSnapshot(ctx context.Context, result model.ScrapeResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	var price any
	if result.Price != nil {
		price = *result.Price
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id, platform) DO UPDATE SET
			status        = excluded.status,
			price         = excluded.price,
			listing_url   = excluded.listing_url,
			matched_title = excluded.matched_title,
			exact_match   = excluded.exact_match,
			observed_at   = excluded.observed_at,
			updated_at    = excluded.updated_at`,
		result.ItemID, string(result.Platform), string(result.Status), price,
		result.ListingURL, result.MatchedTitle, result.ExactMatch,
		result.ObservedAt.UTC(), now, now,
	)
	return eris.Wrapf(err, "sqlite: put snapshot %s/%s", result.ItemID, result.Platform)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at
		 FROM snapshots ORDER BY item_id, platform`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var (
			snap         model.Snapshot
			price        sql.NullInt64
			listingURL   sql.NullString
			matchedTitle sql.NullString
		)
		if err := rows.Scan(
			&snap.ItemID, &snap.Platform, &snap.Status, &price, &listingURL, &matchedTitle,
			&snap.ExactMatch, &snap.ObservedAt, &snap.FirstSeen, &snap.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		if price.Valid {
			snap.Price = &price.Int64
		}
		snap.ListingURL = listingURL.String
		snap.MatchedTitle = matchedTitle.String
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}

func (s *SQLiteStore) AppendPrice(ctx context.Context, itemID string, platform model.Platform, price int64, recordedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (item_id, platform, price, recorded_at) VALUES (?, ?, ?, ?)`,
		itemID, string(platform), price, recordedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append price %s/%s", itemID, platform)
}

func (s *SQLiteStore) RecordEvents(ctx context.Context, events []model.ChangeEvent) ([]model.ChangeEvent, error) {
	recorded := make([]model.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal event")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO change_events (id, kind, item_id, platform, payload, occurred_at, notified) VALUES (?, ?, ?, ?, ?, ?, 0)`,
			ev.ID, string(ev.Kind), ev.ItemID, string(ev.Platform), string(payload), ev.OccurredAt.UTC(),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert event %s", ev.ID)
		}
		recorded = append(recorded, ev)
	}
	return recorded, nil
}

func (s *SQLiteStore) ListUnnotifiedEvents(ctx context.Context) ([]model.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM change_events WHERE notified = 0 ORDER BY occurred_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unnotified events")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var (
			id      string
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		var ev model.ChangeEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal event %s", id)
		}
		ev.ID = id
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate events")
}

func (s *SQLiteStore) MarkEventsNotified(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE change_events SET notified = 1 WHERE id = ?`, id,
		); err != nil {
			return eris.Wrapf(err, "sqlite: mark event notified %s", id)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateCycle(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: create cycle")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteCycle(ctx context.Context, summary model.CycleSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE cycles SET completed_at = ?, summary = ? WHERE id = ?`,
		time.Now().UTC(), string(payload), summary.RunID,
	)
	return eris.Wrapf(err, "sqlite: complete cycle %s", summary.RunID)
}

func (s *SQLiteStore) GetCreatorSeen(ctx context.Context, creator string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id FROM creator_seen WHERE creator = ?`, creator,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get creator seen %s", creator)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan creator entry")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: iterate creator entries")
}

func (s *SQLiteStore) PutCreatorSeen(ctx context.Context, creator string, entries []model.CreatorEntry) error {
	now := time.Now().UTC()
	for _, entry := range entries {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO creator_seen (creator, entry_id, title, url, published_at, first_seen)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(creator, entry_id) DO NOTHING`,
			creator, entry.ID, entry.Title, entry.URL, entry.PublishedAt.UTC(), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: put creator entry %s/%s", creator, entry.ID)
		}
	}
	return nil
}
