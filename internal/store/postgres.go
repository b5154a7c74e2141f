package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a tuned connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	item_id       TEXT NOT NULL,
	platform      TEXT NOT NULL,
	status        TEXT NOT NULL,
	price         BIGINT,
	listing_url   TEXT,
	matched_title TEXT,
	exact_match   BOOLEAN NOT NULL DEFAULT FALSE,
	observed_at   TIMESTAMPTZ NOT NULL,
	first_seen    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item_id, platform)
);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	item_id     TEXT NOT NULL,
	platform    TEXT NOT NULL,
	price       BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	item_id     TEXT,
	platform    TEXT,
	payload     JSONB NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	notified    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS cycles (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	summary      JSONB
);

CREATE TABLE IF NOT EXISTS creator_seen (
	creator      TEXT NOT NULL,
	entry_id     TEXT NOT NULL,
	title        TEXT,
	url          TEXT,
	published_at TIMESTAMPTZ,
	first_seen   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (creator, entry_id)
);

CREATE INDEX IF NOT EXISTS idx_price_history_key ON price_history(item_id, platform);
CREATE INDEX IF NOT EXISTS idx_change_events_notified ON change_events(notified);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, itemID string, platform model.Platform) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at
		 FROM snapshots WHERE item_id = $1 AND platform = $2`,
		itemID, string(platform),
	)

	var (
		snap         model.Snapshot
		price        *int64
		listingURL   *string
		matchedTitle *string
	)
	err := row.Scan(
		&snap.ItemID, &snap.Platform, &snap.Status, &price, &listingURL, &matchedTitle,
		&snap.ExactMatch, &snap.ObservedAt, &snap.FirstSeen, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s/%s", itemID, platform)
	}
	snap.Price = price
	if listingURL != nil {
		snap.ListingURL = *listingURL
	}
	if matchedTitle != nil {
		snap.MatchedTitle = *matchedTitle
	}
	return &snap, nil
}

func (s *PostgresStore) PutSnapshot(ctx context.Context, result model.ScrapeResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (item_id, platform) DO UPDATE SET
			status        = EXCLUDED.status,
			price         = EXCLUDED.price,
			listing_url   = EXCLUDED.listing_url,
			matched_title = EXCLUDED.matched_title,
			exact_match   = EXCLUDED.exact_match,
			observed_at   = EXCLUDED.observed_at,
			updated_at    = EXCLUDED.updated_at`,
		result.ItemID, string(result.Platform), string(result.Status), result.Price,
		result.ListingURL, result.MatchedTitle, result.ExactMatch,
		result.ObservedAt.UTC(), now, now,
	)
	return eris.Wrapf(err, "postgres: put snapshot %s/%s", result.ItemID, result.Platform)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, platform, status, price, listing_url, matched_title, exact_match, observed_at, first_seen, updated_at
		 FROM snapshots ORDER BY item_id, platform`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var (
			snap         model.Snapshot
			price        *int64
			listingURL   *string
			matchedTitle *string
		)
		if err := rows.Scan(
			&snap.ItemID, &snap.Platform, &snap.Status, &price, &listingURL, &matchedTitle,
			&snap.ExactMatch, &snap.ObservedAt, &snap.FirstSeen, &snap.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snap.Price = price
		if listingURL != nil {
			snap.ListingURL = *listingURL
		}
		if matchedTitle != nil {
			snap.MatchedTitle = *matchedTitle
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}

func (s *PostgresStore) AppendPrice(ctx context.Context, itemID string, platform model.Platform, price int64, recordedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_history (item_id, platform, price, recorded_at) VALUES ($1, $2, $3, $4)`,
		itemID, string(platform), price, recordedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append price %s/%s", itemID, platform)
}

func (s *PostgresStore) RecordEvents(ctx context.Context, events []model.ChangeEvent) ([]model.ChangeEvent, error) {
	recorded := make([]model.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal event")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO change_events (id, kind, item_id, platform, payload, occurred_at, notified) VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
			ev.ID, string(ev.Kind), ev.ItemID, string(ev.Platform), payload, ev.OccurredAt.UTC(),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert event %s", ev.ID)
		}
		recorded = append(recorded, ev)
	}
	return recorded, nil
}

func (s *PostgresStore) ListUnnotifiedEvents(ctx context.Context) ([]model.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload FROM change_events WHERE notified = FALSE ORDER BY occurred_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unnotified events")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		var ev model.ChangeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal event %s", id)
		}
		ev.ID = id
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate events")
}

func (s *PostgresStore) MarkEventsNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE change_events SET notified = TRUE WHERE id = ANY($1)`, ids,
	)
	return eris.Wrap(err, "postgres: mark events notified")
}

func (s *PostgresStore) CreateCycle(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cycles (id, started_at) VALUES ($1, $2)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: create cycle")
	}
	return id, nil
}

func (s *PostgresStore) CompleteCycle(ctx context.Context, summary model.CycleSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE cycles SET completed_at = $1, summary = $2 WHERE id = $3`,
		time.Now().UTC(), payload, summary.RunID,
	)
	return eris.Wrapf(err, "postgres: complete cycle %s", summary.RunID)
}

func (s *PostgresStore) GetCreatorSeen(ctx context.Context, creator string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id FROM creator_seen WHERE creator = $1`, creator,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get creator seen %s", creator)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan creator entry")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "postgres: iterate creator entries")
}

func (s *PostgresStore) PutCreatorSeen(ctx context.Context, creator string, entries []model.CreatorEntry) error {
	now := time.Now().UTC()
	for _, entry := range entries {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO creator_seen (creator, entry_id, title, url, published_at, first_seen)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (creator, entry_id) DO NOTHING`,
			creator, entry.ID, entry.Title, entry.URL, entry.PublishedAt.UTC(), now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: put creator entry %s/%s", creator, entry.ID)
		}
	}
	return nil
}
