package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cs2-market-watcher/internal/fetcher"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrWatchNotFound indicates the requested watch row does not exist.
	ErrWatchNotFound = errors.New("storage: watch not found")
)

const (
	createSchemaSQL = `
    CREATE TABLE IF NOT EXISTS watches (
        id               BIGSERIAL PRIMARY KEY,
        appid            BIGINT NOT NULL,
        market_hash_name TEXT NOT NULL,
        url              TEXT NOT NULL DEFAULT '',
        currency_id      INTEGER NOT NULL DEFAULT 1,
        rules            JSONB NOT NULL,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS listing_snapshots (
        id          BIGSERIAL PRIMARY KEY,
        watch_id    BIGINT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
        listing_key TEXT NOT NULL,
        price_cents BIGINT NOT NULL,
        parsed      JSONB NOT NULL,
        enrichment  JSONB,
        alerted     BOOLEAN NOT NULL DEFAULT FALSE,
        fetched_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (watch_id, listing_key, price_cents)
    );
    CREATE TABLE IF NOT EXISTS enrichment_cache (
        lookup_key   TEXT PRIMARY KEY,
        result       JSONB NOT NULL,
        watch_id     BIGINT REFERENCES watches(id) ON DELETE SET NULL,
        fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS alerts (
        id          BIGSERIAL PRIMARY KEY,
        snapshot_id BIGINT NOT NULL UNIQUE REFERENCES listing_snapshots(id) ON DELETE CASCADE,
        payload     JSONB NOT NULL,
        sent_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS worker_state (
        id         INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
        enabled    BOOLEAN NOT NULL DEFAULT TRUE,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertWatchSQL = `INSERT INTO watches (appid, market_hash_name, url, currency_id, rules)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING id, created_at;`

	listWatchesSQL = `SELECT id, appid, market_hash_name, url, currency_id, rules, created_at
    FROM watches
    ORDER BY id;`

	getWatchSQL = `SELECT id, appid, market_hash_name, url, currency_id, rules, created_at
    FROM watches
    WHERE id = $1;`

	deleteWatchSQL = `DELETE FROM watches WHERE id = $1;`

	seenSnapshotSQL = `SELECT EXISTS (
        SELECT 1 FROM listing_snapshots
        WHERE watch_id = $1 AND listing_key = $2 AND price_cents = $3
    );`

	insertSnapshotSQL = `INSERT INTO listing_snapshots (watch_id, listing_key, price_cents, parsed, enrichment)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (watch_id, listing_key, price_cents) DO NOTHING
    RETURNING id;`

	setSnapshotEnrichmentSQL = `UPDATE listing_snapshots SET enrichment = $2 WHERE id = $1;`

	markSnapshotAlertedSQL = `UPDATE listing_snapshots SET alerted = TRUE WHERE id = $1;`

	listRecentSnapshotsSQL = `SELECT id, watch_id, listing_key, price_cents, parsed, enrichment, alerted, fetched_at
    FROM listing_snapshots
    ORDER BY fetched_at DESC
    LIMIT $1;`

	listSnapshotsBetweenSQL = `SELECT id, watch_id, listing_key, price_cents, parsed, enrichment, alerted, fetched_at
    FROM listing_snapshots
    WHERE watch_id = $1
      AND fetched_at >= $2
      AND fetched_at < $3
    ORDER BY fetched_at;`

	lookupEnrichmentSQL = `SELECT lookup_key, result, watch_id, fetched_at
    FROM enrichment_cache
    WHERE lookup_key = $1;`

	storeEnrichmentSQL = `INSERT INTO enrichment_cache (lookup_key, result, watch_id)
    VALUES ($1, $2, $3)
    ON CONFLICT (lookup_key) DO NOTHING;`

	insertAlertSQL = `INSERT INTO alerts (snapshot_id, payload)
    VALUES ($1, $2)
    ON CONFLICT (snapshot_id) DO NOTHING
    RETURNING id;`

	listRecentAlertsSQL = `SELECT id, snapshot_id, payload, sent_at
    FROM alerts
    ORDER BY sent_at DESC
    LIMIT $1;`

	workerStateSQL = `SELECT enabled, updated_at FROM worker_state WHERE id = 1;`

	setWorkerStateSQL = `INSERT INTO worker_state (id, enabled, updated_at)
    VALUES (1, $1, now())
    ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at;`
)

// WatchStore exposes watch CRUD at the persistence boundary.
type WatchStore interface {
	CreateWatch(ctx context.Context, watch Watch) (Watch, error)
	ListWatches(ctx context.Context) ([]Watch, error)
	GetWatch(ctx context.Context, id int64) (Watch, error)
	DeleteWatch(ctx context.Context, id int64) error
}

// SnapshotStore persists listing observations and the listing-level dedupe.
type SnapshotStore interface {
	SeenSnapshot(ctx context.Context, watchID int64, listingKey string, priceCents int64) (bool, error)
	InsertSnapshot(ctx context.Context, snapshot ListingSnapshot) (int64, error)
	SetSnapshotEnrichment(ctx context.Context, snapshotID int64, enrichment *fetcher.EnrichmentResult) error
	MarkSnapshotAlerted(ctx context.Context, snapshotID int64) error
	ListRecentSnapshots(ctx context.Context, limit int) ([]ListingSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, watchID int64, from, to time.Time) ([]ListingSnapshot, error)
}

// EnrichmentStore is the insert-if-absent memo of inspect results.
type EnrichmentStore interface {
	LookupEnrichment(ctx context.Context, lookupKey string) (*EnrichmentEntry, error)
	StoreEnrichment(ctx context.Context, entry EnrichmentEntry) (EnrichmentEntry, error)
}

// AlertStore records emitted notifications, at most one per snapshot.
type AlertStore interface {
	InsertAlert(ctx context.Context, snapshotID int64, payload json.RawMessage) (bool, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// WorkerStateStore exposes the pause toggle shared with the admin layer.
type WorkerStateStore interface {
	WorkerEnabled(ctx context.Context) (bool, error)
	SetWorkerEnabled(ctx context.Context, enabled bool) error
}

// Store aggregates all persistence concerns over one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the schema when absent. The unique constraints here carry
// the dedupe and insert-if-absent guarantees across worker processes.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("create schema: %w", execErr)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CreateWatch inserts a watch and returns it with assigned id.
func (s *Store) CreateWatch(ctx context.Context, watch Watch) (Watch, error) {
	pool, err := s.getPool()
	if err != nil {
		return Watch{}, err
	}

	rulesJSON, err := json.Marshal(watch.Rules)
	if err != nil {
		return Watch{}, fmt.Errorf("marshal rules: %w", err)
	}

	row := pool.QueryRow(ctx, insertWatchSQL,
		watch.AppID,
		watch.MarketHashName,
		watch.URL,
		watch.CurrencyID,
		rulesJSON,
	)
	if scanErr := row.Scan(&watch.ID, &watch.CreatedAt); scanErr != nil {
		return Watch{}, fmt.Errorf("insert watch: %w", scanErr)
	}
	return watch, nil
}

// ListWatches returns all watches in stable id order.
func (s *Store) ListWatches(ctx context.Context) ([]Watch, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list watches: %w", queryErr)
	}
	defer rows.Close()

	watches := make([]Watch, 0)
	for rows.Next() {
		watch, scanErr := scanWatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		watches = append(watches, watch)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return watches, nil
}

// GetWatch fetches a single watch by id.
func (s *Store) GetWatch(ctx context.Context, id int64) (Watch, error) {
	pool, err := s.getPool()
	if err != nil {
		return Watch{}, err
	}

	rows, queryErr := pool.Query(ctx, getWatchSQL, id)
	if queryErr != nil {
		return Watch{}, fmt.Errorf("get watch: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return Watch{}, rows.Err()
		}
		return Watch{}, ErrWatchNotFound
	}
	return scanWatch(rows)
}

// DeleteWatch removes a watch and, via cascade, its snapshots and alerts.
func (s *Store) DeleteWatch(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteWatchSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete watch: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// SeenSnapshot reports whether the dedupe triple already has a snapshot.
func (s *Store) SeenSnapshot(ctx context.Context, watchID int64, listingKey string, priceCents int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var seen bool
	if scanErr := pool.QueryRow(ctx, seenSnapshotSQL, watchID, listingKey, priceCents).Scan(&seen); scanErr != nil {
		return false, fmt.Errorf("seen snapshot: %w", scanErr)
	}
	return seen, nil
}

// InsertSnapshot stores a new observation. Returns 0 when a concurrent
// writer already recorded the same dedupe triple.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot ListingSnapshot) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	parsedJSON, err := json.Marshal(snapshot.Parsed)
	if err != nil {
		return 0, fmt.Errorf("marshal parsed fields: %w", err)
	}

	var enrichmentJSON interface{}
	if snapshot.Enrichment != nil {
		data, marshalErr := json.Marshal(snapshot.Enrichment)
		if marshalErr != nil {
			return 0, fmt.Errorf("marshal enrichment fields: %w", marshalErr)
		}
		enrichmentJSON = data
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertSnapshotSQL,
		snapshot.WatchID,
		snapshot.ListingKey,
		snapshot.PriceCents,
		parsedJSON,
		enrichmentJSON,
	).Scan(&id)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return 0, nil
	}
	if scanErr != nil {
		return 0, fmt.Errorf("insert snapshot: %w", scanErr)
	}
	return id, nil
}

// SetSnapshotEnrichment attaches inspect fields to an existing snapshot.
func (s *Store) SetSnapshotEnrichment(ctx context.Context, snapshotID int64, enrichment *fetcher.EnrichmentResult) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	data, err := json.Marshal(enrichment)
	if err != nil {
		return fmt.Errorf("marshal enrichment fields: %w", err)
	}
	if _, execErr := pool.Exec(ctx, setSnapshotEnrichmentSQL, snapshotID, data); execErr != nil {
		return fmt.Errorf("set snapshot enrichment: %w", execErr)
	}
	return nil
}

// MarkSnapshotAlerted flips the alerted flag after a successful dispatch.
func (s *Store) MarkSnapshotAlerted(ctx context.Context, snapshotID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markSnapshotAlertedSQL, snapshotID)
	if execErr != nil {
		return fmt.Errorf("mark snapshot alerted: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentSnapshots lists the most recent observations across all watches.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]ListingSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, limit)
}

// ListSnapshotsBetween lists one watch's observations within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, watchID int64, from, to time.Time) ([]ListingSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, watchID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, 0)
}

// LookupEnrichment returns the cached inspect result, or nil when absent.
func (s *Store) LookupEnrichment(ctx context.Context, lookupKey string) (*EnrichmentEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	entry, scanErr := scanEnrichment(pool.QueryRow(ctx, lookupEnrichmentSQL, lookupKey))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("lookup enrichment: %w", scanErr)
	}
	return &entry, nil
}

// StoreEnrichment inserts the entry unless the key already exists; the
// retained row (possibly written by a concurrent worker) is returned.
func (s *Store) StoreEnrichment(ctx context.Context, entry EnrichmentEntry) (EnrichmentEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return EnrichmentEntry{}, err
	}

	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return EnrichmentEntry{}, fmt.Errorf("marshal enrichment result: %w", err)
	}

	var watchID interface{}
	if entry.WatchID != nil {
		watchID = *entry.WatchID
	}

	if _, execErr := pool.Exec(ctx, storeEnrichmentSQL, entry.LookupKey, resultJSON, watchID); execErr != nil {
		return EnrichmentEntry{}, fmt.Errorf("store enrichment: %w", execErr)
	}

	stored, scanErr := scanEnrichment(pool.QueryRow(ctx, lookupEnrichmentSQL, entry.LookupKey))
	if scanErr != nil {
		return EnrichmentEntry{}, fmt.Errorf("read back enrichment: %w", scanErr)
	}
	return stored, nil
}

// InsertAlert records an alert for a snapshot. Returns false when a record
// already existed (the at-most-once guard).
func (s *Store) InsertAlert(ctx context.Context, snapshotID int64, payload json.RawMessage) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertAlertSQL, snapshotID, []byte(payload)).Scan(&id)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("insert alert: %w", scanErr)
	}
	return true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.SnapshotID, &payload, &rec.SentAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// WorkerEnabled reads the pause toggle; a missing row means enabled.
func (s *Store) WorkerEnabled(ctx context.Context) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var state WorkerState
	scanErr := pool.QueryRow(ctx, workerStateSQL).Scan(&state.Enabled, &state.UpdatedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return true, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("read worker state: %w", scanErr)
	}
	return state.Enabled, nil
}

// SetWorkerEnabled writes the pause toggle.
func (s *Store) SetWorkerEnabled(ctx context.Context, enabled bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setWorkerStateSQL, enabled); execErr != nil {
		return fmt.Errorf("set worker state: %w", execErr)
	}
	return nil
}

func scanWatch(rows pgx.Rows) (Watch, error) {
	var (
		watch     Watch
		rulesJSON []byte
	)
	if err := rows.Scan(
		&watch.ID,
		&watch.AppID,
		&watch.MarketHashName,
		&watch.URL,
		&watch.CurrencyID,
		&rulesJSON,
		&watch.CreatedAt,
	); err != nil {
		return Watch{}, err
	}
	if err := json.Unmarshal(rulesJSON, &watch.Rules); err != nil {
		return Watch{}, fmt.Errorf("parse rules: %w", err)
	}
	return watch, nil
}

func collectSnapshots(rows pgx.Rows, sizeHint int) ([]ListingSnapshot, error) {
	snapshots := make([]ListingSnapshot, 0, sizeHint)
	for rows.Next() {
		var (
			snapshot       ListingSnapshot
			parsedJSON     []byte
			enrichmentJSON []byte
		)
		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.WatchID,
			&snapshot.ListingKey,
			&snapshot.PriceCents,
			&parsedJSON,
			&enrichmentJSON,
			&snapshot.Alerted,
			&snapshot.FetchedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parsedJSON, &snapshot.Parsed); err != nil {
			return nil, fmt.Errorf("parse snapshot fields: %w", err)
		}
		if len(enrichmentJSON) > 0 {
			var enrichment fetcher.EnrichmentResult
			if err := json.Unmarshal(enrichmentJSON, &enrichment); err != nil {
				return nil, fmt.Errorf("parse enrichment fields: %w", err)
			}
			snapshot.Enrichment = &enrichment
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanEnrichment(row pgx.Row) (EnrichmentEntry, error) {
	var (
		entry      EnrichmentEntry
		resultJSON []byte
		watchID    *int64
	)
	if err := row.Scan(&entry.LookupKey, &resultJSON, &watchID, &entry.FetchedAt); err != nil {
		return EnrichmentEntry{}, err
	}
	if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
		return EnrichmentEntry{}, fmt.Errorf("parse enrichment result: %w", err)
	}
	entry.WatchID = watchID
	return entry, nil
}

var (
	_ WatchStore       = (*Store)(nil)
	_ SnapshotStore    = (*Store)(nil)
	_ EnrichmentStore  = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ WorkerStateStore = (*Store)(nil)
)
