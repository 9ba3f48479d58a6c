package storage

import (
	"encoding/json"
	"time"

	"cs2-market-watcher/internal/fetcher"
	"cs2-market-watcher/internal/rules"
)

// Watch is a monitored marketplace item with its rule set. Owned by the
// administrative layer; the engine reads it per cycle.
type Watch struct {
	ID             int64
	AppID          int64
	MarketHashName string
	URL            string
	CurrencyID     int
	Rules          rules.RuleSet
	CreatedAt      time.Time
}

// ListingSnapshot is a point-in-time observation of one listing. At most one
// row exists per (watch_id, listing_key, price_cents).
type ListingSnapshot struct {
	ID         int64
	WatchID    int64
	ListingKey string
	PriceCents int64
	Parsed     fetcher.ParsedListing
	Enrichment *fetcher.EnrichmentResult
	Alerted    bool
	FetchedAt  time.Time
}

// EnrichmentEntry memoises one inspect result. Keyed by lookup key,
// insert-if-absent, never overwritten.
type EnrichmentEntry struct {
	LookupKey string
	Result    fetcher.EnrichmentResult
	WatchID   *int64
	FetchedAt time.Time
}

// AlertRecord captures one emitted notification. Exactly one per snapshot;
// its existence is the idempotency guard against duplicate sends.
type AlertRecord struct {
	ID         int64
	SnapshotID int64
	Payload    json.RawMessage
	SentAt     time.Time
}

// WorkerState is the process-wide pause toggle, mutated by the admin layer
// and polled by the scheduler.
type WorkerState struct {
	Enabled   bool
	UpdatedAt time.Time
}
