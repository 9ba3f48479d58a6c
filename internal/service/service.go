package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cs2-market-watcher/internal/alerting"
	"cs2-market-watcher/internal/fetcher"
	"cs2-market-watcher/internal/ratelimit"
	"cs2-market-watcher/internal/retry"
	"cs2-market-watcher/internal/rules"
	"cs2-market-watcher/internal/scheduler"
	"cs2-market-watcher/internal/storage"
)

var (
	// ErrFetchUnavailable classifies an exhausted listings fetch. Terminal
	// for the watch this cycle, never fatal to the process.
	ErrFetchUnavailable = errors.New("fetch unavailable")
	// ErrEnrichmentUnavailable classifies an exhausted inspect call. The
	// cycle continues with enrichment absent.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
)

// Deps collects the collaborators of the watch cycle.
type Deps struct {
	Watches     storage.WatchStore
	Snapshots   storage.SnapshotStore
	Enrichments storage.EnrichmentStore
	Alerts      storage.AlertStore

	Listings  fetcher.ListingProvider
	Inspector fetcher.EnrichmentProvider
	Notifier  alerting.Notifier

	Gate           *scheduler.Gate
	Retry          *retry.Policy
	ListingLimiter *ratelimit.Bucket
	InspectLimiter *ratelimit.Bucket

	Fees       rules.FeeModel
	WatchDelay time.Duration
	JitterFrac float64
}

// Service drives the per-watch cycle: fetch, dedupe, enrich, evaluate,
// record, notify.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration, frac float64) time.Duration
}

// New constructs the watch cycle service.
func New(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
		sleep:  sleepCtx,
		jitter: scheduler.Jitter,
	}
}

// RunPass processes every active watch once, in stable configured order.
// A failing watch is logged and skipped; it never halts the pass.
func (s *Service) RunPass(ctx context.Context) error {
	watches, err := s.deps.Watches.ListWatches(ctx)
	if err != nil {
		return fmt.Errorf("list watches: %w", err)
	}

	for i, watch := range watches {
		if s.deps.Gate != nil {
			if err := s.deps.Gate.Wait(ctx); err != nil {
				return err
			}
		}

		if err := s.ProcessWatch(ctx, watch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).
				Int64("watch_id", watch.ID).
				Str("item", watch.MarketHashName).
				Msg("watch cycle failed")
		}

		if s.deps.WatchDelay > 0 && i < len(watches)-1 {
			if err := s.sleep(ctx, s.jitter(s.deps.WatchDelay, s.deps.JitterFrac)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessWatch runs one cycle for a single watch.
func (s *Service) ProcessWatch(ctx context.Context, watch storage.Watch) error {
	listings, err := s.fetchListings(ctx, watch)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			s.logger.Debug().Int64("watch_id", watch.ID).Msg("item has no listings page")
			return nil
		}
		return err
	}

	for _, listing := range listings {
		if err := s.processListing(ctx, watch, listing); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).
				Int64("watch_id", watch.ID).
				Str("listing_key", listing.ListingKey).
				Msg("listing processing failed")
		}
	}
	return nil
}

func (s *Service) fetchListings(ctx context.Context, watch storage.Watch) ([]fetcher.ParsedListing, error) {
	var listings []fetcher.ParsedListing
	op := func(ctx context.Context) error {
		if s.deps.ListingLimiter != nil {
			if err := s.deps.ListingLimiter.Acquire(ctx); err != nil {
				return err
			}
		}
		out, err := s.deps.Listings.FetchListings(ctx, watch.AppID, watch.MarketHashName, watch.CurrencyID)
		if err != nil {
			if errors.Is(err, fetcher.ErrNotFound) {
				return retry.Permanent(err)
			}
			return err
		}
		listings = out
		return nil
	}

	if err := s.deps.Retry.Do(ctx, "fetch_listings", op); err != nil {
		if errors.Is(err, fetcher.ErrNotFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchUnavailable, watch.MarketHashName, err)
	}
	return listings, nil
}

func (s *Service) processListing(ctx context.Context, watch storage.Watch, listing fetcher.ParsedListing) error {
	seen, err := s.deps.Snapshots.SeenSnapshot(ctx, watch.ID, listing.ListingKey, listing.PriceCents)
	if err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if seen {
		return nil
	}

	snapshotID, err := s.deps.Snapshots.InsertSnapshot(ctx, storage.ListingSnapshot{
		WatchID:    watch.ID,
		ListingKey: listing.ListingKey,
		PriceCents: listing.PriceCents,
		Parsed:     listing,
	})
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	if snapshotID == 0 {
		// Another worker recorded the same observation first.
		return nil
	}

	enrichment := s.enrich(ctx, watch.ID, listing.LookupKey)
	if err := ctx.Err(); err != nil {
		return err
	}
	if enrichment != nil {
		if err := s.deps.Snapshots.SetSnapshotEnrichment(ctx, snapshotID, enrichment); err != nil {
			s.logger.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("failed to attach enrichment")
		}
	}

	verdict := rules.Evaluate(listing.PriceCents, toRuleEnrichment(enrichment), watch.Rules, s.deps.Fees)
	if !verdict.Eligible {
		s.logger.Debug().
			Int64("watch_id", watch.ID).
			Str("listing_key", listing.ListingKey).
			Strs("reasons", verdict.Reasons).
			Msg("listing skipped")
		return nil
	}

	return s.alert(ctx, watch, listing, snapshotID, enrichment, verdict)
}

// enrich resolves inspect data through the cache, limiter, and retry layers.
// All failures degrade to "no enrichment"; the cycle never aborts here.
func (s *Service) enrich(ctx context.Context, watchID int64, lookupKey string) *fetcher.EnrichmentResult {
	if lookupKey == "" {
		return nil
	}

	cached, err := s.deps.Enrichments.LookupEnrichment(ctx, lookupKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("enrichment cache lookup failed")
	} else if cached != nil {
		return &cached.Result
	}

	var result *fetcher.EnrichmentResult
	op := func(ctx context.Context) error {
		if s.deps.InspectLimiter != nil {
			if err := s.deps.InspectLimiter.Acquire(ctx); err != nil {
				return err
			}
		}
		out, err := s.deps.Inspector.Inspect(ctx, lookupKey)
		if err != nil {
			if errors.Is(err, fetcher.ErrNotFound) {
				return retry.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	}

	if err := s.deps.Retry.Do(ctx, "inspect", op); err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			s.logger.Debug().Str("lookup_key", lookupKey).Msg("inspect reports item gone")
		} else if !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).
				Str("lookup_key", lookupKey).
				Msg(ErrEnrichmentUnavailable.Error())
		}
		return nil
	}

	stored, err := s.deps.Enrichments.StoreEnrichment(ctx, storage.EnrichmentEntry{
		LookupKey: lookupKey,
		Result:    *result,
		WatchID:   &watchID,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("enrichment cache store failed")
		return result
	}
	// The stored row wins: a concurrent worker may have inserted first.
	return &stored.Result
}

func (s *Service) alert(ctx context.Context, watch storage.Watch, listing fetcher.ParsedListing, snapshotID int64, enrichment *fetcher.EnrichmentResult, verdict rules.Verdict) error {
	if s.deps.Notifier == nil {
		s.logger.Warn().Int64("snapshot_id", snapshotID).Msg("eligible listing but no notifier configured")
		return nil
	}

	note := alerting.Notification{
		WatchName:   watch.MarketHashName,
		PriceCents:  listing.PriceCents,
		ProfitCents: verdict.ProfitCents,
		Stickers:    enrichment.StickerNames(),
		ListingURL:  listing.ListingURL,
		InspectURL:  listing.LookupKey,
	}
	if enrichment != nil {
		note.FloatValue = &enrichment.FloatValue
		note.PaintSeed = enrichment.PaintSeed
	}
	if note.ListingURL == "" {
		note.ListingURL = watch.URL
	}

	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		// Not retried within the cycle: an ambiguous delivery failure must
		// not risk a duplicate send. The snapshot stays unalerted.
		s.logger.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("notification dispatch failed")
		return nil
	}

	payload, err := json.Marshal(struct {
		Message    string                    `json:"message"`
		Enrichment *fetcher.EnrichmentResult `json:"enrichment,omitempty"`
	}{
		Message:    alerting.RenderMessage(note),
		Enrichment: enrichment,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	inserted, err := s.deps.Alerts.InsertAlert(ctx, snapshotID, payload)
	if err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}
	if !inserted {
		s.logger.Warn().Int64("snapshot_id", snapshotID).Msg("alert record already existed")
	}
	if err := s.deps.Snapshots.MarkSnapshotAlerted(ctx, snapshotID); err != nil {
		return fmt.Errorf("mark snapshot alerted: %w", err)
	}

	s.logger.Info().
		Int64("watch_id", watch.ID).
		Int64("snapshot_id", snapshotID).
		Int64("profit_cents", verdict.ProfitCents).
		Msg("alert dispatched")
	return nil
}

func toRuleEnrichment(result *fetcher.EnrichmentResult) *rules.Enrichment {
	if result == nil {
		return nil
	}
	return &rules.Enrichment{
		FloatValue: result.FloatValue,
		PaintSeed:  result.PaintSeed,
		Stickers:   result.StickerNames(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
