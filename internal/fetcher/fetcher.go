package fetcher

import (
	"context"
	"errors"
)

// ErrNotFound signals a well-formed "does not exist" response from a
// provider. It is a valid terminal outcome and must not be retried.
var ErrNotFound = errors.New("fetcher: not found")

// ParsedListing is one sale offer extracted from a marketplace results page.
type ParsedListing struct {
	// ListingKey identifies the listing row on the marketplace.
	ListingKey string `json:"listing_key"`
	PriceCents int64  `json:"price_cents"`
	// LookupKey is the inspect link used to request enrichment; empty when
	// the row carried no derivable inspect link.
	LookupKey  string `json:"lookup_key,omitempty"`
	ListingURL string `json:"listing_url,omitempty"`
}

// Sticker is one decoration attached to an item instance.
type Sticker struct {
	Name string   `json:"name"`
	Slot int      `json:"slot,omitempty"`
	Wear *float64 `json:"wear,omitempty"`
}

// EnrichmentResult carries the per-instance attributes from the inspect
// provider. Immutable for a given lookup key.
type EnrichmentResult struct {
	FloatValue float64   `json:"float_value"`
	PaintSeed  *int      `json:"paint_seed,omitempty"`
	PaintIndex *int      `json:"paint_index,omitempty"`
	Stickers   []Sticker `json:"stickers,omitempty"`
	WearName   string    `json:"wear_name,omitempty"`
}

// StickerNames returns the non-empty sticker names in slot order.
func (r *EnrichmentResult) StickerNames() []string {
	if r == nil || len(r.Stickers) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Stickers))
	for _, s := range r.Stickers {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// ListingProvider retrieves the first page of listings for a watched item.
type ListingProvider interface {
	FetchListings(ctx context.Context, appID int64, marketHashName string, currencyID int) ([]ParsedListing, error)
}

// EnrichmentProvider resolves an inspect link to item instance attributes.
type EnrichmentProvider interface {
	Inspect(ctx context.Context, lookupKey string) (*EnrichmentResult, error)
}
