package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// SteamOptions parameterise the Steam Community Market listings client.
type SteamOptions struct {
	BaseURL   string
	PageSize  int
	Timeout   time.Duration
	UserAgent string
}

// Steam fetches the rendered first page of listings for a market item.
type Steam struct {
	opts    SteamOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSteam constructs a Steam listings client.
func NewSteam(opts SteamOptions, logger zerolog.Logger) *Steam {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://steamcommunity.com"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}

	return &Steam{
		opts:    opts,
		logger:  logger.With().Str("component", "steam_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchListings retrieves and parses the first results page for an item.
// Returns ErrNotFound when the market reports the item does not exist.
func (s *Steam) FetchListings(ctx context.Context, appID int64, marketHashName string, currencyID int) ([]ParsedListing, error) {
	if marketHashName == "" {
		return nil, errors.New("market hash name required")
	}
	if currencyID <= 0 {
		currencyID = 1
	}

	endpoint := fmt.Sprintf("%s/market/listings/%d/%s/render", s.baseURL, appID, url.PathEscape(marketHashName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	query.Set("start", "0")
	query.Set("count", strconv.Itoa(s.opts.PageSize))
	query.Set("currency", strconv.Itoa(currencyID))
	query.Set("format", "json")
	req.URL.RawQuery = query.Encode()

	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cs2-market-watcher/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: listings page %d/%s", ErrNotFound, appID, marketHashName)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("steam render error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode render payload: %w", err)
	}
	if !payload.Success {
		return nil, errors.New("steam render returned success=false")
	}

	listings, err := ParseResultsHTML(payload.ResultsHTML)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("appid", appID).
		Str("item", marketHashName).
		Int("listings", len(listings)).
		Int("total_count", payload.TotalCount).
		Msg("listings page fetched")

	return listings, nil
}

type renderResponse struct {
	Success     bool   `json:"success"`
	ResultsHTML string `json:"results_html"`
	TotalCount  int    `json:"total_count"`
}

// ParseResultsHTML extracts listings from the results_html fragment of a
// render response. Rows missing a price or listing key are skipped; a missing
// inspect link leaves LookupKey empty.
func ParseResultsHTML(fragment string) ([]ParsedListing, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse results html: %w", err)
	}

	var listings []ParsedListing
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" || !hasClass(n, "market_listing_row") {
			return
		}
		listing, ok := parseListingRow(n)
		if ok {
			listings = append(listings, listing)
		}
	})
	return listings, nil
}

func parseListingRow(row *html.Node) (ParsedListing, bool) {
	var listing ParsedListing

	listing.ListingKey = attr(row, "id")
	if listing.ListingKey == "" {
		walk(row, func(n *html.Node) {
			if listing.ListingKey != "" {
				return
			}
			if n.Type == html.ElementNode && hasClass(n, "market_listing_item_name_block") {
				listing.ListingKey = attr(n, "data-paintindex")
			}
		})
	}
	if listing.ListingKey == "" {
		return ParsedListing{}, false
	}

	var priceText string
	walk(row, func(n *html.Node) {
		if priceText != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "span" && hasClass(n, "market_listing_price_with_fee") {
			priceText = strings.TrimSpace(nodeText(n))
		}
	})
	cents, err := ParsePriceCents(priceText)
	if err != nil {
		return ParsedListing{}, false
	}
	listing.PriceCents = cents

	walk(row, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attr(n, "href")
		switch {
		case hasClass(n, "market_listing_row_link") && listing.ListingURL == "":
			listing.ListingURL = href
		case strings.HasPrefix(href, "steam://") && listing.LookupKey == "":
			listing.LookupKey = href
		}
	})

	return listing, true
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var builder strings.Builder
	walk(n, func(child *html.Node) {
		if child.Type == html.TextNode {
			builder.WriteString(child.Data)
		}
	})
	return builder.String()
}

var _ ListingProvider = (*Steam)(nil)
