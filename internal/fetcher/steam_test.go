package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const sampleRow = `
<div class="market_listing_row" id="listing_5001">
  <a class="market_listing_row_link" href="https://steamcommunity.com/market/listings/730/item">
    <div class="market_listing_item_name_block" data-paintindex="700"></div>
    <span class="market_listing_price_with_fee">$123.45</span>
  </a>
  <div class="market_listing_row_action">
    <a class="market_action_menu_item" href="steam://rungame/730/inspect/5001">Inspect in Game...</a>
  </div>
</div>`

func TestParseResultsHTMLExtractsListing(t *testing.T) {
	listings, err := ParseResultsHTML(sampleRow)
	if err != nil {
		t.Fatalf("解析 results_html 失败: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("期望 1 条 listing, 实际 %d", len(listings))
	}

	listing := listings[0]
	if listing.ListingKey != "listing_5001" {
		t.Fatalf("listing key 不正确: %q", listing.ListingKey)
	}
	if listing.PriceCents != 12345 {
		t.Fatalf("期望价格 12345, 实际 %d", listing.PriceCents)
	}
	if listing.LookupKey != "steam://rungame/730/inspect/5001" {
		t.Fatalf("inspect link 不正确: %q", listing.LookupKey)
	}
	if listing.ListingURL != "https://steamcommunity.com/market/listings/730/item" {
		t.Fatalf("listing url 不正确: %q", listing.ListingURL)
	}
}

func TestParseResultsHTMLSkipsBrokenRows(t *testing.T) {
	fragment := `
<div class="market_listing_row" id="no_price"><span>oops</span></div>
<div class="market_listing_row"><span class="market_listing_price_with_fee">$1.00</span></div>` + sampleRow

	listings, err := ParseResultsHTML(fragment)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("损坏的行应被跳过, 实际 %d 条", len(listings))
	}
}

func TestParseResultsHTMLMissingInspectLink(t *testing.T) {
	fragment := `
<div class="market_listing_row" id="listing_1">
  <span class="market_listing_price_with_fee">$2.50</span>
</div>`

	listings, err := ParseResultsHTML(fragment)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("期望 1 条 listing, 实际 %d", len(listings))
	}
	if listings[0].LookupKey != "" {
		t.Fatal("缺少 inspect link 时 LookupKey 应为空")
	}
}

func TestSteamFetchListingsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/market/listings/730/") {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Fatal("缺少 format=json")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"results_html": sampleRow,
			"total_count":  57,
		})
	}))
	defer srv.Close()

	steam := NewSteam(SteamOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	listings, err := steam.FetchListings(context.Background(), 730, "AK-47 | Redline (Field-Tested)", 1)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(listings) != 1 || listings[0].PriceCents != 12345 {
		t.Fatalf("listings 解析不正确: %+v", listings)
	}
}

func TestSteamFetchListingsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	steam := NewSteam(SteamOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := steam.FetchListings(context.Background(), 730, "Nope", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("404 应返回 ErrNotFound, 实际 %v", err)
	}
}

func TestSteamFetchListingsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	steam := NewSteam(SteamOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := steam.FetchListings(context.Background(), 730, "Item", 1)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("5xx 应返回普通错误, 实际 %v", err)
	}
}

func TestSteamFetchListingsMissingName(t *testing.T) {
	steam := NewSteam(SteamOptions{}, noopLogger())
	if _, err := steam.FetchListings(context.Background(), 730, "", 1); err == nil {
		t.Fatal("缺少 market hash name 应报错")
	}
}

func TestParsePriceCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"$1.23", 123},
		{"0.99", 99},
		{".50", 50},
		{"$1,234.56 USD", 123456},
	}
	for _, tc := range cases {
		got, err := ParsePriceCents(tc.in)
		if err != nil {
			t.Fatalf("ParsePriceCents(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParsePriceCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "-1.00"} {
		if _, err := ParsePriceCents(bad); err == nil {
			t.Fatalf("ParsePriceCents(%q) 应报错", bad)
		}
	}
}
