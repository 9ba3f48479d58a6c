package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInspectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "steam://rungame/730/inspect/1" {
			t.Fatalf("unexpected lookup key: %q", r.URL.Query().Get("url"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"float_value": 0.162,
			"paint_seed":  661,
			"paint_index": 282,
			"stickers":    []map[string]any{{"name": "Howling Dawn", "slot": 2}},
			"wear_name":   "Field-Tested",
		})
	}))
	defer srv.Close()

	client := NewInspect(InspectOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	result, err := client.Inspect(context.Background(), "steam://rungame/730/inspect/1")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.FloatValue != 0.162 {
		t.Fatalf("float_value = %v", result.FloatValue)
	}
	if result.PaintSeed == nil || *result.PaintSeed != 661 {
		t.Fatalf("paint_seed = %v", result.PaintSeed)
	}
	names := result.StickerNames()
	if len(names) != 1 || names[0] != "Howling Dawn" {
		t.Fatalf("sticker names = %v", names)
	}
}

func TestInspectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewInspect(InspectOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := client.Inspect(context.Background(), "steam://gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("404 should map to ErrNotFound, got %v", err)
	}
}

func TestInspectTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewInspect(InspectOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := client.Inspect(context.Background(), "steam://busy")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("429 should be a plain transient error, got %v", err)
	}
}

func TestInspectMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"wear_name": "Field-Tested"})
	}))
	defer srv.Close()

	client := NewInspect(InspectOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := client.Inspect(context.Background(), "steam://nofloat")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("missing float_value should be a transient error, got %v", err)
	}
}

func TestInspectMissingConfig(t *testing.T) {
	client := NewInspect(InspectOptions{}, noopLogger())
	if _, err := client.Inspect(context.Background(), "steam://x"); err == nil {
		t.Fatal("missing base url should fail")
	}
	client = NewInspect(InspectOptions{BaseURL: "http://localhost"}, noopLogger())
	if _, err := client.Inspect(context.Background(), ""); err == nil {
		t.Fatal("empty lookup key should fail")
	}
}
