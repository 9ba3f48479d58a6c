package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InspectOptions parameterise the inspect-service client.
type InspectOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Inspect resolves inspect links against a float/inspect API service.
type Inspect struct {
	opts    InspectOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewInspect constructs an inspect client.
func NewInspect(opts InspectOptions, logger zerolog.Logger) *Inspect {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Inspect{
		opts:    opts,
		logger:  logger.With().Str("component", "inspect_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Inspect requests attributes for one item instance. A 404/410 is a valid
// terminal ErrNotFound; malformed payloads are returned as plain errors so
// the retry layer treats them as transient.
func (i *Inspect) Inspect(ctx context.Context, lookupKey string) (*EnrichmentResult, error) {
	if i.baseURL == "" {
		return nil, errors.New("inspect base url not configured")
	}
	if lookupKey == "" {
		return nil, errors.New("lookup key required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL, nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	query.Set("url", lookupKey)
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: inspect %s", ErrNotFound, lookupKey)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inspect api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload inspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode inspect payload: %w", err)
	}
	if payload.FloatValue == nil {
		return nil, errors.New("inspect payload missing float_value")
	}

	result := &EnrichmentResult{
		FloatValue: *payload.FloatValue,
		PaintSeed:  payload.PaintSeed,
		PaintIndex: payload.PaintIndex,
		Stickers:   payload.Stickers,
		WearName:   payload.WearName,
	}

	i.logger.Debug().
		Float64("float_value", result.FloatValue).
		Int("stickers", len(result.Stickers)).
		Msg("inspect resolved")

	return result, nil
}

type inspectResponse struct {
	FloatValue *float64  `json:"float_value"`
	PaintSeed  *int      `json:"paint_seed"`
	PaintIndex *int      `json:"paint_index"`
	Stickers   []Sticker `json:"stickers"`
	WearName   string    `json:"wear_name"`
}

var _ EnrichmentProvider = (*Inspect)(nil)
