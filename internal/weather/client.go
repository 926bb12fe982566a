// Copyright (C) 2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package weather is a client for the API service's forecast endpoint.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxItems = 10
)

// Forecast is one day of the API service's forecast.
type Forecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	Summary      string `json:"summary,omitempty"`
}

func (f Forecast) TemperatureF() int {
	return 32 + int(float64(f.TemperatureC)/0.5556)
}

// StatusError is returned when the API service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather api %s returned status %d", e.URL, e.StatusCode)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	cache      *ttlcache.Cache[int, []Forecast]
	inflight   singleflight.Group
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCacheTTL keeps responses for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = ttlcache.New(
			ttlcache.WithTTL[int, []Forecast](ttl),
			ttlcache.WithDisableTouchOnHit[int, []Forecast](),
		)
	}
}

// WithTimeout bounds each upstream request. It has no effect together with
// WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid weather api url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid weather api url %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL: u,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return c, nil
}

// Forecasts returns up to maxItems forecasts. maxItems <= 0 returns all of
// them. Concurrent calls for the same maxItems share one upstream request.
func (c *Client) Forecasts(ctx context.Context, maxItems int) ([]Forecast, error) {
	if c.cache != nil {
		if item := c.cache.Get(maxItems); item != nil {
			return item.Value(), nil
		}
	}

	// The shared fetch outlives any single caller; the client timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(strconv.Itoa(maxItems), func() (any, error) {
		forecasts, err := c.fetch(fetchCtx, maxItems)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(maxItems, forecasts, ttlcache.DefaultTTL)
		}
		return forecasts, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Forecast), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(ctx context.Context, maxItems int) ([]Forecast, error) {
	endpoint := c.baseURL.JoinPath("weatherforecast")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint.String()}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return nil, fmt.Errorf("unexpected weather response content type %q", ct)
	}

	var forecasts []Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecasts); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if maxItems > 0 && len(forecasts) > maxItems {
		forecasts = forecasts[:maxItems]
	}

	c.logger.DebugContext(ctx, "Fetched weather forecasts",
		slog.Int("count", len(forecasts)),
		slog.Duration("elapsed", time.Since(start)))
	return forecasts, nil
}
