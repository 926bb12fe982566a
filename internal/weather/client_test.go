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

package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastJSON = `[
	{"date":"2026-10-16","temperatureC":21,"summary":"Mild","temperatureF":69},
	{"date":"2026-10-17","temperatureC":-3,"summary":"Freezing","temperatureF":27},
	{"date":"2026-10-18","temperatureC":35,"summary":"Scorching","temperatureF":94}
]`

func newForecastServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/weatherforecast", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestForecasts(t *testing.T) {
	srv, _ := newForecastServer(t, http.StatusOK, forecastJSON)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	got, err := c.Forecasts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Forecast{Date: "2026-10-16", TemperatureC: 21, Summary: "Mild"}, got[0])
	assert.Equal(t, 69, got[0].TemperatureF())
	assert.Equal(t, 27, got[1].TemperatureF())
}

func TestForecasts_MaxItems(t *testing.T) {
	srv, _ := newForecastServer(t, http.StatusOK, forecastJSON)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	got, err := c.Forecasts(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestForecasts_StatusError(t *testing.T) {
	srv, _ := newForecastServer(t, http.StatusServiceUnavailable, `{"error":"down"}`)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Forecasts(context.Background(), 5)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestForecasts_MalformedBody(t *testing.T) {
	srv, _ := newForecastServer(t, http.StatusOK, `{"not":"a list"}`)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Forecasts(context.Background(), 5)
	require.Error(t, err)
}

func TestForecasts_Cached(t *testing.T) {
	srv, calls := newForecastServer(t, http.StatusOK, forecastJSON)
	c, err := NewClient(srv.URL, WithCacheTTL(time.Minute))
	require.NoError(t, err)

	for range 3 {
		got, err := c.Forecasts(context.Background(), 5)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Forecasts(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "different maxItems is a different cache entry")
}

func TestForecasts_CacheDisabled(t *testing.T) {
	srv, calls := newForecastServer(t, http.StatusOK, forecastJSON)
	c, err := NewClient(srv.URL, WithCacheTTL(0))
	require.NoError(t, err)

	for range 2 {
		_, err := c.Forecasts(context.Background(), 5)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("apiservice")
	require.Error(t, err)
	_, err = NewClient("http://%zz")
	require.Error(t, err)
}

func TestForecasts_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond), WithCacheTTL(0))
	require.NoError(t, err)

	_, err = c.Forecasts(context.Background(), 5)
	require.Error(t, err)
}

func TestForecasts_ConcurrentMissesShareOneRequest(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastJSON))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithCacheTTL(time.Minute))
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Forecasts(context.Background(), DefaultMaxItems)
			if err == nil && len(got) != 3 {
				err = errors.New("unexpected forecast count")
			}
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestForecasts_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastJSON))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, WithCacheTTL(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Forecasts(ctx, 5)
		first <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		got, err := c.Forecasts(context.Background(), 5)
		return err == nil && len(got) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
