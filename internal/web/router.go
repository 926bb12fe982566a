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

package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cardinalhq/webfrontend/internal/logctx"
	"github.com/cardinalhq/webfrontend/internal/logging"
	"github.com/cardinalhq/webfrontend/internal/weather"
)

// ForecastSource supplies the forecasts shown on the weather page.
type ForecastSource interface {
	Forecasts(ctx context.Context, maxItems int) ([]weather.Forecast, error)
}

func newRouter(logger *slog.Logger, development bool, forecasts ForecastSource, p *pages) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestContext(logger))
	r.Use(requestLogger(logging.Category(logger, "http.request")))
	r.Use(exceptionHandler(development, p))

	h := &handlers{pages: p, forecasts: forecasts}
	r.Get("/", h.home)
	r.Get("/weather", h.weather)
	r.Get("/error", h.errorPage)
	r.Handle("/static/*", http.StripPrefix("/static/", staticFiles()))
	r.NotFound(h.notFound)

	return r
}

type handlers struct {
	pages     *pages
	forecasts ForecastSource
}

func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pageHome, http.StatusOK, pageData{Title: "Home"})
}

func (h *handlers) weather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := pageData{Title: "Weather"}
	status := http.StatusOK

	forecasts, err := h.forecasts.Forecasts(ctx, weather.DefaultMaxItems)
	if err != nil {
		logctx.FromContext(ctx).WarnContext(ctx, "Failed to load weather forecast", slog.Any("error", err))
		data.Error = "The weather service is unavailable right now."
		status = http.StatusBadGateway
	}
	data.Forecasts = forecasts
	h.render(w, r, pageWeather, status, data)
}

func (h *handlers) errorPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pageError, http.StatusOK, pageData{
		Title:     "Error",
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pageNotFound, http.StatusNotFound, pageData{Title: "Not found"})
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, page string, status int, data pageData) {
	if err := h.pages.render(w, page, status, data); err != nil {
		ctx := r.Context()
		logctx.FromContext(ctx).ErrorContext(ctx, "Failed to render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
