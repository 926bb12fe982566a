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

// Package web is the HTTP host of the front-end: routing, middleware, pages
// and the server lifecycle.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/webfrontend/internal/logging"
)

type Config struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	PprofPort         int           `mapstructure:"pprof_port" validate:"gte=0,lte=65535"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

type Status int32

const (
	StatusStarting Status = iota
	StatusServing
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusServing:
		return "serving"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Host struct {
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
	status  atomic.Int32
	addr    atomic.Pointer[string]
}

// NewHost builds the handler tree. development selects the detailed
// exception output instead of the error page.
func NewHost(cfg Config, logger *slog.Logger, development bool, forecasts ForecastSource) (*Host, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	router := newRouter(logger, development, forecasts, p)
	return &Host{
		cfg:     cfg,
		logger:  logger,
		handler: otelhttp.NewHandler(router, "webfrontend"),
	}, nil
}

// Handler is the fully wrapped handler the server uses.
func (h *Host) Handler() http.Handler { return h.handler }

func (h *Host) Status() Status { return Status(h.status.Load()) }

// Addr is the bound listen address once serving, or "".
func (h *Host) Addr() string {
	if a := h.addr.Load(); a != nil {
		return *a
	}
	return ""
}

// Run listens on the configured address and serves until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.cfg.Addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: h.cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logging.Category(h.logger, "net/http").Handler(), slog.LevelError),
	}

	addr := ln.Addr().String()
	h.addr.Store(&addr)
	h.status.Store(int32(StatusServing))
	h.logger.Info("Now listening", slog.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		h.status.Store(int32(StatusStopped))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	h.logger.Info("Application is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.ShutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	h.status.Store(int32(StatusStopped))
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
