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

// Package logging builds the process logger in two stages.
//
// A bootstrap logger that only writes to the console is installed before
// anything else runs, so that errors while loading configuration are still
// reported. Once configuration is available, Configure builds the final
// logger (console, plus an OTLP sink when an endpoint is configured) and
// replaces the bootstrap logger with it. Guard wraps the program's entry
// point: it logs an escaping error or panic once at FATAL and always
// flushes and closes the active pipeline.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/cardinalhq/webfrontend/internal/logctx"
	"github.com/cardinalhq/webfrontend/internal/otelconfig"
)

const (
	SinkConsole = "console"
	SinkOTLP    = "otlp"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ScopeName is the instrumentation scope of records sent through the OTLP
// sink.
const ScopeName = "github.com/cardinalhq/webfrontend"

type Stage int

const (
	StageBootstrap Stage = iota
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageBootstrap:
		return "bootstrap"
	case StageFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Settings are the logger options read from configuration.
type Settings struct {
	Level     string            `mapstructure:"level" validate:"omitempty,oneof=debug verbose info information warn warning error fatal"`
	Format    string            `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Overrides map[string]string `mapstructure:"overrides"`
}

func DefaultSettings() Settings {
	return Settings{
		Level:  "info",
		Format: FormatText,
	}
}

// Pipeline is a logger together with the sinks it writes to.
type Pipeline struct {
	logger   *slog.Logger
	stage    Stage
	sinks    []string
	provider *sdklog.LoggerProvider
	resource *resource.Resource

	closeOnce sync.Once
	closeErr  error
}

func (p *Pipeline) Logger() *slog.Logger { return p.logger }

func (p *Pipeline) Stage() Stage { return p.stage }

// Sinks lists the active sinks, console first.
func (p *Pipeline) Sinks() []string { return slices.Clone(p.sinks) }

// LoggerProvider is nil unless the OTLP sink is active.
func (p *Pipeline) LoggerProvider() *sdklog.LoggerProvider { return p.provider }

// Resource is nil unless the OTLP sink is active.
func (p *Pipeline) Resource() *resource.Resource { return p.resource }

// Flush exports any buffered records without closing the pipeline.
func (p *Pipeline) Flush(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.ForceFlush(ctx)
}

// Close flushes and shuts down the sinks. It is safe to call more than once.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		if p.provider == nil {
			return
		}
		if err := p.provider.Shutdown(ctx); err != nil {
			p.closeErr = fmt.Errorf("failed to shut down OTLP log sink: %w", err)
		}
	})
	return p.closeErr
}

type buildOptions struct {
	console  io.Writer
	exporter sdklog.Exporter
}

type Option func(*buildOptions)

// WithConsole sets where the console sink writes. The default is os.Stdout.
func WithConsole(w io.Writer) Option {
	return func(o *buildOptions) { o.console = w }
}

// WithExporter replaces the OTLP exporter that Build would otherwise create
// from the endpoint settings. It is only used when an endpoint is set.
func WithExporter(exp sdklog.Exporter) Option {
	return func(o *buildOptions) { o.exporter = exp }
}

// Bootstrap returns the console-only logger used until configuration has
// been loaded.
func Bootstrap(w io.Writer) *Pipeline {
	if w == nil {
		w = os.Stdout
	}
	console := newConsoleHandler(w, FormatText)
	handler := logctx.NewHandler(newLevelOverrideHandler(console, slog.LevelInfo, BootstrapOverrides))
	return &Pipeline{
		logger: slog.New(handler),
		stage:  StageBootstrap,
		sinks:  []string{SinkConsole},
	}
}

// Build constructs the final logger from settings. The console sink is
// always present; the OTLP sink is added only when otlp has an endpoint.
func Build(ctx context.Context, settings Settings, otlp otelconfig.Config, opts ...Option) (*Pipeline, error) {
	o := buildOptions{console: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := ParseLevel(settings.Level)
	if err != nil {
		return nil, err
	}
	overrides, err := parseOverrides(settings.Overrides)
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(settings.Format)
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("unknown log format %q", settings.Format)
	}
	if err := otlp.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		stage: StageFinal,
		sinks: []string{SinkConsole},
	}
	sink := newConsoleHandler(o.console, format)

	if otlp.Enabled() {
		res, err := otlp.Resource(ctx)
		if err != nil {
			return nil, err
		}
		exp := o.exporter
		if exp == nil {
			exp, err = newExporter(ctx, otlp)
			if err != nil {
				return nil, err
			}
		}
		p.resource = res
		p.provider = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		p.sinks = append(p.sinks, SinkOTLP)
		sink = slogmulti.Fanout(sink, otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(p.provider)))
	}

	handler := logctx.NewHandler(newLevelOverrideHandler(sink, level, overrides))
	p.logger = slog.New(handler).With(
		slog.String("service", otlp.ServiceNameOrDefault()),
		slog.Int64("instanceID", InstanceID()),
	)
	return p, nil
}

func newConsoleHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       lowestLevel,
		ReplaceAttr: replaceLevelNames,
	}
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func newExporter(ctx context.Context, cfg otelconfig.Config) (sdklog.Exporter, error) {
	protocol, err := cfg.NormalizedProtocol()
	if err != nil {
		return nil, err
	}
	headers, err := cfg.ParsedHeaders()
	if err != nil {
		return nil, err
	}

	if protocol == otelconfig.ProtocolHTTPProtobuf {
		endpoint, err := cfg.SignalURL(otelconfig.LogsPath)
		if err != nil {
			return nil, err
		}
		exp, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(endpoint),
			otlploghttp.WithHeaders(headers),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP/HTTP log exporter: %w", err)
		}
		return exp, nil
	}

	exp, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpointURL(cfg.Endpoint),
		otlploggrpc.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP/gRPC log exporter: %w", err)
	}
	return exp, nil
}
