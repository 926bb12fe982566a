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

// Package telemetry installs the OpenTelemetry trace and metric providers.
// It must run after the final logger has replaced the bootstrap logger, so
// that the log provider it registers globally is the one that exports.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	oteltools "github.com/cardinalhq/oteltools/pkg/telemetry"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cardinalhq/webfrontend/internal/logging"
	"github.com/cardinalhq/webfrontend/internal/otelconfig"
)

// Category is the logger category of the OpenTelemetry SDK's own messages.
const Category = "go.opentelemetry.io/otel"

var ErrLoggingNotConfigured = errors.New("telemetry setup requires the final logger to be installed first")

// setupOTelSDK installs OTLP/HTTP tracer and meter providers configured from
// the standard OTEL_* variables.
var setupOTelSDK = oteltools.SetupOTelSDK

// Providers are the SDK providers installed by Setup. Both are nil when no
// OTLP endpoint is configured, and when the OTLP/HTTP providers were
// installed by the SDK helper, which only hands back a shutdown func.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	sdkShutdown func(context.Context) error
}

// Shutdown flushes and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.sdkShutdown != nil {
		if err := p.sdkShutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("otel sdk: %w", err))
		}
	}
	return result.ErrorOrNil()
}

type options struct {
	spanExporter   sdktrace.SpanExporter
	metricReader   sdkmetric.Reader
	processMetrics bool
}

type Option func(*options)

// WithSpanExporter replaces the OTLP span exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricReader replaces the periodic OTLP metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// WithoutProcessMetrics skips the Go runtime and host metric collectors.
func WithoutProcessMetrics() Option {
	return func(o *options) { o.processMetrics = false }
}

// Setup registers the propagators, the SDK logger and error handler and,
// when an OTLP endpoint is configured, tracer and meter providers that
// export to it. OTLP/HTTP export goes through the shared SDK helper; gRPC
// export and injected exporters are wired here.
func Setup(ctx context.Context, active *logging.Active, cfg otelconfig.Config, opts ...Option) (*Providers, error) {
	if !active.Configured() {
		return nil, ErrLoggingNotConfigured
	}
	o := options{processMetrics: true}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.Category(active.Logger(), Category)
	otel.SetLogger(logr.FromSlogHandler(logger.Handler()))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Error("OpenTelemetry error", slog.Any("error", err))
	}))

	providers := &Providers{}
	if cfg.Enabled() {
		protocol, err := cfg.NormalizedProtocol()
		if err != nil {
			return nil, err
		}
		if protocol == otelconfig.ProtocolHTTPProtobuf && o.spanExporter == nil && o.metricReader == nil {
			err = providers.startSDK(ctx, cfg)
		} else {
			err = providers.startLocal(ctx, cfg, o)
		}
		if err != nil {
			return nil, err
		}
	}

	// Installed after the providers: the SDK helper sets its own propagator
	// and log provider.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if lp := active.Pipeline().LoggerProvider(); lp != nil {
		global.SetLoggerProvider(lp)
	}

	if !cfg.Enabled() {
		logger.Info("OpenTelemetry exporting disabled: no OTLP endpoint configured")
		return providers, nil
	}

	if o.processMetrics {
		mp := otel.GetMeterProvider()
		if err := iruntime.Start(
			iruntime.WithMeterProvider(mp),
			iruntime.WithMinimumReadMemStatsInterval(10*time.Second),
		); err != nil {
			logger.Warn("failed to start runtime metrics", slog.Any("error", err))
		}
		if err := host.Start(host.WithMeterProvider(mp)); err != nil {
			logger.Warn("failed to start host metrics", slog.Any("error", err))
		}
	}

	logger.Info("OpenTelemetry exporting enabled",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("serviceName", cfg.ServiceNameOrDefault()))
	return providers, nil
}

// startSDK hands OTLP/HTTP export to the SDK helper. The helper reads the
// process environment, so settings that came from a config file are
// exported there first.
func (p *Providers) startSDK(ctx context.Context, cfg otelconfig.Config) error {
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": cfg.Endpoint,
		"OTEL_EXPORTER_OTLP_PROTOCOL": otelconfig.ProtocolHTTPProtobuf,
		"OTEL_EXPORTER_OTLP_HEADERS":  cfg.Headers,
		"OTEL_SERVICE_NAME":           cfg.ServiceNameOrDefault(),
	}
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to export %s: %w", k, err)
		}
	}

	shutdown, err := setupOTelSDK(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
	}
	p.sdkShutdown = shutdown
	return nil
}

func (p *Providers) startLocal(ctx context.Context, cfg otelconfig.Config, o options) error {
	res, err := cfg.Resource(ctx)
	if err != nil {
		return err
	}

	spanExporter := o.spanExporter
	if spanExporter == nil {
		if spanExporter, err = newSpanExporter(ctx, cfg); err != nil {
			return err
		}
	}
	reader := o.metricReader
	if reader == nil {
		metricExporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			if serr := spanExporter.Shutdown(ctx); serr != nil {
				err = multierror.Append(err, fmt.Errorf("span exporter: %w", serr))
			}
			return err
		}
		reader = sdkmetric.NewPeriodicReader(metricExporter)
	}

	p.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	p.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	return nil
}

// newMetricExporter builds the gRPC metric exporter. Tests replace it.
var newMetricExporter = func(ctx context.Context, cfg otelconfig.Config) (sdkmetric.Exporter, error) {
	headers, err := cfg.ParsedHeaders()
	if err != nil {
		return nil, err
	}
	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.Endpoint), otlpmetricgrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP/gRPC metric exporter: %w", err)
	}
	return exp, nil
}

func newSpanExporter(ctx context.Context, cfg otelconfig.Config) (sdktrace.SpanExporter, error) {
	headers, err := cfg.ParsedHeaders()
	if err != nil {
		return nil, err
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.Endpoint), otlptracegrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP/gRPC span exporter: %w", err)
	}
	return exp, nil
}
