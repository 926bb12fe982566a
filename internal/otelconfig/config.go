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

// Package otelconfig holds the OTLP export settings shared by the logging
// pipeline and the telemetry providers.
package otelconfig

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultServiceName is used for the service.name resource attribute when
// OTEL_SERVICE_NAME is not set.
const DefaultServiceName = "Unknown"

const (
	ProtocolGRPC         = "grpc"
	ProtocolHTTPProtobuf = "http/protobuf"
)

const (
	LogsPath    = "v1/logs"
	TracesPath  = "v1/traces"
	MetricsPath = "v1/metrics"
)

var ErrUnsupportedProtocol = errors.New("unsupported OTLP protocol")

// Config mirrors the standard OTEL_EXPORTER_OTLP_* environment surface.
type Config struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Protocol    string `mapstructure:"protocol"`
	Headers     string `mapstructure:"headers"`
}

// Enabled reports whether an OTLP endpoint was configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c Config) ServiceNameOrDefault() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// NormalizedProtocol returns the transport to use for export. An empty
// protocol selects gRPC.
func (c Config) NormalizedProtocol() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Protocol)) {
	case "", ProtocolGRPC:
		return ProtocolGRPC, nil
	case ProtocolHTTPProtobuf, "http":
		return ProtocolHTTPProtobuf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, c.Protocol)
	}
}

// ParsedHeaders decodes the "key1=value1,key2=value2" header list. Values
// may be percent-encoded.
func (c Config) ParsedHeaders() (map[string]string, error) {
	headers := map[string]string{}
	if strings.TrimSpace(c.Headers) == "" {
		return headers, nil
	}
	for _, pair := range strings.Split(c.Headers, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid OTLP header %q: expected key=value", pair)
		}
		decoded, err := url.QueryUnescape(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP header %q: %w", pair, err)
		}
		headers[k] = decoded
	}
	return headers, nil
}

// SignalURL appends the per-signal path to the base endpoint, as the OTLP
// HTTP exporters expect a full URL.
func (c Config) SignalURL(signalPath string) (string, error) {
	u, err := c.endpointURL()
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + signalPath
	return u.String(), nil
}

// Validate checks the settings without contacting the collector.
func (c Config) Validate() error {
	if _, err := c.NormalizedProtocol(); err != nil {
		return err
	}
	if _, err := c.ParsedHeaders(); err != nil {
		return err
	}
	if c.Enabled() {
		if _, err := c.endpointURL(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) endpointURL() (*url.URL, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: scheme and host are required", c.Endpoint)
	}
	return u, nil
}
