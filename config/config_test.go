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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks variables that would otherwise leak in from the
// environment running the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range otelEnvs {
		t.Setenv(env, "")
	}
	t.Setenv("WEBFRONTEND_ENVIRONMENT", "")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "http://apiservice", cfg.APIService.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.OTel.Enabled())
	assert.Equal(t, "Unknown", cfg.OTel.ServiceNameOrDefault())
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEBFRONTEND_ENVIRONMENT", "Development")
	t.Setenv("WEBFRONTEND_HTTP_ADDR", ":9090")
	t.Setenv("WEBFRONTEND_HTTP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("WEBFRONTEND_APISERVICE_URL", "http://localhost:5400")
	t.Setenv("WEBFRONTEND_LOGGING_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "http://localhost:5400", cfg.APIService.URL)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadOTelEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_SERVICE_NAME", "checkout-web")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-otlp-api-key=abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.OTel.Enabled())
	assert.Equal(t, "http://collector:4317", cfg.OTel.Endpoint)
	assert.Equal(t, "checkout-web", cfg.OTel.ServiceNameOrDefault())
	assert.Equal(t, "x-otlp-api-key=abc", cfg.OTel.Headers)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "webfrontend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: Staging
logging:
  level: debug
  overrides:
    net/http: warn
    weather.client: error
otel:
  endpoint: http://collector:4318
  protocol: http/protobuf
`), 0o600))
	t.Setenv("OTEL_SERVICE_NAME", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, map[string]string{"net/http": "warn", "weather.client": "error"}, cfg.Logging.Overrides)
	assert.Equal(t, "http://collector:4318", cfg.OTel.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.OTel.Protocol)
	assert.Equal(t, "from-env", cfg.OTel.ServiceName)
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "webfrontend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [unterminated\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"level", "WEBFRONTEND_LOGGING_LEVEL", "loud"},
		{"format", "WEBFRONTEND_LOGGING_FORMAT", "xml"},
		{"apiservice url", "WEBFRONTEND_APISERVICE_URL", "apiservice"},
		{"pprof port", "WEBFRONTEND_HTTP_PPROF_PORT", "70000"},
		{"otlp protocol", "OTEL_EXPORTER_OTLP_PROTOCOL", "udp"},
		{"otlp endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "collector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.val)

			_, err := Load("")
			require.Error(t, err)
		})
	}
}
