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
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/cardinalhq/webfrontend/internal/logging"
	"github.com/cardinalhq/webfrontend/internal/otelconfig"
	"github.com/cardinalhq/webfrontend/internal/web"
)

const (
	EnvPrefix = "WEBFRONTEND"

	EnvironmentDevelopment = "Development"
	EnvironmentProduction  = "Production"
)

// keyDelimiter is not "." because logging override categories contain dots.
const keyDelimiter = "::"

// otelEnvs binds the standard OpenTelemetry variables, which carry no prefix.
var otelEnvs = map[string]string{
	"otel::endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel::service_name": "OTEL_SERVICE_NAME",
	"otel::protocol":     "OTEL_EXPORTER_OTLP_PROTOCOL",
	"otel::headers":      "OTEL_EXPORTER_OTLP_HEADERS",
}

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Environment string            `mapstructure:"environment" validate:"required"`
	HTTP        web.Config        `mapstructure:"http"`
	APIService  APIServiceConfig  `mapstructure:"apiservice"`
	Logging     logging.Settings  `mapstructure:"logging"`
	OTel        otelconfig.Config `mapstructure:"otel"`
}

// APIServiceConfig locates the backing weather API service.
type APIServiceConfig struct {
	URL      string        `mapstructure:"url" validate:"required,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

func Default() *Config {
	return &Config{
		Environment: EnvironmentProduction,
		HTTP:        web.DefaultConfig(),
		APIService: APIServiceConfig{
			URL:      "http://apiservice",
			Timeout:  10 * time.Second,
			CacheTTL: 5 * time.Second,
		},
		Logging: logging.DefaultSettings(),
	}
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvironmentDevelopment)
}

// Load reads configuration from a file and environment variables.
// Environment variables use the prefix "WEBFRONTEND" with nested keys joined
// by an underscore, so "http.addr" becomes "WEBFRONTEND_HTTP_ADDR". The OTLP
// settings also come from the standard OTEL_* variables.
//
// When configFile is empty, ./webfrontend.{yaml,json,toml} is used if it
// exists. A file that exists but cannot be parsed is an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("webfrontend")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	for key, env := range otelEnvs {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the OTLP settings.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.OTel.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling. Maps are only
// read from the config file.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(slices.Clone(parts), tag)
		switch f.Type.Kind() {
		case reflect.Struct:
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		case reflect.Map:
			continue
		}
		_ = v.BindEnv(strings.Join(key, keyDelimiter))
	}
}
