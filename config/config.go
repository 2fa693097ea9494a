// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mode selects how validation failures are treated.
type Mode string

const (
	// ModeEnforce rejects requests or flags responses that fail validation.
	ModeEnforce Mode = "enforce"
	// ModeMonitor logs and counts validation failures but lets traffic pass.
	ModeMonitor Mode = "monitor"
)

// Environments recognised by the framework.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Config is the complete runtime configuration of an Archimedes service.
//
// Field tags drive the three loading layers: mapstructure for file
// decoding, the flat ARCHIMEDES_* names are listed in env.go, and
// validate tags reject bad values at load time.
type Config struct {
	ServiceName    string `mapstructure:"service_name" yaml:"service_name" json:"service_name" toml:"service_name" validate:"required"`
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version" json:"service_version" toml:"service_version"`
	Environment    string `mapstructure:"environment" yaml:"environment" json:"environment" toml:"environment" validate:"oneof=development production"`

	Server        Server        `mapstructure:"server" yaml:"server" json:"server" toml:"server"`
	Contract      Contract      `mapstructure:"contract" yaml:"contract" json:"contract" toml:"contract"`
	Validation    Validation    `mapstructure:"validation" yaml:"validation" json:"validation" toml:"validation"`
	Authorization Authorization `mapstructure:"authorization" yaml:"authorization" json:"authorization" toml:"authorization"`
	Metrics       Metrics       `mapstructure:"metrics" yaml:"metrics" json:"metrics" toml:"metrics"`
	Tracing       Tracing       `mapstructure:"tracing" yaml:"tracing" json:"tracing" toml:"tracing"`
	Logging       Logging       `mapstructure:"logging" yaml:"logging" json:"logging" toml:"logging"`
	Limits        Limits        `mapstructure:"limits" yaml:"limits" json:"limits" toml:"limits"`
}

// Server configures the HTTP listener and its lifecycle.
type Server struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr" json:"listen_addr" toml:"listen_addr" validate:"required"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port" toml:"port" validate:"min=0,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout" toml:"request_timeout" validate:"gt=0"`
	EnableH2C       bool          `mapstructure:"enable_h2c" yaml:"enable_h2c" json:"enable_h2c" toml:"enable_h2c"`

	// TrustIncomingRequestID adopts a well-formed X-Request-ID header from
	// the client instead of minting a fresh id.
	TrustIncomingRequestID bool `mapstructure:"trust_incoming_request_id" yaml:"trust_incoming_request_id" json:"trust_incoming_request_id" toml:"trust_incoming_request_id"`
}

// Contract locates the contract artifact. Exactly one of Path or URL is
// used; Path wins when both are set.
type Contract struct {
	Path string `mapstructure:"path" yaml:"path" json:"path" toml:"path"`
	URL  string `mapstructure:"url" yaml:"url" json:"url" toml:"url"`
}

// Validation configures request and response payload validation.
type Validation struct {
	EnableRequest  bool `mapstructure:"enable_request" yaml:"enable_request" json:"enable_request" toml:"enable_request"`
	RequestMode    Mode `mapstructure:"request_mode" yaml:"request_mode" json:"request_mode" toml:"request_mode" validate:"oneof=enforce monitor"`
	EnableResponse bool `mapstructure:"enable_response" yaml:"enable_response" json:"enable_response" toml:"enable_response"`
	ResponseMode   Mode `mapstructure:"response_mode" yaml:"response_mode" json:"response_mode" toml:"response_mode" validate:"oneof=enforce monitor"`
}

// Authorization configures the policy engine and its decision cache.
type Authorization struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled" toml:"enabled"`
	BundlePath string `mapstructure:"bundle_path" yaml:"bundle_path" json:"bundle_path" toml:"bundle_path"`
	Query      string `mapstructure:"query" yaml:"query" json:"query" toml:"query" validate:"required"`
	Watch      bool   `mapstructure:"watch" yaml:"watch" json:"watch" toml:"watch"`
	Cache      Cache  `mapstructure:"cache" yaml:"cache" json:"cache" toml:"cache"`
}

// Cache configures the authorization decision cache. Capacity 0 disables
// caching.
type Cache struct {
	Capacity    int           `mapstructure:"capacity" yaml:"capacity" json:"capacity" toml:"capacity" validate:"min=0"`
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl" toml:"ttl" validate:"min=0"`
	CacheDenies bool          `mapstructure:"cache_denies" yaml:"cache_denies" json:"cache_denies" toml:"cache_denies"`
}

// Metrics configures the metrics sidecar listener. Port 0 disables it.
type Metrics struct {
	Port int `mapstructure:"port" yaml:"port" json:"port" toml:"port" validate:"min=0,max=65535"`
}

// Tracing configures distributed tracing.
type Tracing struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled" toml:"enabled"`
	Provider   string  `mapstructure:"provider" yaml:"provider" json:"provider" toml:"provider" validate:"oneof=noop stdout otlp"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate" toml:"sample_rate" validate:"gte=0,lte=1"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure" json:"insecure" toml:"insecure"`
}

// Logging configures structured logging.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" toml:"format" validate:"oneof=json text console"`
}

// Limits configures request admission limits. Zero values for the
// connection caps mean unlimited.
type Limits struct {
	MaxBodyBytes      int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes" toml:"max_body_bytes" validate:"gt=0"`
	MaxConns          int   `mapstructure:"max_conns" yaml:"max_conns" json:"max_conns" toml:"max_conns" validate:"min=0"`
	MaxConnsPerClient int   `mapstructure:"max_conns_per_client" yaml:"max_conns_per_client" json:"max_conns_per_client" toml:"max_conns_per_client" validate:"min=0"`
}

// Default returns the built-in configuration. Every loading layer starts
// from these values.
func Default() *Config {
	return &Config{
		ServiceName:    "archimedes-service",
		ServiceVersion: "dev",
		Environment:    EnvironmentDevelopment,
		Server: Server{
			ListenAddr:             "0.0.0.0",
			Port:                   8080,
			ShutdownTimeout:        30 * time.Second,
			RequestTimeout:         30 * time.Second,
			TrustIncomingRequestID: true,
		},
		Validation: Validation{
			EnableRequest:  true,
			RequestMode:    ModeEnforce,
			EnableResponse: false,
			ResponseMode:   ModeMonitor,
		},
		Authorization: Authorization{
			Enabled: true,
			Query:   "data.archimedes.authz",
			Cache: Cache{
				Capacity:    1024,
				TTL:         60 * time.Second,
				CacheDenies: false,
			},
		},
		Metrics: Metrics{
			Port: 9090,
		},
		Tracing: Tracing{
			Enabled:    false,
			Provider:   "otlp",
			SampleRate: 1.0,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Limits: Limits{
			MaxBodyBytes: 1 << 20,
		},
	}
}

// structValidator is shared across Validate calls; validator instances
// cache struct metadata.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. All violations are reported
// together, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				errs = append(errs, fmt.Errorf("%s: fails %q constraint (value %v)", fieldPath(ve), ve.Tag(), ve.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.Metrics.Port != 0 && c.Metrics.Port == c.Server.Port {
		errs = append(errs, fmt.Errorf("metrics.port: must differ from server.port (%d)", c.Server.Port))
	}
	if c.Tracing.Enabled && c.Tracing.Provider == "otlp" && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint: required when the otlp provider is enabled"))
	}
	if c.Authorization.Cache.Capacity > 0 && c.Authorization.Cache.TTL == 0 {
		errs = append(errs, errors.New("authorization.cache.ttl: must be positive when the cache has capacity"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	return nil
}

// fieldPath renders a validator namespace like "Config.Server.Port" as
// "server.port".
func fieldPath(ve validator.FieldError) string {
	ns := ve.Namespace()
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		ns = ns[idx+1:]
	}

	return strings.ToLower(ns)
}

// Addr returns the server listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.Port)
}

// MetricsAddr returns the metrics listen address, or "" when metrics are
// disabled.
func (c *Config) MetricsAddr() string {
	if c.Metrics.Port == 0 {
		return ""
	}

	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Metrics.Port)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}
