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
	"os"
	"time"

	"github.com/spf13/cast"
)

// Environment variable names recognised by the environment layer. The
// names are flat; container platforms compose them more easily than
// nested paths.
const (
	EnvServiceName    = "ARCHIMEDES_SERVICE_NAME"
	EnvServiceVersion = "ARCHIMEDES_SERVICE_VERSION"
	EnvEnvironment    = "ARCHIMEDES_ENVIRONMENT"

	EnvListenAddr      = "ARCHIMEDES_LISTEN_ADDR"
	EnvPort            = "ARCHIMEDES_PORT"
	EnvShutdownTimeout = "ARCHIMEDES_SHUTDOWN_TIMEOUT"
	EnvRequestTimeout  = "ARCHIMEDES_REQUEST_TIMEOUT"
	EnvEnableH2C       = "ARCHIMEDES_ENABLE_H2C"
	EnvTrustIncomingID = "ARCHIMEDES_TRUST_INCOMING_REQUEST_ID"

	EnvContractPath = "ARCHIMEDES_CONTRACT_PATH"
	EnvContractURL  = "ARCHIMEDES_CONTRACT_URL"

	EnvEnableValidation         = "ARCHIMEDES_ENABLE_VALIDATION"
	EnvValidationMode           = "ARCHIMEDES_VALIDATION_MODE"
	EnvEnableResponseValidation = "ARCHIMEDES_ENABLE_RESPONSE_VALIDATION"
	EnvResponseValidationMode   = "ARCHIMEDES_RESPONSE_VALIDATION_MODE"

	EnvEnableAuthorization = "ARCHIMEDES_ENABLE_AUTHORIZATION"
	EnvPolicyBundlePath    = "ARCHIMEDES_POLICY_BUNDLE_PATH"
	EnvPolicyQuery         = "ARCHIMEDES_POLICY_QUERY"
	EnvPolicyWatch         = "ARCHIMEDES_POLICY_WATCH"
	EnvCacheCapacity       = "ARCHIMEDES_CACHE_CAPACITY"
	EnvCacheTTL            = "ARCHIMEDES_CACHE_TTL"
	EnvCacheDenies         = "ARCHIMEDES_CACHE_DENIES"

	EnvMetricsPort       = "ARCHIMEDES_METRICS_PORT"
	EnvEnableTracing     = "ARCHIMEDES_ENABLE_TRACING"
	EnvTracingProvider   = "ARCHIMEDES_TRACING_PROVIDER"
	EnvTracingEndpoint   = "ARCHIMEDES_TRACING_ENDPOINT"
	EnvTracingSampleRate = "ARCHIMEDES_TRACING_SAMPLE_RATE"

	EnvLogLevel  = "ARCHIMEDES_LOG_LEVEL"
	EnvLogFormat = "ARCHIMEDES_LOG_FORMAT"

	EnvMaxBodyBytes      = "ARCHIMEDES_MAX_BODY_BYTES"
	EnvMaxConns          = "ARCHIMEDES_MAX_CONNS"
	EnvMaxConnsPerClient = "ARCHIMEDES_MAX_CONNS_PER_CLIENT"
)

// applyEnv overlays environment variables onto cfg. All conversion
// errors are collected and reported together, each naming its variable.
func applyEnv(cfg *Config) error {
	var errs []error

	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	setMode := func(name string, dst *Mode) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = Mode(v)
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(name); ok {
			b, err := cast.ToBoolE(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))

				return
			}
			*dst = b
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := cast.ToIntE(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))

				return
			}
			*dst = n
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := cast.ToInt64E(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))

				return
			}
			*dst = n
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(name); ok {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))

				return
			}
			*dst = f
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))

				return
			}
			*dst = d
		}
	}

	setString(EnvServiceName, &cfg.ServiceName)
	setString(EnvServiceVersion, &cfg.ServiceVersion)
	setString(EnvEnvironment, &cfg.Environment)

	setString(EnvListenAddr, &cfg.Server.ListenAddr)
	setInt(EnvPort, &cfg.Server.Port)
	setDuration(EnvShutdownTimeout, &cfg.Server.ShutdownTimeout)
	setDuration(EnvRequestTimeout, &cfg.Server.RequestTimeout)
	setBool(EnvEnableH2C, &cfg.Server.EnableH2C)
	setBool(EnvTrustIncomingID, &cfg.Server.TrustIncomingRequestID)

	setString(EnvContractPath, &cfg.Contract.Path)
	setString(EnvContractURL, &cfg.Contract.URL)

	setBool(EnvEnableValidation, &cfg.Validation.EnableRequest)
	setMode(EnvValidationMode, &cfg.Validation.RequestMode)
	setBool(EnvEnableResponseValidation, &cfg.Validation.EnableResponse)
	setMode(EnvResponseValidationMode, &cfg.Validation.ResponseMode)

	setBool(EnvEnableAuthorization, &cfg.Authorization.Enabled)
	setString(EnvPolicyBundlePath, &cfg.Authorization.BundlePath)
	setString(EnvPolicyQuery, &cfg.Authorization.Query)
	setBool(EnvPolicyWatch, &cfg.Authorization.Watch)
	setInt(EnvCacheCapacity, &cfg.Authorization.Cache.Capacity)
	setDuration(EnvCacheTTL, &cfg.Authorization.Cache.TTL)
	setBool(EnvCacheDenies, &cfg.Authorization.Cache.CacheDenies)

	setInt(EnvMetricsPort, &cfg.Metrics.Port)
	setBool(EnvEnableTracing, &cfg.Tracing.Enabled)
	setString(EnvTracingProvider, &cfg.Tracing.Provider)
	setString(EnvTracingEndpoint, &cfg.Tracing.Endpoint)
	setFloat(EnvTracingSampleRate, &cfg.Tracing.SampleRate)

	setString(EnvLogLevel, &cfg.Logging.Level)
	setString(EnvLogFormat, &cfg.Logging.Format)

	setInt64(EnvMaxBodyBytes, &cfg.Limits.MaxBodyBytes)
	setInt(EnvMaxConns, &cfg.Limits.MaxConns)
	setInt(EnvMaxConnsPerClient, &cfg.Limits.MaxConnsPerClient)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}

	return nil
}

// parseDuration accepts Go duration syntax ("30s", "1m30s") and bare
// integers, which are read as seconds.
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}

	secs, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}

	return time.Duration(secs) * time.Second, nil
}
