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

package metrics

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithMeterProvider supplies a caller-managed [metric.MeterProvider].
// Provider options (WithPrometheus, WithOTLP, WithStdout) are ignored, and
// Shutdown leaves the provider to its owner.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(r *Recorder) {
		r.meterProvider = provider
		r.customMeterProvider = true
	}
}

// WithGlobalMeterProvider registers the recorder's meter provider as the
// process-global OpenTelemetry provider. Off by default so multiple
// recorders can coexist.
func WithGlobalMeterProvider() Option {
	return func(r *Recorder) {
		r.registerGlobal = true
	}
}

// WithServiceName sets the service_name attribute on every measurement.
func WithServiceName(name string) Option {
	return func(r *Recorder) {
		r.serviceName = name
	}
}

// WithServiceVersion sets the service_version attribute on every
// measurement.
func WithServiceVersion(version string) Option {
	return func(r *Recorder) {
		r.serviceVersion = version
	}
}

// WithExportInterval sets the push interval for the OTLP and stdout
// providers.
func WithExportInterval(interval time.Duration) Option {
	return func(r *Recorder) {
		r.exportInterval = interval
	}
}

// WithDurationBuckets overrides the request duration histogram boundaries,
// in seconds.
func WithDurationBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		r.durationBuckets = buckets
	}
}

// WithSizeBuckets overrides the body size histogram boundaries, in bytes.
func WithSizeBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		r.sizeBuckets = buckets
	}
}

// WithServerDisabled turns off the dedicated scrape listener. Use
// [Recorder.Handler] to mount the endpoint elsewhere, for example on the
// app's sidecar paths.
func WithServerDisabled() Option {
	return func(r *Recorder) {
		r.autoStartServer = false
	}
}

// WithStrictPort makes the scrape listener fail instead of walking to the
// next free port when the configured one is taken.
func WithStrictPort() Option {
	return func(r *Recorder) {
		r.strictPort = true
	}
}

// WithMaxCustomMetrics caps the number of custom instruments.
func WithMaxCustomMetrics(maxLimit int) Option {
	return func(r *Recorder) {
		r.maxCustomMetrics = maxLimit
	}
}

// WithLogger sets the logger for the recorder's own operational messages.
// Without it the recorder is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithExcludeOperations drops request measurements for the named operation
// ids. Useful for high-volume probes registered as regular operations.
func WithExcludeOperations(ids ...string) Option {
	return func(r *Recorder) {
		r.filter.addIDs(ids...)
	}
}

// WithExcludePrefixes drops request measurements for operations whose id
// starts with any of the given prefixes, such as "internal.".
func WithExcludePrefixes(prefixes ...string) Option {
	return func(r *Recorder) {
		r.filter.addPrefixes(prefixes...)
	}
}

// WithExcludePatterns drops request measurements for operations matching the
// given regular expressions. Invalid patterns surface as a New error.
func WithExcludePatterns(patterns ...string) Option {
	return func(r *Recorder) {
		for _, pattern := range patterns {
			compiled, err := regexp.Compile(pattern)
			if err != nil {
				r.validationErrors = append(r.validationErrors,
					fmt.Errorf("invalid operation exclusion pattern %q: %w", pattern, err))
				continue
			}
			r.filter.addPatterns(compiled)
		}
	}
}

// WithPrometheus selects the Prometheus provider with the scrape listener
// port and endpoint path.
func WithPrometheus(port, path string) Option {
	return func(r *Recorder) {
		r.provider = PrometheusProvider
		r.providerSetCount++
		if port != "" && !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		r.metricsPort = port
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		r.metricsPath = path
	}
}

// WithOTLP selects the OTLP/HTTP provider pushing to the given collector
// endpoint.
func WithOTLP(endpoint string) Option {
	return func(r *Recorder) {
		r.provider = OTLPProvider
		r.providerSetCount++
		r.otlpEndpoint = endpoint
	}
}

// WithStdout selects the stdout provider.
func WithStdout() Option {
	return func(r *Recorder) {
		r.provider = StdoutProvider
		r.providerSetCount++
	}
}
