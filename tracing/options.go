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

package tracing

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Tracer.
type Option func(*Tracer)

// WithServiceName sets the service.name resource attribute on every span.
func WithServiceName(name string) Option {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// WithServiceVersion sets the service.version resource attribute on every
// span.
func WithServiceVersion(version string) Option {
	return func(t *Tracer) {
		t.serviceVersion = version
	}
}

// WithEnvironment sets the deployment.environment resource attribute
// ("production", "staging", ...).
func WithEnvironment(env string) Option {
	return func(t *Tracer) {
		t.environment = env
	}
}

// WithOTLPGRPC selects the OTLP/gRPC exporter pushing to the given
// collector endpoint (host:port).
func WithOTLPGRPC(endpoint string) Option {
	return func(t *Tracer) {
		t.provider = OTLPGRPCProvider
		t.providerSetCount++
		t.endpoint = endpoint
	}
}

// WithOTLPHTTP selects the OTLP/HTTP exporter pushing to the given
// collector endpoint. An http:// scheme implies an insecure connection.
func WithOTLPHTTP(endpoint string) Option {
	return func(t *Tracer) {
		t.provider = OTLPHTTPProvider
		t.providerSetCount++
		t.endpoint = endpoint
	}
}

// WithStdout selects the stdout exporter.
func WithStdout() Option {
	return func(t *Tracer) {
		t.provider = StdoutProvider
		t.providerSetCount++
	}
}

// WithSampleRate sets the head sampling ratio in [0.0, 1.0]. Sampled
// decisions from upstream services are honored regardless, so a trace never
// loses its middle.
func WithSampleRate(rate float64) Option {
	return func(t *Tracer) {
		if rate < 0 || rate > 1 {
			t.validationErrors = append(t.validationErrors,
				fmt.Errorf("sample rate must be in [0.0, 1.0], got %g", rate))
			return
		}
		t.sampleRate = rate
	}
}

// WithInsecure disables transport security toward the collector. For the
// OTLP/gRPC exporter; the HTTP exporter derives it from the endpoint
// scheme.
func WithInsecure() Option {
	return func(t *Tracer) {
		t.insecure = true
	}
}

// WithExportTimeout bounds a single export batch.
func WithExportTimeout(timeout time.Duration) Option {
	return func(t *Tracer) {
		t.exportTimeout = timeout
	}
}

// WithPropagator overrides the default W3C Trace Context + Baggage
// propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(t *Tracer) {
		t.propagator = p
	}
}

// WithTracerProvider supplies a caller-managed [trace.TracerProvider].
// Provider options (WithOTLPGRPC, WithOTLPHTTP, WithStdout) are ignored,
// and Shutdown leaves the provider to its owner.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(t *Tracer) {
		t.tracerProvider = provider
		t.customTracerProvider = true
	}
}

// WithGlobalTracerProvider registers the tracer provider as the
// process-global OpenTelemetry provider. Off by default so multiple tracers
// can coexist.
func WithGlobalTracerProvider() Option {
	return func(t *Tracer) {
		t.registerGlobal = true
	}
}

// WithLogger sets the logger for the tracer's own operational messages.
// Without it the tracer is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger
	}
}
