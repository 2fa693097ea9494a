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
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider selects the span exporter.
type Provider string

const (
	// NoopProvider records nothing and exports nothing (default).
	NoopProvider Provider = "noop"
	// StdoutProvider pretty-prints finished spans to stdout for development.
	StdoutProvider Provider = "stdout"
	// OTLPGRPCProvider pushes spans to an OTLP/gRPC collector.
	OTLPGRPCProvider Provider = "otlp-grpc"
	// OTLPHTTPProvider pushes spans to an OTLP/HTTP collector.
	OTLPHTTPProvider Provider = "otlp-http"
)

// Tracer owns the tracer provider and exporter lifecycle. All methods are
// safe for concurrent use.
//
// The tracer provider is instance-scoped unless [WithGlobalTracerProvider]
// is given, so multiple tracers can coexist in one process.
type Tracer struct {
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	logger         *slog.Logger

	serviceName    string
	serviceVersion string
	environment    string
	endpoint       string

	sampleRate    float64
	exportTimeout time.Duration

	validationErrors []error

	provider             Provider
	providerSetCount     int
	shuttingDown         atomic.Bool
	insecure             bool
	customTracerProvider bool
	registerGlobal       bool
}

// New builds a Tracer. The exporter and its connection are initialized
// immediately so a misconfigured collector endpoint fails fast.
func New(opts ...Option) (*Tracer, error) {
	t := newDefaultTracer()

	for _, opt := range opts {
		opt(t)
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing configuration: %w", err)
	}

	if err := t.initializeProvider(); err != nil {
		return nil, fmt.Errorf("initialize trace provider: %w", err)
	}

	return t, nil
}

// MustNew is New, panicking on error.
func MustNew(opts ...Option) *Tracer {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("tracing: %v", err))
	}

	return t
}

func newDefaultTracer() *Tracer {
	return &Tracer{
		serviceName:    "archimedes-service",
		serviceVersion: "0.0.0",
		provider:       NoopProvider,
		sampleRate:     1.0,
		exportTimeout:  10 * time.Second,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

func (t *Tracer) validate() error {
	if len(t.validationErrors) > 0 {
		return fmt.Errorf("configuration errors: %v", t.validationErrors)
	}

	if t.providerSetCount > 1 {
		return fmt.Errorf("conflicting provider options: only one of WithOTLPGRPC, WithOTLPHTTP, or WithStdout can be used")
	}

	if t.serviceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if t.serviceVersion == "" {
		return fmt.Errorf("service version cannot be empty")
	}
	if t.sampleRate < 0 || t.sampleRate > 1 {
		return fmt.Errorf("sample rate must be in [0.0, 1.0], got %g", t.sampleRate)
	}

	switch t.provider {
	case OTLPGRPCProvider, OTLPHTTPProvider:
		if t.endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the %s provider", t.provider)
		}
	case NoopProvider, StdoutProvider:
	default:
		return fmt.Errorf("unsupported tracing provider: %s", t.provider)
	}

	return nil
}

// Tracer returns the tracer the pipeline uses for request spans. For the
// noop provider spans are created but never recorded.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// TracerProvider returns the underlying provider for code that starts its
// own tracers.
func (t *Tracer) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// Propagator returns the context propagator, W3C Trace Context plus Baggage
// unless overridden with [WithPropagator].
func (t *Tracer) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Provider returns the configured exporter.
func (t *Tracer) Provider() Provider {
	return t.provider
}

// IsEnabled reports whether spans are being recorded and exported.
func (t *Tracer) IsEnabled() bool {
	return t.provider != NoopProvider || t.customTracerProvider
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// ServiceVersion returns the configured service version.
func (t *Tracer) ServiceVersion() string {
	return t.serviceVersion
}

// SampleRate returns the configured head sampling ratio.
func (t *Tracer) SampleRate() float64 {
	return t.sampleRate
}

// Endpoint returns the collector endpoint for the OTLP providers.
func (t *Tracer) Endpoint() string {
	return t.endpoint
}

// ForceFlush exports buffered spans without shutting down. A no-op for the
// noop provider.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.shuttingDown.Load() {
		return nil
	}

	if tp, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := tp.ForceFlush(ctx); err != nil {
			return fmt.Errorf("trace force flush: %w", err)
		}
	}

	return nil
}

// Shutdown flushes buffered spans and closes the exporter. Idempotent;
// user-supplied tracer providers are left to their owner.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	if t.customTracerProvider {
		t.logDebug("skipping shutdown of user-managed tracer provider")
		return nil
	}

	tp, ok := t.tracerProvider.(*sdktrace.TracerProvider)
	if !ok {
		return nil
	}

	// Batched spans are lost unless flushed before the exporter closes.
	if err := tp.ForceFlush(ctx); err != nil {
		t.logWarn("trace flush failed", "error", err)
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	return nil
}

func (t *Tracer) logWarn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}

func (t *Tracer) logDebug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}

func (t *Tracer) logInfo(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Info(msg, args...)
	}
}

// noopTracer is the zero-cost tracer handed out when no exporter is
// configured.
func noopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(tracerScope)
}
