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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"archimedes.dev/archimedes/pipeline"
)

// Default histogram buckets. Durations cover sub-millisecond handlers up to
// the ten-second tail; sizes cover 100 B to 10 MB bodies.
var (
	DefaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DefaultSizeBuckets     = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
)

// Provider selects the metric exporter.
type Provider string

const (
	// PrometheusProvider exposes a pull endpoint on a dedicated listener
	// (default).
	PrometheusProvider Provider = "prometheus"
	// OTLPProvider pushes metrics to an OTLP/HTTP collector.
	OTLPProvider Provider = "otlp"
	// StdoutProvider prints metrics to stdout for development.
	StdoutProvider Provider = "stdout"
)

// Recorder owns the instrument set and the exporter lifecycle. All methods
// are safe for concurrent use.
//
// The meter provider is instance-scoped unless [WithGlobalMeterProvider] is
// given, so multiple recorders can coexist in one process.
type Recorder struct {
	meter              metric.Meter
	meterProvider      metric.MeterProvider
	prometheusHandler  http.Handler
	prometheusRegistry *promclient.Registry
	metricsServer      *http.Server
	logger             *slog.Logger

	// Pipeline instruments.
	requests           metric.Int64Counter
	requestDuration    metric.Float64Histogram
	requestSize        metric.Int64Histogram
	responseSize       metric.Int64Histogram
	inFlight           metric.Int64UpDownCounter
	validationFailures metric.Int64Counter
	authzDecisions     metric.Int64Counter
	customFailures     metric.Int64Counter

	// Custom metrics by name.
	customMu         sync.RWMutex
	customCounters   map[string]metric.Int64Counter
	customHistograms map[string]metric.Float64Histogram
	customGauges     map[string]metric.Float64Gauge
	customCount      int

	durationBuckets []float64
	sizeBuckets     []float64

	validationErrors []error

	exportInterval time.Duration

	serviceName    string
	serviceVersion string
	otlpEndpoint   string
	metricsPort    string
	metricsPath    string

	serviceNameAttr    attribute.KeyValue
	serviceVersionAttr attribute.KeyValue

	filter *operationFilter

	serverMu sync.Mutex

	maxCustomMetrics int

	provider            Provider
	providerSetCount    int
	started             atomic.Bool
	shuttingDown        atomic.Bool
	enabled             bool
	autoStartServer     bool
	strictPort          bool
	customMeterProvider bool
	registerGlobal      bool
}

var _ pipeline.Recorder = (*Recorder)(nil)

// New builds a Recorder. The exporter is initialized immediately; for
// Prometheus the scrape listener starts on [Recorder.Start].
func New(opts ...Option) (*Recorder, error) {
	r := newDefaultRecorder()

	for _, opt := range opts {
		opt(r)
	}

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics configuration: %w", err)
	}

	r.serviceNameAttr = attribute.String("service_name", r.serviceName)
	r.serviceVersionAttr = attribute.String("service_version", r.serviceVersion)

	if err := r.initializeProvider(); err != nil {
		return nil, fmt.Errorf("initialize metrics provider: %w", err)
	}

	return r, nil
}

// MustNew is New, panicking on error.
func MustNew(opts ...Option) *Recorder {
	r, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("metrics: %v", err))
	}

	return r
}

func newDefaultRecorder() *Recorder {
	r := &Recorder{
		enabled:          true,
		serviceName:      "archimedes-service",
		serviceVersion:   "0.0.0",
		provider:         PrometheusProvider,
		exportInterval:   30 * time.Second,
		metricsPort:      ":9090",
		metricsPath:      "/metrics",
		autoStartServer:  true,
		maxCustomMetrics: 1000,
		durationBuckets:  DefaultDurationBuckets,
		sizeBuckets:      DefaultSizeBuckets,
		filter:           newOperationFilter(),
		customCounters:   make(map[string]metric.Int64Counter),
		customHistograms: make(map[string]metric.Float64Histogram),
		customGauges:     make(map[string]metric.Float64Gauge),
	}

	return r
}

func (r *Recorder) validate() error {
	if len(r.validationErrors) > 0 {
		return fmt.Errorf("configuration errors: %v", r.validationErrors)
	}

	if r.providerSetCount > 1 {
		return fmt.Errorf("conflicting provider options: only one of WithPrometheus, WithOTLP, or WithStdout can be used")
	}

	if r.serviceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if r.serviceVersion == "" {
		return fmt.Errorf("service version cannot be empty")
	}
	if r.maxCustomMetrics < 1 {
		return fmt.Errorf("max custom metrics must be at least 1, got %d", r.maxCustomMetrics)
	}
	if r.exportInterval < time.Second {
		r.logWarn("very low export interval may cause high CPU usage", "interval", r.exportInterval)
	}

	switch r.provider {
	case PrometheusProvider:
		if r.metricsPort == "" {
			return fmt.Errorf("metrics port cannot be empty for the Prometheus provider")
		}
		if r.metricsPath == "" {
			return fmt.Errorf("metrics path cannot be empty for the Prometheus provider")
		}
	case OTLPProvider:
		if r.otlpEndpoint == "" {
			r.logWarn("OTLP endpoint not set, using default", "default", "http://localhost:4318")
			r.otlpEndpoint = "http://localhost:4318"
		}
	case StdoutProvider:
	default:
		return fmt.Errorf("unsupported metrics provider: %s", r.provider)
	}

	return nil
}

// Handler returns the Prometheus scrape handler. Available only with
// [PrometheusProvider]; the app mounts it under the sidecar paths when the
// dedicated listener is disabled.
func (r *Recorder) Handler() (http.Handler, error) {
	if !r.enabled {
		return nil, fmt.Errorf("metrics not enabled")
	}

	if r.provider != PrometheusProvider || r.prometheusHandler == nil {
		return nil, fmt.Errorf("scrape handler requires the Prometheus provider, current provider: %s", r.provider)
	}

	return r.prometheusHandler, nil
}

// Provider returns the configured exporter.
func (r *Recorder) Provider() Provider {
	if !r.enabled {
		return ""
	}

	return r.provider
}

// ServerAddress returns the scrape listener address, or "" when no dedicated
// listener is configured.
func (r *Recorder) ServerAddress() string {
	if !r.enabled || r.provider != PrometheusProvider || !r.autoStartServer {
		return ""
	}

	return r.metricsPort
}

// Path returns the scrape endpoint path for the Prometheus provider.
func (r *Recorder) Path() string {
	if !r.enabled || r.provider != PrometheusProvider {
		return ""
	}

	return r.metricsPath
}

// Start brings up the dedicated scrape listener when the Prometheus
// provider is configured with auto-start. Idempotent.
func (r *Recorder) Start(ctx context.Context) error {
	if !r.enabled {
		return nil
	}

	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	if r.autoStartServer && r.provider == PrometheusProvider {
		r.startMetricsServer(ctx)
	}

	return nil
}

// Shutdown stops the scrape listener and flushes and closes the meter
// provider. Idempotent; user-supplied meter providers are left to their
// owner.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if !r.enabled {
		return nil
	}

	if !r.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if err := r.stopMetricsServer(ctx); err != nil {
		errs = append(errs, err)
	}

	if r.customMeterProvider {
		r.logDebug("skipping shutdown of user-managed meter provider")
	} else if err := r.shutdownSDKMeterProvider(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("metrics shutdown: %v", errs)
	}

	return nil
}

func (r *Recorder) shutdownSDKMeterProvider(ctx context.Context) error {
	mp, ok := r.meterProvider.(*sdkmetric.MeterProvider)
	if !ok {
		return nil
	}

	// Push-based exporters hold buffered data until flushed.
	if err := mp.ForceFlush(ctx); err != nil {
		r.logWarn("metrics flush failed", "error", err)
	}

	if err := mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

// ForceFlush exports pending metric data without shutting down. A no-op for
// the pull-based Prometheus provider.
func (r *Recorder) ForceFlush(ctx context.Context) error {
	if !r.enabled || r.shuttingDown.Load() {
		return nil
	}

	if mp, ok := r.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := mp.ForceFlush(ctx); err != nil {
			return fmt.Errorf("metrics force flush: %w", err)
		}
	}

	return nil
}

// IsEnabled reports whether measurements are being recorded.
func (r *Recorder) IsEnabled() bool {
	return r.enabled
}

// ServiceName returns the configured service name.
func (r *Recorder) ServiceName() string {
	return r.serviceName
}

// ServiceVersion returns the configured service version.
func (r *Recorder) ServiceVersion() string {
	return r.serviceVersion
}

func (r *Recorder) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}

func (r *Recorder) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Recorder) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Recorder) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
