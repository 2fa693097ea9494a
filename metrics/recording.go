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
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names. The archimedes_ prefix is reserved; custom metrics may
// not use it.
const (
	instrRequests           = "archimedes_requests_total"
	instrRequestDuration    = "archimedes_request_duration_seconds"
	instrRequestSize        = "archimedes_request_size_bytes"
	instrResponseSize       = "archimedes_response_size_bytes"
	instrInFlight           = "archimedes_in_flight_requests"
	instrValidationFailures = "archimedes_validation_failures_total"
	instrAuthzDecisions     = "archimedes_authz_decisions_total"
	instrCustomFailures     = "archimedes_custom_metric_failures_total"
)

// metricNameRegex follows OpenTelemetry instrument naming: leading letter,
// then alphanumerics, underscores, dots, and hyphens.
var metricNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

const maxMetricNameLength = 255

// Prefixes custom metrics may not use: Prometheus internals and this
// package's own instruments.
var reservedPrefixes = []string{"__", "archimedes_"}

// limitError is returned when the custom metric cap is reached.
type limitError struct {
	metricName string
	limit      int
	current    int
}

func (e *limitError) Error() string {
	return fmt.Sprintf("metrics limit reached: cannot create %q (current: %d, limit: %d)",
		e.metricName, e.current, e.limit)
}

func validateMetricName(name string) error {
	if name == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if len(name) > maxMetricNameLength {
		return fmt.Errorf("metric name too long: %d characters (max %d)", len(name), maxMetricNameLength)
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return fmt.Errorf("metric name %q uses reserved prefix %q", name, prefix)
		}
	}
	if !metricNameRegex.MatchString(name) {
		return fmt.Errorf("invalid metric name %q: must start with a letter and contain only alphanumerics, underscore, dot, or hyphen", name)
	}

	return nil
}

func (r *Recorder) initializeInstruments() error {
	var err error

	r.requests, err = r.meter.Int64Counter(
		instrRequests,
		metric.WithDescription("Total requests by operation and status"),
	)
	if err != nil {
		return fmt.Errorf("create request counter: %w", err)
	}

	r.requestDuration, err = r.meter.Float64Histogram(
		instrRequestDuration,
		metric.WithDescription("Request duration by operation in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(r.durationBuckets...),
	)
	if err != nil {
		return fmt.Errorf("create duration histogram: %w", err)
	}

	r.requestSize, err = r.meter.Int64Histogram(
		instrRequestSize,
		metric.WithDescription("Request body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(r.sizeBuckets...),
	)
	if err != nil {
		return fmt.Errorf("create request size histogram: %w", err)
	}

	r.responseSize, err = r.meter.Int64Histogram(
		instrResponseSize,
		metric.WithDescription("Response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(r.sizeBuckets...),
	)
	if err != nil {
		return fmt.Errorf("create response size histogram: %w", err)
	}

	r.inFlight, err = r.meter.Int64UpDownCounter(
		instrInFlight,
		metric.WithDescription("Requests currently being served"),
	)
	if err != nil {
		return fmt.Errorf("create in-flight gauge: %w", err)
	}

	r.validationFailures, err = r.meter.Int64Counter(
		instrValidationFailures,
		metric.WithDescription("Schema validation failures by direction and reason"),
	)
	if err != nil {
		return fmt.Errorf("create validation failure counter: %w", err)
	}

	r.authzDecisions, err = r.meter.Int64Counter(
		instrAuthzDecisions,
		metric.WithDescription("Authorization decisions by result"),
	)
	if err != nil {
		return fmt.Errorf("create authorization decision counter: %w", err)
	}

	r.customFailures, err = r.meter.Int64Counter(
		instrCustomFailures,
		metric.WithDescription("Custom metric creation failures"),
	)
	if err != nil {
		return fmt.Errorf("create custom failure counter: %w", err)
	}

	return nil
}

// RecordRequest observes one completed request: count, duration, and body
// sizes. Excluded operations are dropped.
func (r *Recorder) RecordRequest(ctx context.Context, operation string, status int, duration time.Duration, requestBytes, responseBytes int64) {
	if !r.enabled || r.filter.shouldExclude(operation) {
		return
	}

	countAttrs := []attribute.KeyValue{
		r.serviceNameAttr,
		r.serviceVersionAttr,
		attribute.String("operation", operation),
		attribute.Int("status", status),
		attribute.String("status_class", statusClass(status)),
	}
	r.requests.Add(ctx, 1, metric.WithAttributes(countAttrs...))

	durationAttrs := []attribute.KeyValue{
		r.serviceNameAttr,
		r.serviceVersionAttr,
		attribute.String("operation", operation),
	}
	r.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(durationAttrs...))

	sizeAttrs := []attribute.KeyValue{r.serviceNameAttr, r.serviceVersionAttr}
	if requestBytes > 0 {
		r.requestSize.Record(ctx, requestBytes, metric.WithAttributes(sizeAttrs...))
	}
	if responseBytes > 0 {
		r.responseSize.Record(ctx, responseBytes, metric.WithAttributes(sizeAttrs...))
	}
}

// AddInFlight adjusts the concurrent-request gauge.
func (r *Recorder) AddInFlight(ctx context.Context, delta int64) {
	if !r.enabled {
		return
	}

	r.inFlight.Add(ctx, delta, metric.WithAttributes(r.serviceNameAttr, r.serviceVersionAttr))
}

// RecordValidationFailure counts a schema violation by direction ("request"
// or "response") and reason.
func (r *Recorder) RecordValidationFailure(ctx context.Context, direction, reason string) {
	if !r.enabled {
		return
	}

	r.validationFailures.Add(ctx, 1, metric.WithAttributes(
		r.serviceNameAttr,
		r.serviceVersionAttr,
		attribute.String("direction", direction),
		attribute.String("reason", reason),
	))
}

// RecordAuthzDecision counts a policy outcome ("allow" or "deny") and
// whether the decision cache served it.
func (r *Recorder) RecordAuthzDecision(ctx context.Context, result string, cached bool) {
	if !r.enabled {
		return
	}

	r.authzDecisions.Add(ctx, 1, metric.WithAttributes(
		r.serviceNameAttr,
		r.serviceVersionAttr,
		attribute.String("result", result),
		attribute.Bool("cached", cached),
	))
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "unknown"
	}
}

// RecordHistogram records a custom histogram value, creating the instrument
// on first use.
func (r *Recorder) RecordHistogram(ctx context.Context, name string, value float64, attributes ...attribute.KeyValue) error {
	if !r.enabled {
		return nil
	}

	histogram, err := r.getOrCreateHistogram(name)
	if err != nil {
		r.customFailures.Add(ctx, 1)
		return fmt.Errorf("record histogram %q: %w", name, err)
	}

	histogram.Record(ctx, value, metric.WithAttributes(attributes...))

	return nil
}

// IncrementCounter increments a custom counter by 1.
func (r *Recorder) IncrementCounter(ctx context.Context, name string, attributes ...attribute.KeyValue) error {
	return r.AddCounter(ctx, name, 1, attributes...)
}

// AddCounter adds a value to a custom counter, creating the instrument on
// first use.
func (r *Recorder) AddCounter(ctx context.Context, name string, value int64, attributes ...attribute.KeyValue) error {
	if !r.enabled {
		return nil
	}

	counter, err := r.getOrCreateCounter(name)
	if err != nil {
		r.customFailures.Add(ctx, 1)
		return fmt.Errorf("add counter %q: %w", name, err)
	}

	counter.Add(ctx, value, metric.WithAttributes(attributes...))

	return nil
}

// SetGauge records a custom gauge value, creating the instrument on first
// use.
func (r *Recorder) SetGauge(ctx context.Context, name string, value float64, attributes ...attribute.KeyValue) error {
	if !r.enabled {
		return nil
	}

	gauge, err := r.getOrCreateGauge(name)
	if err != nil {
		r.customFailures.Add(ctx, 1)
		return fmt.Errorf("set gauge %q: %w", name, err)
	}

	gauge.Record(ctx, value, metric.WithAttributes(attributes...))

	return nil
}

func (r *Recorder) getOrCreateCounter(name string) (metric.Int64Counter, error) {
	r.customMu.RLock()
	if counter, exists := r.customCounters[name]; exists {
		r.customMu.RUnlock()
		return counter, nil
	}
	r.customMu.RUnlock()

	if err := validateMetricName(name); err != nil {
		return nil, err
	}

	r.customMu.Lock()
	defer r.customMu.Unlock()

	if counter, exists := r.customCounters[name]; exists {
		return counter, nil
	}

	if r.customCount >= r.maxCustomMetrics {
		return nil, &limitError{metricName: name, limit: r.maxCustomMetrics, current: r.customCount}
	}

	counter, err := r.meter.Int64Counter(name, metric.WithDescription("Custom counter metric"))
	if err != nil {
		return nil, err
	}

	r.customCounters[name] = counter
	r.customCount++

	return counter, nil
}

func (r *Recorder) getOrCreateHistogram(name string) (metric.Float64Histogram, error) {
	r.customMu.RLock()
	if histogram, exists := r.customHistograms[name]; exists {
		r.customMu.RUnlock()
		return histogram, nil
	}
	r.customMu.RUnlock()

	if err := validateMetricName(name); err != nil {
		return nil, err
	}

	r.customMu.Lock()
	defer r.customMu.Unlock()

	if histogram, exists := r.customHistograms[name]; exists {
		return histogram, nil
	}

	if r.customCount >= r.maxCustomMetrics {
		return nil, &limitError{metricName: name, limit: r.maxCustomMetrics, current: r.customCount}
	}

	histogram, err := r.meter.Float64Histogram(name, metric.WithDescription("Custom histogram metric"))
	if err != nil {
		return nil, err
	}

	r.customHistograms[name] = histogram
	r.customCount++

	return histogram, nil
}

func (r *Recorder) getOrCreateGauge(name string) (metric.Float64Gauge, error) {
	r.customMu.RLock()
	if gauge, exists := r.customGauges[name]; exists {
		r.customMu.RUnlock()
		return gauge, nil
	}
	r.customMu.RUnlock()

	if err := validateMetricName(name); err != nil {
		return nil, err
	}

	r.customMu.Lock()
	defer r.customMu.Unlock()

	if gauge, exists := r.customGauges[name]; exists {
		return gauge, nil
	}

	if r.customCount >= r.maxCustomMetrics {
		return nil, &limitError{metricName: name, limit: r.maxCustomMetrics, current: r.customCount}
	}

	gauge, err := r.meter.Float64Gauge(name, metric.WithDescription("Custom gauge metric"))
	if err != nil {
		return nil, err
	}

	r.customGauges[name] = gauge
	r.customCount++

	return gauge, nil
}

// CustomMetricCount returns the number of custom instruments created.
func (r *Recorder) CustomMetricCount() int {
	r.customMu.RLock()
	defer r.customMu.RUnlock()

	return r.customCount
}
