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
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterScope = "archimedes.dev/archimedes/metrics"

func (r *Recorder) initializeProvider() error {
	if r.customMeterProvider {
		if r.meterProvider == nil {
			return fmt.Errorf("custom meter provider is nil")
		}
		r.meter = r.meterProvider.Meter(meterScope)

		return r.initializeInstruments()
	}

	switch r.provider {
	case PrometheusProvider:
		return r.initPrometheusProvider()
	case OTLPProvider:
		return r.initOTLPProvider()
	case StdoutProvider:
		return r.initStdoutProvider()
	default:
		return fmt.Errorf("unsupported metrics provider: %s", r.provider)
	}
}

func (r *Recorder) initPrometheusProvider() error {
	// Instance-scoped registry; the process-global one may already carry
	// collectors from other libraries.
	r.prometheusRegistry = promclient.NewRegistry()

	exporter, err := prometheus.New(
		prometheus.WithRegisterer(r.prometheusRegistry),
	)
	if err != nil {
		return fmt.Errorf("create Prometheus exporter: %w", err)
	}

	r.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	r.prometheusHandler = promhttp.HandlerFor(
		r.prometheusRegistry,
		promhttp.HandlerOpts{},
	)

	r.registerGlobalProvider()
	r.meter = r.meterProvider.Meter(meterScope)

	return r.initializeInstruments()
}

func (r *Recorder) initOTLPProvider() error {
	opts := []otlpmetrichttp.Option{}

	if r.otlpEndpoint != "" {
		endpoint := r.otlpEndpoint
		insecure := false

		if strings.HasPrefix(endpoint, "http://") {
			endpoint = strings.TrimPrefix(endpoint, "http://")
			insecure = true
		} else if strings.HasPrefix(endpoint, "https://") {
			endpoint = strings.TrimPrefix(endpoint, "https://")
		}
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}

		opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		if insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("create OTLP exporter: %w", err)
	}

	r.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(r.exportInterval),
		)),
	)

	r.registerGlobalProvider()
	r.meter = r.meterProvider.Meter(meterScope)

	return r.initializeInstruments()
}

func (r *Recorder) initStdoutProvider() error {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("create stdout exporter: %w", err)
	}

	r.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(r.exportInterval),
		)),
	)

	r.registerGlobalProvider()
	r.meter = r.meterProvider.Meter(meterScope)

	return r.initializeInstruments()
}

func (r *Recorder) registerGlobalProvider() {
	if r.registerGlobal {
		r.logDebug("registering global meter provider", "provider", string(r.provider))
		otel.SetMeterProvider(r.meterProvider)
	}
}

// startMetricsServer brings up the dedicated scrape listener. Unless strict
// port mode is on, an occupied port falls through to the next free one so a
// second instance on the same host still exposes metrics.
func (r *Recorder) startMetricsServer(ctx context.Context) {
	if r.prometheusHandler == nil || r.shuttingDown.Load() {
		return
	}

	requestedPort := r.metricsPort

	var listener net.Listener
	var err error
	if r.strictPort {
		listener, err = net.Listen("tcp", r.metricsPort)
		if err != nil {
			r.logError("metrics listener failed on required port",
				"error", err, "port", r.metricsPort)
			return
		}
	} else {
		listener, err = listenAvailablePort(r.metricsPort)
		if err != nil {
			r.logError("no available port for metrics listener",
				"error", err, "preferred_port", r.metricsPort)
			return
		}
	}

	actualPort := ":" + strconv.Itoa(listener.Addr().(*net.TCPAddr).Port)
	r.metricsPort = actualPort

	mux := http.NewServeMux()
	mux.Handle(r.metricsPath, r.prometheusHandler)

	server := &http.Server{
		Addr:         actualPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	r.serverMu.Lock()
	r.metricsServer = server
	r.serverMu.Unlock()

	if actualPort != requestedPort {
		r.logWarn("metrics listener moved to a different port",
			"address", actualPort+r.metricsPath,
			"requested_port", requestedPort)
	} else {
		r.logInfo("metrics listener starting", "address", actualPort+r.metricsPath)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			r.serverMu.Lock()
			r.metricsServer = nil
			r.serverMu.Unlock()
			r.logError("metrics listener error", "error", err)
		}
	}()
}

func (r *Recorder) stopMetricsServer(ctx context.Context) error {
	r.serverMu.Lock()
	server := r.metricsServer
	r.metricsServer = nil
	r.serverMu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	return nil
}

// listenAvailablePort listens on the preferred port, walking forward up to
// 100 ports when it is taken. The listener is handed to the server directly
// so the port cannot be lost between probe and serve.
func listenAvailablePort(preferredPort string) (net.Listener, error) {
	port := preferredPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	portNum, err := strconv.Atoi(strings.TrimPrefix(port, ":"))
	if err != nil {
		return nil, fmt.Errorf("invalid port format: %s", preferredPort)
	}

	for i := range 100 {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", portNum+i))
		if err == nil {
			return listener, nil
		}
	}

	return nil, fmt.Errorf("no available port found starting from %s", preferredPort)
}
