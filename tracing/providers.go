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
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"archimedes.dev/archimedes/telemetry/semconv"
)

const tracerScope = "archimedes.dev/archimedes/tracing"

func (t *Tracer) initializeProvider() error {
	if t.customTracerProvider {
		if t.tracerProvider == nil {
			return fmt.Errorf("custom tracer provider is nil")
		}
		t.tracer = t.tracerProvider.Tracer(tracerScope)
		t.registerGlobalProvider()

		return nil
	}

	if t.provider == NoopProvider {
		t.tracer = noopTracer()

		return nil
	}

	exporter, err := t.newExporter()
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(t.exportTimeout)),
		sdktrace.WithResource(t.buildResource()),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(t.sampleRate))),
	)

	t.tracerProvider = tp
	t.tracer = tp.Tracer(tracerScope)
	t.registerGlobalProvider()

	t.logInfo("trace exporter initialized",
		"provider", string(t.provider),
		"endpoint", t.endpoint,
		"sample_rate", t.sampleRate)

	return nil
}

func (t *Tracer) newExporter() (sdktrace.SpanExporter, error) {
	switch t.provider {
	case StdoutProvider:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}

		return exporter, nil

	case OTLPGRPCProvider:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(t.endpoint),
			otlptracegrpc.WithTimeout(t.exportTimeout),
		}
		if t.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		exporter, err := otlptracegrpc.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP/gRPC exporter: %w", err)
		}

		return exporter, nil

	case OTLPHTTPProvider:
		endpoint, insecure := splitHTTPEndpoint(t.endpoint)

		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithTimeout(t.exportTimeout),
		}
		if insecure || t.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}

		exporter, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP/HTTP exporter: %w", err)
		}

		return exporter, nil

	default:
		return nil, fmt.Errorf("unsupported tracing provider: %s", t.provider)
	}
}

func (t *Tracer) buildResource() *resource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String(semconv.ServiceName, t.serviceName),
		attribute.String(semconv.ServiceVersion, t.serviceVersion),
	}
	if t.environment != "" {
		attrs = append(attrs, attribute.String(semconv.DeploymentEnviron, t.environment))
	}

	return resource.NewSchemaless(attrs...)
}

func (t *Tracer) registerGlobalProvider() {
	if t.registerGlobal {
		t.logDebug("registering global tracer provider", "provider", string(t.provider))
		otel.SetTracerProvider(t.tracerProvider)
		otel.SetTextMapPropagator(t.propagator)
	}
}

// splitHTTPEndpoint strips the scheme and path from an OTLP/HTTP endpoint;
// the exporter option takes a bare host:port. An explicit http:// scheme
// means plaintext.
func splitHTTPEndpoint(endpoint string) (host string, insecure bool) {
	host = endpoint

	if strings.HasPrefix(host, "http://") {
		host = strings.TrimPrefix(host, "http://")
		insecure = true
	} else if strings.HasPrefix(host, "https://") {
		host = strings.TrimPrefix(host, "https://")
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}

	return host, insecure
}
