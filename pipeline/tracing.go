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

package pipeline

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"archimedes.dev/archimedes/telemetry/semconv"
)

// tracingStage opens the server span for the request. The incoming W3C
// trace context is honored as the parent, the span is named after the
// resolved operation (falling back to the method), and traceparent is
// injected into the response so callers can correlate. The span stays open
// through the handler; the telemetry stage closes it once the final status
// is known.
func tracingStage(tracer trace.Tracer, propagator propagation.TextMapPropagator) Stage {
	if tracer == nil {
		return Stage{
			Name: "tracing",
			Process: func(_ *MiddlewareContext, _ *RequestView, next Next) *Response {
				return next()
			},
		}
	}
	if propagator == nil {
		propagator = propagation.TraceContext{}
	}

	return Stage{
		Name: "tracing",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			ctx := propagator.Extract(view.Context(), propagation.HeaderCarrier(view.Header()))

			name := mc.OperationID()
			if name == "" {
				name = view.Method()
			}

			attrs := []attribute.KeyValue{
				attribute.String(semconv.HTTPMethod, view.Method()),
				attribute.String(semconv.HTTPTarget, view.Path()),
				attribute.String(semconv.RequestID, mc.RequestID()),
			}
			if route := view.Template(); route != "" {
				attrs = append(attrs, attribute.String(semconv.HTTPRoute, route))
			}
			if op := mc.OperationID(); op != "" {
				attrs = append(attrs, attribute.String(semconv.OperationID, op))
			}

			ctx, span := tracer.Start(ctx, name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			if sc := span.SpanContext(); sc.IsValid() {
				mc.SetTrace(sc.TraceID().String(), sc.SpanID().String())
			}
			view.SetContext(ctx)

			resp := next()
			propagator.Inject(ctx, propagation.HeaderCarrier(resp.Headers()))

			return resp
		},
	}
}
