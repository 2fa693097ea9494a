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
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"archimedes.dev/archimedes/telemetry/semconv"
)

// Recorder receives the measurements the pipeline takes. The metrics package
// provides the production implementation; NopRecorder discards everything.
type Recorder interface {
	// RecordRequest observes one completed request.
	RecordRequest(ctx context.Context, operation string, status int, duration time.Duration, requestBytes, responseBytes int64)

	// AddInFlight adjusts the concurrent-request gauge.
	AddInFlight(ctx context.Context, delta int64)

	// RecordValidationFailure counts a schema violation by direction
	// ("request" or "response") and reason.
	RecordValidationFailure(ctx context.Context, direction, reason string)

	// RecordAuthzDecision counts a policy outcome ("allow" or "deny") and
	// whether it was served from the decision cache.
	RecordAuthzDecision(ctx context.Context, result string, cached bool)
}

// NopRecorder is a Recorder that drops all measurements.
type NopRecorder struct{}

func (NopRecorder) RecordRequest(context.Context, string, int, time.Duration, int64, int64) {}
func (NopRecorder) AddInFlight(context.Context, int64)                                      {}
func (NopRecorder) RecordValidationFailure(context.Context, string, string)                 {}
func (NopRecorder) RecordAuthzDecision(context.Context, string, bool)                       {}

// telemetryStage measures every request, emits the canonical request log
// line, and closes the request span after stamping the final status on it.
// It sits outside the trace and request-id stages so both identifiers are
// populated by the time it observes the response.
func telemetryStage(rec Recorder, logger *slog.Logger) Stage {
	return Stage{
		Name: "telemetry",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			rec.AddInFlight(view.Context(), 1)
			defer rec.AddInFlight(view.Context(), -1)

			resp := next()

			duration := time.Since(mc.StartedAt())
			status := resp.Status
			if status == 0 {
				status = http.StatusOK
			}
			operation := mc.OperationID()
			if operation == "" {
				operation = "unknown"
			}

			ctx := view.Context()
			rec.RecordRequest(ctx, operation, status, duration,
				int64(len(view.Body())), int64(len(resp.Body)))

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.SetAttributes(attribute.Int(semconv.HTTPStatusCode, status))
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}
				span.End()
			}

			logRequest(ctx, logger, mc, view, status, duration)

			return resp
		},
	}
}

// logRequest emits the one log line every request gets. Severity follows the
// status class.
func logRequest(ctx context.Context, logger *slog.Logger, mc *MiddlewareContext, view *RequestView, status int, duration time.Duration) {
	level := slog.LevelInfo
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}

	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String(semconv.HTTPMethod, view.Method()),
		slog.String(semconv.HTTPTarget, view.Path()),
		slog.Int(semconv.HTTPStatusCode, status),
		slog.Float64(semconv.DurationMS, float64(duration)/float64(time.Millisecond)),
		slog.String(semconv.RequestID, mc.RequestID()),
	)

	if route := view.Template(); route != "" {
		attrs = append(attrs, slog.String(semconv.HTTPRoute, route))
	}
	if op := mc.OperationID(); op != "" {
		attrs = append(attrs, slog.String(semconv.OperationID, op))
	}
	if mc.TraceID() != "" {
		attrs = append(attrs,
			slog.String(semconv.TraceID, mc.TraceID()),
			slog.String(semconv.SpanID, mc.SpanID()),
		)
	}
	if caller, ok := mc.Caller(); ok {
		attrs = append(attrs,
			slog.String(semconv.CallerType, string(caller.Type)),
			slog.String(semconv.CallerID, caller.ID),
		)
	}
	if d, ok := mc.Decision(); ok {
		attrs = append(attrs, slog.String(semconv.PolicyDecision, d.Result()))
	}

	logger.LogAttrs(ctx, level, "http request", attrs...)
}
