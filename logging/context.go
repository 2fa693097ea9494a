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

package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Semantic convention field names for trace correlation.
const (
	fieldTraceID = "trace_id"
	fieldSpanID  = "span_id"
)

type contextKey struct{}

// IntoContext returns a context carrying logger. The pipeline uses this
// to attach a request-scoped logger pre-populated with request_id,
// trace_id and operation_id.
func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request-scoped logger from ctx, or
// slog.Default() when none is attached. It never returns nil, so call
// sites can log unconditionally.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// WithTrace returns logger extended with trace_id and span_id when ctx
// carries an active OpenTelemetry span, and logger unchanged otherwise.
// Extracting the IDs once here keeps manual trace plumbing out of every
// log call.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		return logger.With(
			fieldTraceID, sc.TraceID().String(),
			fieldSpanID, sc.SpanID().String(),
		)
	}

	return logger
}
