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
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"archimedes.dev/archimedes/telemetry/semconv"
	"archimedes.dev/archimedes/validation"
)

// codeValidationFailed is the envelope code for contract violations. It is
// paired with 400 for requests; responses are never rewritten.
const codeValidationFailed = "VALIDATION_FAILED"

// maxCitedFailures bounds how many field failures a rejection message spells
// out; the rest are summarized as a count.
const maxCitedFailures = 3

// requestValidationStage checks the request body against the operation's
// declared schema. In enforce mode a violation stops the request with 400;
// in monitor mode it is logged and counted but the request proceeds.
func requestValidationStage(v *validation.SchemaValidator, enforce bool, rec Recorder, logger *slog.Logger) Stage {
	return Stage{
		Name: "request-validation",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			if v == nil || view.Operation() == nil {
				return next()
			}
			// Oversized and unreadable bodies are dispatch's to reject
			// (413/400); validating the empty snapshot would misreport
			// them as schema violations.
			if view.BodyTooLarge() || view.BodyError() != nil {
				return next()
			}

			res := v.ValidateRequest(view.Operation(), view.Body())
			if res.Valid {
				return next()
			}

			rec.RecordValidationFailure(view.Context(), "request", res.Reason())
			logger.LogAttrs(view.Context(), slog.LevelWarn, "request validation failed",
				slog.String(semconv.RequestID, mc.RequestID()),
				slog.String(semconv.OperationID, mc.OperationID()),
				slog.String(semconv.ValidationDirection, "request"),
				slog.String("detail", summarizeFailures(res.Errors)),
			)

			if !enforce {
				return next()
			}

			return Envelope(http.StatusBadRequest, codeValidationFailed,
				summarizeFailures(res.Errors), mc.RequestID())
		},
	}
}

// responseValidationStage checks the handler's response body against the
// schema the operation declares for its status. A violation is observed,
// never corrected: the response goes out unchanged and the failure shows up
// in logs and counters, at error level when enforcing.
func responseValidationStage(v *validation.SchemaValidator, enforce bool, rec Recorder, logger *slog.Logger) Stage {
	return Stage{
		Name: "response-validation",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			resp := next()
			if v == nil || view.Operation() == nil {
				return resp
			}

			status := resp.Status
			if status == 0 {
				status = http.StatusOK
			}
			res := v.ValidateResponse(view.Operation(), status, resp.Body)
			if !res.Valid {
				rec.RecordValidationFailure(view.Context(), "response", res.Reason())

				level := slog.LevelWarn
				if enforce {
					level = slog.LevelError
				}
				logger.LogAttrs(view.Context(), level, "response validation failed",
					slog.String(semconv.RequestID, mc.RequestID()),
					slog.String(semconv.OperationID, mc.OperationID()),
					slog.String(semconv.ValidationDirection, "response"),
					slog.Int(semconv.HTTPStatusCode, status),
					slog.String("detail", summarizeFailures(res.Errors)),
				)
			}

			return resp
		},
	}
}

// summarizeFailures renders the first few field failures for an envelope
// message or log line.
func summarizeFailures(fields []validation.FieldError) string {
	if len(fields) == 0 {
		return "validation failed"
	}

	cited := len(fields)
	if cited > maxCitedFailures {
		cited = maxCitedFailures
	}

	parts := make([]string, cited)
	for i := range cited {
		parts[i] = fields[i].Error()
	}

	summary := strings.Join(parts, "; ")
	if rest := len(fields) - cited; rest > 0 {
		summary = fmt.Sprintf("%s (and %d more)", summary, rest)
	}

	return summary
}
