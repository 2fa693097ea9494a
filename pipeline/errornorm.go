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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"unicode/utf8"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/telemetry/semconv"
)

// maxPreservedMessage caps how much of a plain-text error body survives into
// the normalized envelope message.
const maxPreservedMessage = 512

// errorNormStage is the outermost stage. It guarantees two things about
// whatever leaves the pipeline: a panic anywhere in the stages still yields
// a response, and every 4xx/5xx body is the canonical error envelope.
// Headers on the original response (Allow, X-Request-ID, cache directives)
// survive normalization; only the body and content type are replaced.
func errorNormStage(logger *slog.Logger) Stage {
	return Stage{
		Name: "error-normalization",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) (resp *Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.LogAttrs(view.Context(), slog.LevelError, "panic in pipeline stage",
						slog.String(semconv.RequestID, mc.RequestID()),
						slog.String(semconv.HTTPMethod, view.Method()),
						slog.String(semconv.HTTPTarget, view.Path()),
						slog.String("panic", fmt.Sprintf("%v", r)),
						slog.String("stack", string(debug.Stack())),
					)

					resp = Envelope(http.StatusInternalServerError,
						errors.CodeForStatus(http.StatusInternalServerError),
						"internal server error", mc.RequestID())
					if id := mc.RequestID(); id != "" {
						resp.SetHeader(HeaderRequestID, id)
					}
				}
			}()

			resp = next()
			if resp.Status >= http.StatusBadRequest && !errors.IsEnvelope(resp.Body) {
				normalizeError(resp, mc.RequestID())
			}

			return resp
		},
	}
}

// normalizeError rewrites an error response body to the canonical envelope
// in place.
func normalizeError(resp *Response, requestID string) {
	resp.Body = errors.MarshalEnvelope(
		errors.CodeForStatus(resp.Status),
		envelopeMessage(resp.Body, resp.Status),
		requestID,
	)
	resp.SetHeader("Content-Type", errors.ContentTypeJSON)
}

// envelopeMessage salvages a short plain-text body as the envelope message.
// JSON bodies, oversized bodies, and binary junk fall back to the standard
// status text so arbitrary payloads never leak into the envelope.
func envelopeMessage(body []byte, status int) string {
	fallback := http.StatusText(status)
	if fallback == "" {
		fallback = "error"
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || len(trimmed) > maxPreservedMessage {
		return fallback
	}
	if !utf8.Valid(trimmed) || json.Valid(trimmed) {
		return fallback
	}

	return string(trimmed)
}
