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

package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ContentTypeJSON is the content type used for all envelope responses.
const ContentTypeJSON = "application/json; charset=utf-8"

// ErrorType allows errors to declare their own HTTP status code.
// Domain errors can optionally implement this interface to control their
// status code when converted to an envelope.
type ErrorType interface {
	error
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrorCode allows errors to declare their own stable code string.
type ErrorCode interface {
	error
	// Code returns the stable machine-readable code for this error.
	Code() string
}

// Envelope is the canonical user-visible error body:
//
//	{"error": {"code": "...", "message": "...", "request_id": "..."}}
//
// Every 4xx/5xx response that leaves the pipeline is normalized to this
// shape; codes are append-only.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody carries the fields of the error envelope.
type EnvelopeBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewEnvelope builds an envelope from its parts.
func NewEnvelope(code, message, requestID string) Envelope {
	return Envelope{Error: EnvelopeBody{Code: code, Message: message, RequestID: requestID}}
}

// MarshalEnvelope serializes an envelope to JSON bytes. Marshalling an
// envelope cannot fail; the fallback is a minimal hand-built body.
func MarshalEnvelope(code, message, requestID string) []byte {
	b, err := json.Marshal(NewEnvelope(code, message, requestID))
	if err != nil {
		return []byte(`{"error":{"code":"INTERNAL_ERROR","message":"error encoding failed","request_id":""}}`)
	}

	return b
}

// IsEnvelope reports whether body already parses as a canonical error
// envelope with a non-empty code. The normalization stage uses this to avoid
// double-wrapping bodies produced by short-circuiting stages.
func IsEnvelope(body []byte) bool {
	if len(body) == 0 {
		return false
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}

	return env.Error.Code != ""
}

// statusCodes maps HTTP statuses to their stable envelope codes. The map is
// append-only; unknown statuses fall back by class (4xx → BAD_REQUEST,
// 5xx → INTERNAL_ERROR).
var statusCodes = map[int]string{
	http.StatusBadRequest:            "BAD_REQUEST",
	http.StatusUnauthorized:          "UNAUTHORIZED",
	http.StatusForbidden:             "FORBIDDEN",
	http.StatusNotFound:              "NOT_FOUND",
	http.StatusMethodNotAllowed:      "METHOD_NOT_ALLOWED",
	http.StatusRequestTimeout:        "REQUEST_TIMEOUT",
	http.StatusConflict:              "CONFLICT",
	http.StatusRequestEntityTooLarge: "PAYLOAD_TOO_LARGE",
	http.StatusUnsupportedMediaType:  "UNSUPPORTED_MEDIA_TYPE",
	http.StatusUnprocessableEntity:   "VALIDATION_FAILED",
	http.StatusTooManyRequests:       "RATE_LIMITED",
	http.StatusInternalServerError:   "INTERNAL_ERROR",
	http.StatusServiceUnavailable:    "SERVICE_UNAVAILABLE",
	http.StatusGatewayTimeout:        "GATEWAY_TIMEOUT",
}

// CodeForStatus returns the stable envelope code for an HTTP status.
func CodeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}

	if status >= 400 && status < 500 {
		return "BAD_REQUEST"
	}

	return "INTERNAL_ERROR"
}

// StatusFor resolves the HTTP status for an error: ErrorType wins, then the
// Kind of a wrapped *E, then 500.
func StatusFor(err error) int {
	var typed ErrorType
	if errors.As(err, &typed) {
		return typed.HTTPStatus()
	}

	var e *E
	if errors.As(err, &e) {
		return e.Kind.HTTPStatus()
	}

	return http.StatusInternalServerError
}

// CodeFor resolves the stable code for an error: ErrorCode wins, then the
// Kind of a wrapped *E, then the status-derived code.
func CodeFor(err error) string {
	var coded ErrorCode
	if errors.As(err, &coded) {
		return coded.Code()
	}

	var e *E
	if errors.As(err, &e) {
		return e.Kind.Code()
	}

	return CodeForStatus(StatusFor(err))
}

// WriteEnvelope writes a canonical error envelope to w, setting the content
// type and status. Write errors are ignored; the connection is already in an
// unrecoverable state when they occur.
func WriteEnvelope(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(MarshalEnvelope(code, message, requestID))
}

// WriteError converts err to an envelope response on w using [StatusFor]
// and [CodeFor].
func WriteError(w http.ResponseWriter, err error, requestID string) {
	status := StatusFor(err)
	WriteEnvelope(w, status, CodeFor(err), err.Error(), requestID)
}
