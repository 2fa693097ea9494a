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
	"encoding/json"
	"net/http"
	"strconv"

	"archimedes.dev/archimedes/errors"
)

// Content types emitted by the framework.
const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Response is the wire-level outcome of a request: status, headers, body.
// Stages may decorate it on the unwind path; the error-normalization stage
// guarantees 4xx/5xx bodies are the canonical envelope before it reaches
// the transport.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// JSON builds a response by marshalling v. A value that cannot be
// marshalled yields a plain 500 that error normalization will envelope.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return &Response{
			Status: http.StatusInternalServerError,
			Body:   []byte("response serialization failed"),
		}
	}

	r := &Response{Status: status, Body: body}
	r.SetHeader("Content-Type", ContentTypeJSON)

	return r
}

// Text builds a plain-text response.
func Text(status int, s string) *Response {
	r := &Response{Status: status, Body: []byte(s)}
	r.SetHeader("Content-Type", ContentTypeText)

	return r
}

// Blob builds a response with an explicit content type.
func Blob(status int, contentType string, body []byte) *Response {
	r := &Response{Status: status, Body: body}
	if contentType != "" {
		r.SetHeader("Content-Type", contentType)
	}

	return r
}

// NoContent builds an empty 204 response.
func NoContent() *Response {
	return &Response{Status: http.StatusNoContent}
}

// Envelope builds the canonical error response body
// {"error":{"code","message","request_id"}}.
func Envelope(status int, code, message, requestID string) *Response {
	r := &Response{Status: status, Body: errors.MarshalEnvelope(code, message, requestID)}
	r.SetHeader("Content-Type", ContentTypeJSON)

	return r
}

// Headers returns the header map, allocating it on first use.
func (r *Response) Headers() http.Header {
	if r.Header == nil {
		r.Header = make(http.Header, 4)
	}

	return r.Header
}

// SetHeader sets a response header and returns the response for chaining.
func (r *Response) SetHeader(key, value string) *Response {
	r.Headers().Set(key, value)

	return r
}

// AddHeader appends a response header value.
func (r *Response) AddHeader(key, value string) *Response {
	r.Headers().Add(key, value)

	return r
}

// ContentType returns the Content-Type header, or "" when unset.
func (r *Response) ContentType() string {
	if r.Header == nil {
		return ""
	}

	return r.Header.Get("Content-Type")
}

// Write flushes the response to the transport. A non-empty body without a
// content type defaults to JSON, the framework's wire format.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for key, values := range r.Header {
		for _, v := range values {
			h.Add(key, v)
		}
	}

	if len(r.Body) > 0 {
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", ContentTypeJSON)
		}
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(r.Body) == 0 {
		return nil
	}

	_, err := w.Write(r.Body)

	return err
}
