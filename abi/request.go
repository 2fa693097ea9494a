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

package abi

import (
	"sort"

	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/pipeline"
)

// Request is the flattened request a foreign handler receives. It mirrors
// the C archimedes_request_context struct: scalar fields are strings, the
// multimaps are parallel name/value slices, and the caller identity crosses
// as its canonical JSON document rather than a typed value.
//
// The flattening is deterministic: path parameters and headers are sorted
// by name (header values keep their wire order under a repeated name), so a
// binding replaying a request sees byte-identical input. All fields are
// borrowed for the duration of the callback; a binding that wants to keep
// any of them must copy.
type Request struct {
	RequestID   string
	TraceID     string
	SpanID      string
	OperationID string
	Method      string
	Path        string
	Query       string

	// CallerJSON is the caller identity serialized per the identity
	// package's JSON contract, e.g. {"type":"anonymous"}.
	CallerJSON []byte

	// ParamNames and ParamValues are the captured path parameters as
	// parallel slices, sorted by name.
	ParamNames  []string
	ParamValues []string

	// HeaderNames and HeaderValues are the request headers as parallel
	// slices with one entry per value. Names repeat for multi-valued
	// headers.
	HeaderNames  []string
	HeaderValues []string

	// Body is the collected request body, nil when the request had none.
	Body []byte
}

// NewRequest flattens a pipeline request for the ABI boundary. The
// middleware context is sealed by the time any handler runs, so every field
// read here is stable.
func NewRequest(mc *pipeline.MiddlewareContext, view *pipeline.RequestView) *Request {
	caller := identity.Anonymous()
	if c, ok := mc.Caller(); ok {
		caller = c
	}

	r := &Request{
		RequestID:   mc.RequestID(),
		TraceID:     mc.TraceID(),
		SpanID:      mc.SpanID(),
		OperationID: mc.OperationID(),
		Method:      view.Method(),
		Path:        view.Path(),
		Query:       view.RawQuery(),
		CallerJSON:  caller.JSON(),
		Body:        view.Body(),
	}

	params := view.PathParams()
	if len(params) > 0 {
		r.ParamNames = make([]string, 0, len(params))
		for name := range params {
			r.ParamNames = append(r.ParamNames, name)
		}
		sort.Strings(r.ParamNames)
		r.ParamValues = make([]string, len(r.ParamNames))
		for i, name := range r.ParamNames {
			r.ParamValues[i] = params[name]
		}
	}

	header := view.Header()
	if len(header) > 0 {
		names := make([]string, 0, len(header))
		for name := range header {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, value := range header[name] {
				r.HeaderNames = append(r.HeaderNames, name)
				r.HeaderValues = append(r.HeaderValues, value)
			}
		}
	}

	return r
}

// Param returns the named path parameter, "" when absent.
func (r *Request) Param(name string) string {
	for i, n := range r.ParamNames {
		if n == name {
			return r.ParamValues[i]
		}
	}

	return ""
}

// Header returns the first value of the named header, "" when absent.
// Lookup is case-sensitive against the canonical header names the
// flattener emitted.
func (r *Request) Header(name string) string {
	for i, n := range r.HeaderNames {
		if n == name {
			return r.HeaderValues[i]
		}
	}

	return ""
}
