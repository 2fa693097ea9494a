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

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/logging"
	"archimedes.dev/archimedes/pipeline"
)

// Context is what a typed handler receives: the sealed middleware context
// and the request view behind one ergonomic surface. It reads request data
// and builds responses; it holds no response state of its own.
type Context struct {
	mc   *pipeline.MiddlewareContext
	view *pipeline.RequestView
}

// NewContext pairs a middleware context with a request view. Adapters and
// tests construct contexts; handlers only consume them.
func NewContext(mc *pipeline.MiddlewareContext, view *pipeline.RequestView) *Context {
	return &Context{mc: mc, view: view}
}

// Context returns the request's context.Context, carrying the deadline,
// trace span, and request-scoped logger.
func (c *Context) Context() context.Context {
	return c.view.Context()
}

// View returns the underlying request view for use with the binding
// extractors.
func (c *Context) View() *pipeline.RequestView {
	return c.view
}

// Middleware returns the middleware context, giving access to typed
// extensions stages may have attached.
func (c *Context) Middleware() *pipeline.MiddlewareContext {
	return c.mc
}

// Logger returns the request-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return logging.FromContext(c.view.Context())
}

// RequestID returns the request correlation id.
func (c *Context) RequestID() string { return c.mc.RequestID() }

// TraceID returns the trace id, "" when tracing is off.
func (c *Context) TraceID() string { return c.mc.TraceID() }

// SpanID returns the span id, "" when tracing is off.
func (c *Context) SpanID() string { return c.mc.SpanID() }

// OperationID returns the id of the contract operation being served.
func (c *Context) OperationID() string { return c.mc.OperationID() }

// Caller returns the authenticated caller established by the identity
// stage, and whether identity establishment ran at all.
func (c *Context) Caller() (identity.Caller, bool) {
	return c.mc.Caller()
}

// Method returns the HTTP method.
func (c *Context) Method() string { return c.view.Method() }

// Path returns the concrete request path.
func (c *Context) Path() string { return c.view.Path() }

// Param returns one captured path parameter, "" when absent.
func (c *Context) Param(name string) string {
	return c.view.Param(name)
}

// Query returns the first value of a query parameter, "" when absent.
func (c *Context) Query(name string) string {
	return c.view.Query().Get(name)
}

// HeaderValue returns the first value of a request header, "" when absent.
func (c *Context) HeaderValue(name string) string {
	return c.view.HeaderValue(name)
}

// JSON builds a JSON response with the given status.
func (c *Context) JSON(status int, v any) *pipeline.Response {
	return pipeline.JSON(status, v)
}

// String builds a plain-text response.
func (c *Context) String(status int, s string) *pipeline.Response {
	return pipeline.Text(status, s)
}

// Blob builds a response with an explicit content type.
func (c *Context) Blob(status int, contentType string, body []byte) *pipeline.Response {
	return pipeline.Blob(status, contentType, body)
}

// NoContent builds an empty 204 response.
func (c *Context) NoContent() *pipeline.Response {
	return pipeline.NoContent()
}

// Redirect builds a redirect to location. Statuses outside the 3xx range
// are coerced to 302.
func (c *Context) Redirect(status int, location string) *pipeline.Response {
	if status < http.StatusMultipleChoices || status > http.StatusPermanentRedirect {
		status = http.StatusFound
	}

	return pipeline.NewResponse(status).SetHeader("Location", location)
}

// Error converts err to the canonical envelope response. Status and code
// resolve through the error's own declarations when it carries them
// (extraction errors, framework errors) and fall back to 500.
func (c *Context) Error(err error) *pipeline.Response {
	status := errors.StatusFor(err)

	return pipeline.Envelope(status, errors.CodeFor(err), err.Error(), c.mc.RequestID())
}
