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
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"

	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/contract"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// RequestView is the per-request snapshot extractors and handlers read. The
// body is collected once, up front and size-capped; everything else is
// copied or referenced from the incoming request. A view belongs to the
// goroutine serving its request.
type RequestView struct {
	ctx context.Context

	method     string
	path       string
	rawQuery   string
	proto      string
	host       string
	remoteAddr string
	header     http.Header
	cookies    []*http.Cookie
	tls        *tls.ConnectionState

	query url.Values

	body         []byte
	bodyTooLarge bool
	bodyErr      error

	operation     *contract.Operation
	template      string
	params        map[string]string
	resolutionErr error

	container *container.Container
}

// NewRequestView snapshots an incoming request. The body is read to
// completion here: at most maxBody bytes are kept, a body even one byte
// larger marks the view oversize with no bytes retained, and a transport
// read failure is recorded for dispatch to surface.
func NewRequestView(r *http.Request, maxBody int64) *RequestView {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	v := &RequestView{
		ctx:        r.Context(),
		method:     r.Method,
		path:       r.URL.Path,
		rawQuery:   r.URL.RawQuery,
		proto:      r.Proto,
		host:       r.Host,
		remoteAddr: r.RemoteAddr,
		header:     r.Header,
		cookies:    r.Cookies(),
		tls:        r.TLS,
	}

	if v.rawQuery != "" {
		// Ignore malformed pairs the same way the stdlib does; Query
		// returns whatever parsed.
		v.query, _ = url.ParseQuery(v.rawQuery)
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		switch {
		case err != nil:
			v.bodyErr = err
		case int64(len(body)) > maxBody:
			v.bodyTooLarge = true
		default:
			v.body = body
		}
	}

	return v
}

// Context returns the request context. Stages refine it (trace span,
// logger, deadline) via SetContext.
func (v *RequestView) Context() context.Context {
	if v.ctx == nil {
		return context.Background()
	}

	return v.ctx
}

// SetContext replaces the request context.
func (v *RequestView) SetContext(ctx context.Context) {
	v.ctx = ctx
}

// Method returns the HTTP method.
func (v *RequestView) Method() string { return v.method }

// Path returns the concrete request path.
func (v *RequestView) Path() string { return v.path }

// RawQuery returns the unparsed query string.
func (v *RequestView) RawQuery() string { return v.rawQuery }

// Query returns the parsed query parameters. Never nil.
func (v *RequestView) Query() url.Values {
	if v.query == nil {
		return url.Values{}
	}

	return v.query
}

// Proto returns the HTTP protocol version string.
func (v *RequestView) Proto() string { return v.proto }

// Host returns the request host.
func (v *RequestView) Host() string { return v.host }

// RemoteAddr returns the peer address as the transport reported it.
func (v *RequestView) RemoteAddr() string { return v.remoteAddr }

// ClientIP returns the peer IP without the port.
func (v *RequestView) ClientIP() string {
	host, _, err := net.SplitHostPort(v.remoteAddr)
	if err != nil {
		return v.remoteAddr
	}

	return host
}

// Header returns the request header multimap.
func (v *RequestView) Header() http.Header { return v.header }

// HeaderValue returns the first value of a header, "" when absent.
func (v *RequestView) HeaderValue(name string) string {
	return v.header.Get(name)
}

// ContentType returns the request Content-Type header.
func (v *RequestView) ContentType() string {
	return v.header.Get("Content-Type")
}

// Cookies returns the request cookies.
func (v *RequestView) Cookies() []*http.Cookie { return v.cookies }

// Cookie returns the named cookie, or nil.
func (v *RequestView) Cookie(name string) *http.Cookie {
	for _, c := range v.cookies {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// TLS returns the TLS connection state, nil for cleartext requests.
func (v *RequestView) TLS() *tls.ConnectionState { return v.tls }

// Body returns the collected request body. Callers must not mutate it.
func (v *RequestView) Body() []byte { return v.body }

// BodyTooLarge reports whether the body exceeded the configured cap. The
// body bytes are not retained in that case.
func (v *RequestView) BodyTooLarge() bool { return v.bodyTooLarge }

// BodyError returns the transport error hit while reading the body, if any.
func (v *RequestView) BodyError() error { return v.bodyErr }

// Operation returns the resolved contract operation, nil when the request
// matched none.
func (v *RequestView) Operation() *contract.Operation { return v.operation }

// Template returns the matched path template, e.g. "/users/{userId}".
func (v *RequestView) Template() string { return v.template }

// PathParams returns the captured path parameters. Never nil.
func (v *RequestView) PathParams() map[string]string {
	if v.params == nil {
		return map[string]string{}
	}

	return v.params
}

// Param returns one captured path parameter, "" when absent.
func (v *RequestView) Param(name string) string {
	return v.params[name]
}

// ResolutionError returns the routing failure for requests no operation
// covers: *contract.OperationNotFoundError or *router.MethodNotAllowedError.
func (v *RequestView) ResolutionError() error { return v.resolutionErr }

// Container returns the process-wide dependency container, nil outside a
// configured pipeline.
func (v *RequestView) Container() *container.Container { return v.container }

// setResolution records a successful contract match.
func (v *RequestView) setResolution(res contract.Resolution) {
	v.operation = res.Operation
	v.template = res.Template
	v.params = res.Params
}
