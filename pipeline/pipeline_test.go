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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
)

func newUserPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()

	resolver, err := contract.NewResolver(userContract(t))
	require.NoError(t, err)

	defaults := []Option{WithLogger(discardLogger())}
	p, err := New(resolver, append(defaults, opts...)...)
	require.NoError(t, err)

	return p
}

func serve(p *Pipeline, method, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)

	return w
}

func getUserHandler(_ *MiddlewareContext, view *RequestView) *Response {
	id := view.Param("userId")

	return JSON(http.StatusOK, map[string]string{"id": id, "name": "User " + id})
}

func TestPipelineServesResolvedOperation(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)
	require.NoError(t, p.Register("getUser", getUserHandler))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"42","name":"User 42"}`, w.Body.String())
	assert.Equal(t, ContentTypeJSON, w.Header().Get("Content-Type"))

	id, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	require.NoError(t, err, "every response carries a request id")
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestPipelineRejectsInvalidRequestBody(t *testing.T) {
	t.Parallel()

	invoked := false
	p := newUserPipeline(t, WithRequestValidation(userValidator(t), true))
	require.NoError(t, p.Register("createUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
		invoked = true

		return NoContent()
	}))

	w := serve(p, http.MethodPost, "/users", `{"name":"Alice"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, invoked, "handler must never see an invalid body")

	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Message, "email")
	assert.Equal(t, w.Header().Get(HeaderRequestID), env.Error.RequestID)
}

func TestPipelineDeniedRequestIs403(t *testing.T) {
	t.Parallel()

	invoked := false
	stub := &stubAuthorizer{decision: authz.Decision{Allowed: false, Reason: "caller may not read users"}}
	p := newUserPipeline(t, WithAuthorizer(stub), WithService("user-service"))
	require.NoError(t, p.Register("getUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
		invoked = true

		return NoContent()
	}))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, invoked)

	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Equal(t, "caller may not read users", env.Error.Message)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestPipelineAuthorizationRunsBeforeValidation(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: false, Reason: "denied"}}
	p := newUserPipeline(t,
		WithAuthorizer(stub),
		WithRequestValidation(userValidator(t), true),
	)

	// Body is invalid too; the policy verdict must win.
	w := serve(p, http.MethodPost, "/users", `{"name":"Alice"}`, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPipelineUnknownPathIs404(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)

	w := serve(p, http.MethodGet, "/unknown", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Contains(t, env.Error.Message, "/unknown")
	assert.Equal(t, w.Header().Get(HeaderRequestID), env.Error.RequestID)
}

func TestPipelineWrongMethodIs405WithAllow(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)

	w := serve(p, http.MethodDelete, "/users", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeEnvelope(t, w.Body.Bytes()).Error.Code)
}

func TestPipelineBodyCap(t *testing.T) {
	t.Parallel()

	body := `{"name":"A","email":"b"}`
	capAt := int64(len(body))

	t.Run("at cap succeeds", func(t *testing.T) {
		t.Parallel()

		p := newUserPipeline(t, WithMaxBodyBytes(capAt))
		require.NoError(t, p.Register("createUser", func(_ *MiddlewareContext, v *RequestView) *Response {
			return JSON(http.StatusOK, map[string]int{"received": len(v.Body())})
		}))

		w := serve(p, http.MethodPost, "/users", body, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":24}`, w.Body.String())
	})

	t.Run("one byte over fails with 413", func(t *testing.T) {
		t.Parallel()

		invoked := false
		p := newUserPipeline(t, WithMaxBodyBytes(capAt-1))
		require.NoError(t, p.Register("createUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
			invoked = true

			return NoContent()
		}))

		w := serve(p, http.MethodPost, "/users", body, nil)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.False(t, invoked)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeEnvelope(t, w.Body.Bytes()).Error.Code)
	})
}

func TestPipelineHandlerPanicIs500(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	p := newUserPipeline(t, WithRecorder(rec))
	require.NoError(t, p.Register("getUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
		panic("handler exploded")
	}))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeEnvelope(t, w.Body.Bytes()).Error.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// The panicked request still shows up in the metrics.
	reqs := rec.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, "getUser", reqs[0].operation)
	assert.Equal(t, http.StatusInternalServerError, reqs[0].status)
}

func TestPipelineUnregisteredOperationIs500(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "HANDLER_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Message, "getUser")
}

func TestPipelineHandlerTimeoutIs504(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t, WithRequestTimeout(30*time.Millisecond))
	require.NoError(t, p.Register("getUser", func(_ *MiddlewareContext, v *RequestView) *Response {
		select {
		case <-v.Context().Done():
		case <-time.After(2 * time.Second):
		}

		return Text(http.StatusOK, "too late")
	}))

	start := time.Now()
	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Less(t, time.Since(start), time.Second, "the deadline, not the handler, decides")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "GATEWAY_TIMEOUT", decodeEnvelope(t, w.Body.Bytes()).Error.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestPipelineClientCancelWaitsForHandler(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t, WithRequestTimeout(time.Second))
	require.NoError(t, p.Register("getUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
		time.Sleep(50 * time.Millisecond)

		return Text(http.StatusOK, "finished anyway")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)

	// A disconnect is not a deadline: the handler's response is still the
	// one written (into the void, on a real server).
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "finished anyway", w.Body.String())
}

func TestPipelineNormalizesHandlerErrorBodies(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)
	require.NoError(t, p.Register("getUser", func(_ *MiddlewareContext, _ *RequestView) *Response {
		return Text(http.StatusServiceUnavailable, "downstream unavailable")
	}))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, ContentTypeJSON, w.Header().Get("Content-Type"))

	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "downstream unavailable", env.Error.Message)
}

func TestPipelineEchoesTrustedRequestID(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)
	require.NoError(t, p.Register("getUser", getUserHandler))

	clientID := uuid.Must(uuid.NewV7()).String()
	w := serve(p, http.MethodGet, "/users/42", "", map[string]string{HeaderRequestID: clientID})

	assert.Equal(t, clientID, w.Header().Get(HeaderRequestID))
}

func TestPipelineMintsFreshIDWhenUntrusted(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t, WithTrustIncomingRequestID(false))
	require.NoError(t, p.Register("getUser", getUserHandler))

	clientID := uuid.Must(uuid.NewV7()).String()
	w := serve(p, http.MethodGet, "/users/42", "", map[string]string{HeaderRequestID: clientID})

	got := w.Header().Get(HeaderRequestID)
	assert.NotEqual(t, clientID, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestPipelineRecordsTelemetry(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	stub := &stubAuthorizer{decision: authz.Decision{Allowed: true}}
	p := newUserPipeline(t, WithRecorder(rec), WithAuthorizer(stub))
	require.NoError(t, p.Register("getUser", getUserHandler))

	serve(p, http.MethodGet, "/users/42", "", nil)

	reqs := rec.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, "getUser", reqs[0].operation)
	assert.Equal(t, http.StatusOK, reqs[0].status)
	assert.Equal(t, []string{"allow"}, rec.decisions)
	assert.Equal(t, int64(0), rec.inFlight)
}

func TestPipelineEmitsResponseTraceContext(t *testing.T) {
	t.Parallel()

	tracer, sr := newTestTracer(t)
	p := newUserPipeline(t, WithTracer(tracer))
	require.NoError(t, p.Register("getUser", getUserHandler))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	assert.NotEmpty(t, w.Header().Get("Traceparent"))

	ended := sr.Ended()
	require.Len(t, ended, 1, "telemetry must close the span")
	assert.Equal(t, "getUser", ended[0].Name())
}

func TestPipelineSealStopsHandlerMutation(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)
	require.NoError(t, p.Register("getUser", func(mc *MiddlewareContext, _ *RequestView) *Response {
		mc.SetRequestID("smuggled")

		return NoContent()
	}))

	w := serve(p, http.MethodGet, "/users/42", "", nil)

	// The mutation panics behind the seal and surfaces as a 500.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeEnvelope(t, w.Body.Bytes()).Error.Code)
}

func TestPipelineRegistration(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)

	err := p.Register("notInContract", getUserHandler)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindHandlerRegistration))

	require.NoError(t, p.Register("getUser", getUserHandler))
	err = p.Register("getUser", getUserHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a handler")

	err = p.Register("createUser", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil handler")

	assert.Panics(t, func() { p.MustRegister("notInContract", getUserHandler) })
}

func TestPipelineFreezesAtFirstRequest(t *testing.T) {
	t.Parallel()

	p := newUserPipeline(t)
	require.NoError(t, p.Register("getUser", getUserHandler))
	assert.False(t, p.Frozen())

	serve(p, http.MethodGet, "/users/42", "", nil)

	assert.True(t, p.Frozen())

	err := p.Register("createUser", getUserHandler)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindHandlerRegistration))
	assert.Contains(t, err.Error(), "frozen")

	assert.True(t, p.Registered("getUser"))
	assert.False(t, p.Registered("createUser"))
}

func TestPipelineRequiresResolver(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))

	assert.Panics(t, func() { MustNew(nil) })
}
