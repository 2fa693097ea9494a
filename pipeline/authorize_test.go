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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/identity"
)

// stubAuthorizer returns a canned decision and remembers the last input.
type stubAuthorizer struct {
	decision authz.Decision
	last     authz.Input
	calls    int
}

func (s *stubAuthorizer) Authorize(_ context.Context, in authz.Input) authz.Decision {
	s.last = in
	s.calls++

	return s.decision
}

func runAuthorizeStage(a Authorizer, rec Recorder, view *RequestView, prep func(*MiddlewareContext)) (*MiddlewareContext, *Response, bool) {
	mc := NewMiddlewareContext()
	if op := view.Operation(); op != nil {
		mc.SetOperationID(op.ID)
	}
	if prep != nil {
		prep(mc)
	}

	invoked := false
	entry := compose([]Stage{authorizeStage(a, "user-service", rec)}, func(_ *MiddlewareContext, _ *RequestView) *Response {
		invoked = true

		return NoContent()
	})

	return mc, entry(mc, view), invoked
}

func resolvedView(method, path string) *RequestView {
	op := &contract.Operation{ID: "getUser", Method: method, Path: "/users/{userId}"}

	return TestView(method, path,
		TestViewOperation(op, "/users/{userId}", map[string]string{"userId": "42"}),
	)
}

func TestAuthorizeAllowProceeds(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: true, PolicyVersion: "rev-1"}}
	rec := &captureRecorder{}

	mc, resp, invoked := runAuthorizeStage(stub, rec, resolvedView(http.MethodGet, "/users/42"), nil)

	assert.True(t, invoked)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, []string{"allow"}, rec.decisions)

	d, ok := mc.Decision()
	require.True(t, ok)
	assert.Equal(t, "rev-1", d.PolicyVersion)
}

func TestAuthorizeDenyIs403WithReason(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: false, Reason: "user lacks admin role"}}
	rec := &captureRecorder{}

	_, resp, invoked := runAuthorizeStage(stub, rec, resolvedView(http.MethodGet, "/users/42"), nil)

	assert.False(t, invoked)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	env := decodeEnvelope(t, resp.Body)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Equal(t, "user lacks admin role", env.Error.Message)
	assert.Equal(t, []string{"deny"}, rec.decisions)
}

func TestAuthorizeDenyWithoutReason(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: false}}

	_, resp, _ := runAuthorizeStage(stub, &captureRecorder{}, resolvedView(http.MethodGet, "/users/42"), nil)

	assert.Equal(t, "forbidden", decodeEnvelope(t, resp.Body).Error.Message)
}

func TestAuthorizeCachedDecisionCountsAsCached(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: true, Cached: true}}
	rec := &captureRecorder{}

	runAuthorizeStage(stub, rec, resolvedView(http.MethodGet, "/users/42"), nil)

	assert.Equal(t, []string{"allow:cached"}, rec.decisions)
}

func TestAuthorizeBuildsPolicyInput(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: true}}
	caller := identity.Service("prod.local", "/billing")

	runAuthorizeStage(stub, &captureRecorder{}, resolvedView(http.MethodGet, "/users/42"), func(mc *MiddlewareContext) {
		mc.SetRequestID("req-authz")
		mc.SetCaller(caller)
	})

	require.Equal(t, 1, stub.calls)
	assert.Equal(t, caller, stub.last.Caller)
	assert.Equal(t, "user-service", stub.last.Service)
	assert.Equal(t, "getUser", stub.last.OperationID)
	assert.Equal(t, http.MethodGet, stub.last.Method)
	assert.Equal(t, "/users/42", stub.last.Path)
	assert.Equal(t, map[string]string{"userId": "42"}, stub.last.PathParams)
	assert.Equal(t, "req-authz", stub.last.RequestID)
}

func TestAuthorizeWithoutAuthorizerPasses(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	_, resp, invoked := runAuthorizeStage(nil, rec, resolvedView(http.MethodGet, "/users/42"), nil)

	assert.True(t, invoked)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Empty(t, rec.decisions)
}

func TestAuthorizeSkipsUnresolvedRequests(t *testing.T) {
	t.Parallel()

	stub := &stubAuthorizer{decision: authz.Decision{Allowed: false}}
	_, _, invoked := runAuthorizeStage(stub, &captureRecorder{}, TestView(http.MethodGet, "/nope"), nil)

	// Routing failures are dispatch's to answer; the policy engine is not
	// consulted for them.
	assert.True(t, invoked)
	assert.Zero(t, stub.calls)
}
