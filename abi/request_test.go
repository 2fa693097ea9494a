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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/pipeline"
)

func TestNewRequestFlattensContextAndView(t *testing.T) {
	t.Parallel()

	mc := pipeline.NewMiddlewareContext()
	mc.SetRequestID("req-42")
	mc.SetTrace("trace-42", "span-42")
	mc.SetOperationID("getUser")
	mc.SetCaller(identity.Service("prod.example.com", "/billing"))

	op := &contract.Operation{ID: "getUser", Method: "GET", Path: "/users/{id}"}
	view := pipeline.TestView("GET", "/users/7?expand=profile",
		pipeline.TestViewOperation(op, "/users/{id}", map[string]string{"id": "7"}),
		pipeline.TestViewHeader("Accept", "application/json"),
	)

	req := NewRequest(mc, view)

	assert.Equal(t, "req-42", req.RequestID)
	assert.Equal(t, "trace-42", req.TraceID)
	assert.Equal(t, "span-42", req.SpanID)
	assert.Equal(t, "getUser", req.OperationID)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/users/7", req.Path)
	assert.Equal(t, "expand=profile", req.Query)
	assert.Equal(t, "7", req.Param("id"))
	assert.Equal(t, "application/json", req.Header("Accept"))
	assert.Nil(t, req.Body)

	var caller map[string]any
	require.NoError(t, json.Unmarshal(req.CallerJSON, &caller))
	assert.Equal(t, "spiffe", caller["type"])
	assert.Equal(t, "spiffe://prod.example.com/billing", caller["id"])
}

func TestNewRequestWithoutCallerFallsBackToAnonymous(t *testing.T) {
	t.Parallel()

	mc := pipeline.NewMiddlewareContext()
	view := pipeline.TestView("GET", "/health")

	req := NewRequest(mc, view)

	assert.JSONEq(t, `{"type":"anonymous"}`, string(req.CallerJSON))
}

func TestNewRequestSortsParamsByName(t *testing.T) {
	t.Parallel()

	op := &contract.Operation{ID: "getItem", Method: "GET", Path: "/orgs/{org}/items/{item}"}
	view := pipeline.TestView("GET", "/orgs/acme/items/9",
		pipeline.TestViewOperation(op, "/orgs/{org}/items/{item}",
			map[string]string{"org": "acme", "item": "9"}),
	)

	req := NewRequest(pipeline.NewMiddlewareContext(), view)

	assert.Equal(t, []string{"item", "org"}, req.ParamNames)
	assert.Equal(t, []string{"9", "acme"}, req.ParamValues)
}

func TestNewRequestSortsHeadersAndKeepsRepeatedValueOrder(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView("GET", "/things",
		pipeline.TestViewHeader("X-Tag", "first"),
		pipeline.TestViewHeader("X-Tag", "second"),
		pipeline.TestViewHeader("Accept", "application/json"),
	)

	req := NewRequest(pipeline.NewMiddlewareContext(), view)

	assert.Equal(t, []string{"Accept", "X-Tag", "X-Tag"}, req.HeaderNames)
	assert.Equal(t, []string{"application/json", "first", "second"}, req.HeaderValues)
}

func TestNewRequestCarriesBodyBytes(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView("POST", "/users",
		pipeline.TestViewBody([]byte(`{"name":"alice"}`)),
	)

	req := NewRequest(pipeline.NewMiddlewareContext(), view)

	assert.Equal(t, []byte(`{"name":"alice"}`), req.Body)
}

func TestRequestLookupsReturnEmptyWhenAbsent(t *testing.T) {
	t.Parallel()

	req := NewRequest(pipeline.NewMiddlewareContext(), pipeline.TestView("GET", "/ping"))

	assert.Empty(t, req.Param("missing"))
	assert.Empty(t, req.Header("X-Missing"))
	assert.Empty(t, req.ParamNames)
	assert.Empty(t, req.HeaderNames)
}
