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
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/binding"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/pipeline"
)

// testContext builds a context over a resolved request with established
// pipeline state.
func testContext(t *testing.T) *Context {
	t.Helper()

	op := &contract.Operation{ID: "getUser", Method: http.MethodGet, Path: "/users/{userId}"}
	view := pipeline.TestView(http.MethodGet, "/users/42?fields=name",
		pipeline.TestViewOperation(op, "/users/{userId}", map[string]string{"userId": "42"}),
		pipeline.TestViewHeader("X-Client", "cli/1.2"),
	)

	mc := pipeline.NewMiddlewareContext()
	mc.SetRequestID("req-1")
	mc.SetTrace("trace-1", "span-1")
	mc.SetOperationID("getUser")
	mc.SetCaller(identity.User("u-7", nil, []string{"admin"}))

	return NewContext(mc, view)
}

func TestContextExposesRequestState(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	assert.Equal(t, "req-1", c.RequestID())
	assert.Equal(t, "trace-1", c.TraceID())
	assert.Equal(t, "span-1", c.SpanID())
	assert.Equal(t, "getUser", c.OperationID())
	assert.Equal(t, http.MethodGet, c.Method())
	assert.Equal(t, "/users/42", c.Path())
	assert.Equal(t, "42", c.Param("userId"))
	assert.Equal(t, "name", c.Query("fields"))
	assert.Equal(t, "cli/1.2", c.HeaderValue("X-Client"))
	assert.NotNil(t, c.Context())
	assert.NotNil(t, c.Logger())
	assert.NotNil(t, c.View())
	assert.NotNil(t, c.Middleware())

	caller, ok := c.Caller()
	require.True(t, ok)
	assert.Equal(t, identity.TypeUser, caller.Type)
	assert.Equal(t, "u-7", caller.UserID)
}

func TestContextResponseBuilders(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	jsonResp := c.JSON(http.StatusCreated, map[string]string{"id": "42"})
	assert.Equal(t, http.StatusCreated, jsonResp.Status)
	assert.Equal(t, pipeline.ContentTypeJSON, jsonResp.ContentType())
	assert.JSONEq(t, `{"id":"42"}`, string(jsonResp.Body))

	textResp := c.String(http.StatusOK, "pong")
	assert.Equal(t, pipeline.ContentTypeText, textResp.ContentType())
	assert.Equal(t, "pong", string(textResp.Body))

	blobResp := c.Blob(http.StatusOK, "application/pdf", []byte("%PDF"))
	assert.Equal(t, "application/pdf", blobResp.ContentType())

	empty := c.NoContent()
	assert.Equal(t, http.StatusNoContent, empty.Status)
	assert.Empty(t, empty.Body)
}

func TestContextRedirect(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	resp := c.Redirect(http.StatusMovedPermanently, "/users/v2/42")
	assert.Equal(t, http.StatusMovedPermanently, resp.Status)
	assert.Equal(t, "/users/v2/42", resp.Header.Get("Location"))

	coerced := c.Redirect(http.StatusOK, "/elsewhere")
	assert.Equal(t, http.StatusFound, coerced.Status)
}

func TestContextErrorMapsDeclaredStatus(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	resp := c.Error(errors.New(errors.KindValidationFailure, "email is malformed"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	var env errors.Envelope
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, "email is malformed", env.Error.Message)
	assert.Equal(t, "req-1", env.Error.RequestID)
}

func TestContextErrorMapsExtractionFailures(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	view := pipeline.TestView(http.MethodPost, "/users",
		pipeline.TestViewBody([]byte("{}")),
		pipeline.TestViewHeader("Content-Type", "text/csv"),
	)
	_, extractErr := binding.JSON[map[string]any](view)
	require.Error(t, extractErr)

	resp := c.Error(extractErr)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Status)

	var env errors.Envelope
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", env.Error.Code)
}

func TestContextErrorFallsBackToInternal(t *testing.T) {
	t.Parallel()

	c := testContext(t)

	resp := c.Error(stderrors.New("database went away"))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	var env errors.Envelope
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}
