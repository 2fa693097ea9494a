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

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/contract"
)

func userArtifact(t *testing.T) *contract.Artifact {
	t.Helper()

	return contract.TestArtifactWithSchemas("user-service",
		map[string]any{
			"CreateUser": map[string]any{
				"type":     "object",
				"required": []string{"name", "email"},
				"properties": map[string]any{
					"name":    map[string]any{"type": "string", "minLength": 1},
					"email":   map[string]any{"type": "string"},
					"age":     map[string]any{"type": "integer", "minimum": 0},
					"address": map[string]any{"$ref": "Address"},
				},
				"additionalProperties": false,
			},
			"Address": map[string]any{
				"type":     "object",
				"required": []string{"street"},
				"properties": map[string]any{
					"street": map[string]any{"type": "string"},
					"city":   map[string]any{"type": "string"},
				},
			},
			"User": map[string]any{
				"type":     "object",
				"required": []string{"id", "name"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"name": map[string]any{"type": "string"},
				},
			},
		},
		contract.Operation{
			ID:            "createUser",
			Method:        "POST",
			Path:          "/users",
			RequestSchema: "CreateUser",
			ResponseSchemas: map[int]string{
				201: "User",
			},
		},
		contract.Operation{
			ID:     "listUsers",
			Method: "GET",
			Path:   "/users",
		},
	)
}

func TestValidateRequestPasses(t *testing.T) {
	v, err := NewSchemaValidator(userArtifact(t))
	require.NoError(t, err)

	op := userArtifact(t).OperationByID("createUser")
	res := v.ValidateRequest(op, []byte(`{"name":"Ada","email":"ada@example.com","age":36}`))

	assert.True(t, res.Valid)
	assert.NoError(t, res.Err())
	assert.Empty(t, res.Reason())
}

func TestValidateRequestMissingRequiredField(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"), []byte(`{"name":"Ada"}`))

	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), ErrValidation)
}

func TestValidateRequestNestedPath(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"),
		[]byte(`{"name":"Ada","email":"a@b.c","address":{"city":"London"}}`))

	require.False(t, res.Valid)
	found := false
	for _, fe := range res.Errors {
		if fe.Path == "address" {
			found = true
		}
	}
	assert.True(t, found, "expected a failure located at address, got %+v", res.Errors)
}

func TestValidateRequestCrossSchemaRef(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"),
		[]byte(`{"name":"Ada","email":"a@b.c","address":{"street":"Broad St"}}`))

	assert.True(t, res.Valid)
}

func TestValidateRequestWrongType(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"),
		[]byte(`{"name":"Ada","email":"a@b.c","age":"old"}`))

	require.False(t, res.Valid)
	assert.NotEmpty(t, res.Reason())
}

func TestValidateRequestEmptyBodyWithSchema(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"), nil)

	require.False(t, res.Valid)
	assert.Equal(t, "body.missing", res.Reason())
}

func TestValidateRequestMalformedJSON(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"), []byte(`{"name":`))

	require.False(t, res.Valid)
	assert.Equal(t, "body.malformed", res.Reason())
}

func TestValidateRequestNoSchemaDeclared(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	op := art.OperationByID("listUsers")
	assert.True(t, v.ValidateRequest(op, nil).Valid)
	assert.True(t, v.ValidateRequest(op, []byte(`{"anything":"goes"}`)).Valid)
	assert.False(t, v.HasRequestSchema(op))
}

func TestValidateResponseDeclaredStatus(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)
	op := art.OperationByID("createUser")

	ok := v.ValidateResponse(op, 201, []byte(`{"id":"u1","name":"Ada"}`))
	assert.True(t, ok.Valid)

	bad := v.ValidateResponse(op, 201, []byte(`{"id":"u1"}`))
	assert.False(t, bad.Valid)
}

func TestValidateResponseUndeclaredStatusPasses(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)
	op := art.OperationByID("createUser")

	res := v.ValidateResponse(op, 500, []byte(`not even json`))
	assert.True(t, res.Valid)
}

func TestUnsupportedConstructRejectedAtLoad(t *testing.T) {
	art := contract.TestArtifactWithSchemas("svc",
		map[string]any{
			"Thing": map[string]any{
				"type": "object",
				"patternProperties": map[string]any{
					"^x-": map[string]any{"type": "string"},
				},
			},
		},
		contract.Operation{ID: "put", Method: "PUT", Path: "/things", RequestSchema: "Thing"},
	)

	_, err := NewSchemaValidator(art)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patternProperties")
	assert.Contains(t, err.Error(), "Thing")
}

func TestUnsupportedNestedConstructRejected(t *testing.T) {
	art := contract.TestArtifactWithSchemas("svc",
		map[string]any{
			"Thing": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"items": map[string]any{
						"type":     "array",
						"contains": map[string]any{"type": "string"},
					},
				},
			},
		},
		contract.Operation{ID: "put", Method: "PUT", Path: "/things", RequestSchema: "Thing"},
	)

	_, err := NewSchemaValidator(art)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains")
}

func TestEnumAndOneOf(t *testing.T) {
	art := contract.TestArtifactWithSchemas("svc",
		map[string]any{
			"Payment": map[string]any{
				"oneOf": []any{
					map[string]any{
						"type":       "object",
						"required":   []string{"card"},
						"properties": map[string]any{"card": map[string]any{"type": "string"}},
					},
					map[string]any{
						"type":       "object",
						"required":   []string{"iban"},
						"properties": map[string]any{"iban": map[string]any{"type": "string"}},
					},
				},
			},
			"Status": map[string]any{
				"type": "string",
				"enum": []any{"pending", "settled"},
			},
		},
		contract.Operation{ID: "pay", Method: "POST", Path: "/payments", RequestSchema: "Payment",
			ResponseSchemas: map[int]string{200: "Status"}},
	)

	v, err := NewSchemaValidator(art)
	require.NoError(t, err)
	op := art.OperationByID("pay")

	assert.True(t, v.ValidateRequest(op, []byte(`{"card":"4111"}`)).Valid)
	assert.True(t, v.ValidateRequest(op, []byte(`{"iban":"DE89"}`)).Valid)
	assert.False(t, v.ValidateRequest(op, []byte(`{"cash":true}`)).Valid)

	assert.True(t, v.ValidateResponse(op, 200, []byte(`"settled"`)).Valid)
	assert.False(t, v.ValidateResponse(op, 200, []byte(`"refunded"`)).Valid)
}

func TestMaxErrorsTruncation(t *testing.T) {
	props := map[string]any{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		props[name] = map[string]any{"type": "string"}
	}
	art := contract.TestArtifactWithSchemas("svc",
		map[string]any{
			"Wide": map[string]any{
				"type":       "object",
				"properties": props,
			},
		},
		contract.Operation{ID: "put", Method: "PUT", Path: "/wide", RequestSchema: "Wide"},
	)

	v, err := NewSchemaValidator(art, WithMaxErrors(2))
	require.NoError(t, err)

	// Every property fails its type check, one failure per property.
	res := v.ValidateRequest(art.OperationByID("put"),
		[]byte(`{"a":1,"b":2,"c":3,"d":4,"e":5,"f":6}`))
	require.False(t, res.Valid)
	assert.LessOrEqual(t, len(res.Errors), 2)
	assert.True(t, res.Truncated)
}

func TestResultErrorsAreSorted(t *testing.T) {
	art := userArtifact(t)
	v, err := NewSchemaValidator(art)
	require.NoError(t, err)

	res := v.ValidateRequest(art.OperationByID("createUser"),
		[]byte(`{"age":-1,"extra":true}`))

	require.False(t, res.Valid)
	for i := 1; i < len(res.Errors); i++ {
		prev, cur := res.Errors[i-1], res.Errors[i]
		assert.LessOrEqual(t, prev.Path, cur.Path)
	}
}
