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

package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/router"
)

func userServiceResolver(t *testing.T) *Resolver {
	t.Helper()

	art := TestArtifact("user-service",
		Operation{ID: "listUsers", Method: "GET", Path: "/users"},
		Operation{ID: "createUser", Method: "POST", Path: "/users"},
		Operation{ID: "getUser", Method: "GET", Path: "/users/{userId}"},
		Operation{ID: "getUserPost", Method: "GET", Path: "/users/{userId}/posts/{postId}"},
	)

	r, err := NewResolver(art)
	require.NoError(t, err)

	return r
}

func TestResolveMatchesOperations(t *testing.T) {
	t.Parallel()

	r := userServiceResolver(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantOp     string
		wantTmpl   string
		wantParams map[string]string
	}{
		{
			name:     "static path",
			method:   "GET",
			path:     "/users",
			wantOp:   "listUsers",
			wantTmpl: "/users",
		},
		{
			name:     "same path other method",
			method:   "POST",
			path:     "/users",
			wantOp:   "createUser",
			wantTmpl: "/users",
		},
		{
			name:       "single parameter",
			method:     "GET",
			path:       "/users/42",
			wantOp:     "getUser",
			wantTmpl:   "/users/{userId}",
			wantParams: map[string]string{"userId": "42"},
		},
		{
			name:       "nested parameters",
			method:     "GET",
			path:       "/users/42/posts/7",
			wantOp:     "getUserPost",
			wantTmpl:   "/users/{userId}/posts/{postId}",
			wantParams: map[string]string{"userId": "42", "postId": "7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := r.Resolve(tt.method, tt.path)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOp, res.OperationID())
			assert.Equal(t, tt.wantTmpl, res.Template)
			if tt.wantParams == nil {
				assert.Empty(t, res.Params)
			} else {
				assert.Equal(t, tt.wantParams, res.Params)
			}
		})
	}
}

func TestResolveUnknownPathReportsNotFound(t *testing.T) {
	t.Parallel()

	r := userServiceResolver(t)

	_, err := r.Resolve("GET", "/orders/42")

	var nf *OperationNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "GET", nf.Method)
	assert.Equal(t, "/orders/42", nf.Path)
	assert.Contains(t, nf.Error(), "no operation for GET /orders/42")
}

func TestResolveWrongMethodReportsAllowedSet(t *testing.T) {
	t.Parallel()

	r := userServiceResolver(t)

	_, err := r.Resolve("DELETE", "/users")

	var mna *router.MethodNotAllowedError
	require.ErrorAs(t, err, &mna)
	assert.Equal(t, "DELETE", mna.Method)
	assert.Equal(t, []string{"GET", "POST"}, mna.Allow)
}

func TestResolveEmptyResolutionHasNoOperationID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Resolution{}.OperationID())
}

func TestNewResolverRejectsAmbiguousTemplates(t *testing.T) {
	t.Parallel()

	art := TestArtifact("ambiguous",
		Operation{ID: "byId", Method: "GET", Path: "/things/{id}"},
		Operation{ID: "byName", Method: "GET", Path: "/things/{name}"},
	)

	_, err := NewResolver(art)

	require.Error(t, err)
	assert.ErrorIs(t, err, router.ErrAmbiguousRoute)
	assert.Contains(t, err.Error(), "byName")
}
