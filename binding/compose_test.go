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

package binding

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/pipeline"
)

func TestOptionalKeepsSuccessfulValue(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("X-Limit", "25"),
	)

	limit, ok := Optional(Header[int](view, "X-Limit"))
	assert.True(t, ok)
	assert.Equal(t, 25, limit)
}

func TestOptionalTurnsFailureIntoAbsence(t *testing.T) {
	t.Parallel()

	limit, ok := Optional(Header[int](pipeline.TestView(http.MethodGet, "/x"), "X-Limit"))
	assert.False(t, ok)
	assert.Zero(t, limit)
}

func TestTryCapturesSuccess(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodPost, "/users",
		pipeline.TestViewJSON(map[string]any{"name": "Ada"}),
	)

	res := Try(JSON[createUserRequest](view))
	require.True(t, res.Ok())
	assert.Nil(t, res.Err)
	assert.Equal(t, "Ada", res.Value.Name)
}

func TestTryCapturesFailureDetail(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodPost, "/users",
		pipeline.TestViewBody([]byte(`{"name":`)),
		pipeline.TestViewHeader("Content-Type", "application/json"),
	)

	res := Try(JSON[createUserRequest](view))
	require.False(t, res.Ok())
	require.NotNil(t, res.Err)
	assert.Equal(t, SourceBody, res.Err.Source)
	assert.Equal(t, KindDeserialization, res.Err.Kind)
}
