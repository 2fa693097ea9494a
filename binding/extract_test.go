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

	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/pipeline"
	"archimedes.dev/archimedes/validation"
)

// viewWithParams builds a resolved view carrying path parameters.
func viewWithParams(params map[string]string) *pipeline.RequestView {
	op := &contract.Operation{ID: "testOp", Method: http.MethodGet, Path: "/test"}

	return pipeline.TestView(http.MethodGet, "/test",
		pipeline.TestViewOperation(op, "/test", params),
	)
}

func TestPathBindsTaggedFields(t *testing.T) {
	t.Parallel()

	type params struct {
		UserID string `path:"userId"`
		Rev    int    `path:"rev"`
	}

	got, err := Path[params](viewWithParams(map[string]string{
		"userId": "u-42",
		"rev":    "7",
	}))
	require.NoError(t, err)

	assert.Equal(t, "u-42", got.UserID)
	assert.Equal(t, 7, got.Rev)
}

func TestPathMissingParameterFails(t *testing.T) {
	t.Parallel()

	type params struct {
		UserID string `path:"userId"`
	}

	_, err := Path[params](viewWithParams(nil))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourcePath, xerr.Source)
	assert.Equal(t, KindMissing, xerr.Kind)
	assert.Equal(t, "userId", xerr.Field)
	assert.Equal(t, http.StatusBadRequest, xerr.HTTPStatus())
}

func TestPathUnparseableParameterFails(t *testing.T) {
	t.Parallel()

	type params struct {
		Rev int `path:"rev"`
	}

	_, err := Path[params](viewWithParams(map[string]string{"rev": "seven"}))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourcePath, xerr.Source)
	assert.Equal(t, KindInvalidType, xerr.Kind)
	assert.Equal(t, "rev", xerr.Field)
	assert.Equal(t, http.StatusBadRequest, xerr.HTTPStatus())
}

func TestPathPresentButEmptyIsNotMissing(t *testing.T) {
	t.Parallel()

	type params struct {
		Slug string `path:"slug"`
	}

	got, err := Path[params](viewWithParams(map[string]string{"slug": ""}))
	require.NoError(t, err)

	assert.Empty(t, got.Slug)
}

func TestQueryBindsScalarsAndDefaults(t *testing.T) {
	t.Parallel()

	type params struct {
		Limit  int    `query:"limit" default:"20"`
		Offset int    `query:"offset" default:"40"`
		Q      string `query:"q"`
		Sort   string `query:"sort"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?limit=5&q=ada")

	got, err := Query[params](view)
	require.NoError(t, err)

	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 40, got.Offset, "absent parameter takes its default")
	assert.Equal(t, "ada", got.Q)
	assert.Empty(t, got.Sort, "absent parameter without default stays zero")
}

func TestQueryAbsentParametersLeaveZeroValues(t *testing.T) {
	t.Parallel()

	type params struct {
		Limit int    `query:"limit"`
		Q     string `query:"q"`
		Next  *int   `query:"next"`
	}

	got, err := Query[params](pipeline.TestView(http.MethodGet, "/list"))
	require.NoError(t, err)

	assert.Zero(t, got.Limit)
	assert.Empty(t, got.Q)
	assert.Nil(t, got.Next)
}

func TestQueryRepeatedAndBracketSlices(t *testing.T) {
	t.Parallel()

	type params struct {
		Tags []string `query:"tags"`
		IDs  []int    `query:"ids"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?tags=go&tags=http&ids[]=1&ids[]=2")

	got, err := Query[params](view)
	require.NoError(t, err)

	assert.Equal(t, []string{"go", "http"}, got.Tags)
	assert.Equal(t, []int{1, 2}, got.IDs)
}

func TestQueryCSVSlices(t *testing.T) {
	t.Parallel()

	type params struct {
		Tags []string `query:"tags"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?tags=go,%20http,grpc")

	got, err := Query[params](view)
	require.NoError(t, err)
	assert.Equal(t, []string{"go, http,grpc"}, got.Tags, "commas are literal without the option")

	got, err = Query[params](view, WithCSVSlices())
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "http", "grpc"}, got.Tags)
}

func TestQueryMapFields(t *testing.T) {
	t.Parallel()

	type params struct {
		Labels map[string]string `query:"labels"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?labels.env=prod&labels.tier=web")

	got, err := Query[params](view)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"env": "prod", "tier": "web"}, got.Labels)
}

func TestQueryNestedStruct(t *testing.T) {
	t.Parallel()

	type address struct {
		City string `query:"city"`
		Zip  string `query:"zip"`
	}
	type params struct {
		Name    string  `query:"name"`
		Address address `query:"address"`
	}

	view := pipeline.TestView(http.MethodGet, "/x?name=ada&address.city=Berlin&address.zip=10117")

	got, err := Query[params](view)
	require.NoError(t, err)

	assert.Equal(t, "ada", got.Name)
	assert.Equal(t, "Berlin", got.Address.City)
	assert.Equal(t, "10117", got.Address.Zip)
}

func TestQueryNestedPointerStructAllocatedOnlyWhenPresent(t *testing.T) {
	t.Parallel()

	type address struct {
		City string `query:"city"`
	}
	type params struct {
		Address *address `query:"address"`
	}

	got, err := Query[params](pipeline.TestView(http.MethodGet, "/x?unrelated=1"))
	require.NoError(t, err)
	assert.Nil(t, got.Address)

	got, err = Query[params](pipeline.TestView(http.MethodGet, "/x?address.city=Berlin"))
	require.NoError(t, err)
	require.NotNil(t, got.Address)
	assert.Equal(t, "Berlin", got.Address.City)
}

func TestQueryEmbeddedStructFlattens(t *testing.T) {
	t.Parallel()

	type Page struct {
		Limit  int `query:"limit" default:"20"`
		Offset int `query:"offset"`
	}
	type params struct {
		Page
		Q string `query:"q"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?offset=60&q=ada")

	got, err := Query[params](view)
	require.NoError(t, err)

	assert.Equal(t, 20, got.Limit)
	assert.Equal(t, 60, got.Offset)
	assert.Equal(t, "ada", got.Q)
}

func TestQueryEmbeddedPointerStructAllocates(t *testing.T) {
	t.Parallel()

	type Page struct {
		Limit int `query:"limit"`
	}
	type params struct {
		*Page
		Q string `query:"q"`
	}

	got, err := Query[params](pipeline.TestView(http.MethodGet, "/list?limit=5&q=ada"))
	require.NoError(t, err)

	require.NotNil(t, got.Page)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, "ada", got.Q)
}

func TestQueryConversionFailure(t *testing.T) {
	t.Parallel()

	type params struct {
		Limit int `query:"limit"`
	}

	_, err := Query[params](pipeline.TestView(http.MethodGet, "/list?limit=plenty"))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceQuery, xerr.Source)
	assert.Equal(t, KindDeserialization, xerr.Kind)
	assert.Equal(t, "limit", xerr.Field)
	assert.Equal(t, http.StatusBadRequest, xerr.HTTPStatus())
}

func TestQueryValidatorFailureMapsToUnprocessable(t *testing.T) {
	t.Parallel()

	type params struct {
		Limit int `query:"limit" validate:"max=100"`
	}

	view := pipeline.TestView(http.MethodGet, "/list?limit=500")

	_, err := Query[params](view, WithValidator(ValidatorFunc(validation.Struct)))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceQuery, xerr.Source)
	assert.Equal(t, KindValidation, xerr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, xerr.HTTPStatus())
	assert.Equal(t, "VALIDATION_FAILED", xerr.Code())
}

func TestQueryIgnoresDashTag(t *testing.T) {
	t.Parallel()

	type params struct {
		Q        string `query:"q"`
		Internal string `query:"-"`
	}

	got, err := Query[params](pipeline.TestView(http.MethodGet, "/x?q=a&Internal=nope"))
	require.NoError(t, err)

	assert.Equal(t, "a", got.Q)
	assert.Empty(t, got.Internal)
}

func TestHeadersBindTaggedFields(t *testing.T) {
	t.Parallel()

	type params struct {
		RequestID string `header:"X-Request-Id"`
		Retries   int    `header:"X-Retries"`
		Absent    string `header:"X-Absent"`
	}

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("X-Request-Id", "r-1"),
		pipeline.TestViewHeader("X-Retries", "3"),
	)

	got, err := Headers[params](view)
	require.NoError(t, err)

	assert.Equal(t, "r-1", got.RequestID)
	assert.Equal(t, 3, got.Retries)
	assert.Empty(t, got.Absent)
}

func TestHeadersLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	type params struct {
		Trace string `header:"x-trace-id"`
	}

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("X-Trace-Id", "t-9"),
	)

	got, err := Headers[params](view)
	require.NoError(t, err)
	assert.Equal(t, "t-9", got.Trace)
}

func TestHeaderSingleValue(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("X-API-Version", "3"),
	)

	version, err := Header[int](view, "X-API-Version")
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestHeaderMissingFails(t *testing.T) {
	t.Parallel()

	_, err := Header[string](pipeline.TestView(http.MethodGet, "/x"), "X-API-Version")

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceHeader, xerr.Source)
	assert.Equal(t, KindMissing, xerr.Kind)
	assert.Equal(t, "X-API-Version", xerr.Field)
}

func TestHeaderUnparseableFails(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("X-API-Version", "three"),
	)

	_, err := Header[int](view, "X-API-Version")

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindInvalidType, xerr.Kind)
	assert.Equal(t, http.StatusBadRequest, xerr.HTTPStatus())
}

func TestCookieBindsTaggedFields(t *testing.T) {
	t.Parallel()

	type params struct {
		Session string `cookie:"session"`
		Theme   string `cookie:"theme"`
		Absent  string `cookie:"absent"`
	}

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("Cookie", "session=abc; theme=dark"),
	)

	got, err := Cookie[params](view)
	require.NoError(t, err)

	assert.Equal(t, "abc", got.Session)
	assert.Equal(t, "dark", got.Theme)
	assert.Empty(t, got.Absent)
}

func TestCookieUnparseableValueFails(t *testing.T) {
	t.Parallel()

	type params struct {
		Count int `cookie:"count"`
	}

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("Cookie", "count=many"),
	)

	_, err := Cookie[params](view)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceCookie, xerr.Source)
	assert.Equal(t, KindInvalidType, xerr.Kind)
	assert.Equal(t, "count", xerr.Field)
}

func TestCookiesMapUnescapesAndKeepsFirst(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodGet, "/x",
		pipeline.TestViewHeader("Cookie", "greeting=hello%20world; pick=first; pick=second"),
	)

	got := Cookies(view)

	assert.Equal(t, "hello world", got["greeting"])
	assert.Equal(t, "first", got["pick"])
}

func TestExtractionIntoNonStructFails(t *testing.T) {
	t.Parallel()

	_, err := Query[int](pipeline.TestView(http.MethodGet, "/x?limit=5"))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindCustom, xerr.Kind)
	assert.ErrorIs(t, err, ErrTargetNotStruct)
}
