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
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"archimedes.dev/archimedes/pipeline"
	"archimedes.dev/archimedes/validation"
)

type ingestEvent struct {
	Name  string `msgpack:"name" validate:"required"`
	Count int    `msgpack:"count"`
}

// msgpackView builds a view with a MessagePack body under the given media type.
func msgpackView(t *testing.T, v any, mediaType string) *pipeline.RequestView {
	t.Helper()

	raw, err := msgpack.Marshal(v)
	require.NoError(t, err)

	return pipeline.TestView(http.MethodPost, "/ingest",
		pipeline.TestViewBody(raw),
		pipeline.TestViewHeader("Content-Type", mediaType),
	)
}

func TestMsgpackDecodesBody(t *testing.T) {
	t.Parallel()

	view := msgpackView(t, ingestEvent{Name: "cpu", Count: 3}, "application/msgpack")

	got, err := Msgpack[ingestEvent](view)
	require.NoError(t, err)
	assert.Equal(t, "cpu", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestMsgpackAcceptsAlternateMediaType(t *testing.T) {
	t.Parallel()

	view := msgpackView(t, ingestEvent{Name: "mem"}, "application/x-msgpack")

	got, err := Msgpack[ingestEvent](view)
	require.NoError(t, err)
	assert.Equal(t, "mem", got.Name)
}

func TestMsgpackRejectsWrongContentType(t *testing.T) {
	t.Parallel()

	view := msgpackView(t, ingestEvent{Name: "cpu"}, "application/json")

	_, err := Msgpack[ingestEvent](view)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindUnsupportedMediaType, xerr.Kind)
	assert.Equal(t, http.StatusUnsupportedMediaType, xerr.HTTPStatus())
}

func TestMsgpackMalformedBodyFails(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodPost, "/ingest",
		pipeline.TestViewBody([]byte{0xc1}),
		pipeline.TestViewHeader("Content-Type", "application/msgpack"),
	)

	_, err := Msgpack[ingestEvent](view)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceBody, xerr.Source)
	assert.Equal(t, KindDeserialization, xerr.Kind)
}

func TestMsgpackEmptyBodyFails(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodPost, "/ingest",
		pipeline.TestViewHeader("Content-Type", "application/msgpack"),
	)

	_, err := Msgpack[ingestEvent](view)
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestMsgpackStrictRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"name": "cpu", "count": 3, "surprise": true}

	_, err := Msgpack[ingestEvent](msgpackView(t, payload, "application/msgpack"))
	require.NoError(t, err, "unknown fields pass without strict mode")

	_, err = Msgpack[ingestEvent](msgpackView(t, payload, "application/msgpack"), WithStrictJSON())

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindDeserialization, xerr.Kind)
}

func TestMsgpackValidatorFailureMapsToUnprocessable(t *testing.T) {
	t.Parallel()

	view := msgpackView(t, ingestEvent{Count: 1}, "application/msgpack")

	_, err := Msgpack[ingestEvent](view, WithValidator(ValidatorFunc(validation.Struct)))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindValidation, xerr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, xerr.HTTPStatus())
}

// protoView builds a view carrying a marshalled protobuf message.
func protoView(t *testing.T, msg proto.Message, mediaType string) *pipeline.RequestView {
	t.Helper()

	raw, err := proto.Marshal(msg)
	require.NoError(t, err)

	return pipeline.TestView(http.MethodPost, "/ingest",
		pipeline.TestViewBody(raw),
		pipeline.TestViewHeader("Content-Type", mediaType),
	)
}

func TestProtoDecodesBody(t *testing.T) {
	t.Parallel()

	payload, err := structpb.NewStruct(map[string]any{"name": "ada", "count": 3.0})
	require.NoError(t, err)

	got, err := Proto[*structpb.Struct](protoView(t, payload, "application/x-protobuf"))
	require.NoError(t, err)

	assert.Equal(t, "ada", got.Fields["name"].GetStringValue())
	assert.Equal(t, 3.0, got.Fields["count"].GetNumberValue())
}

func TestProtoAcceptsOctetStream(t *testing.T) {
	t.Parallel()

	payload, err := structpb.NewStruct(map[string]any{"name": "ada"})
	require.NoError(t, err)

	got, err := Proto[*structpb.Struct](protoView(t, payload, "application/octet-stream"))
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Fields["name"].GetStringValue())
}

func TestProtoRejectsWrongContentType(t *testing.T) {
	t.Parallel()

	payload, err := structpb.NewStruct(map[string]any{"name": "ada"})
	require.NoError(t, err)

	_, err = Proto[*structpb.Struct](protoView(t, payload, "text/plain"))

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindUnsupportedMediaType, xerr.Kind)
}

func TestProtoMalformedBodyFails(t *testing.T) {
	t.Parallel()

	view := pipeline.TestView(http.MethodPost, "/ingest",
		pipeline.TestViewBody([]byte{0xff, 0xff, 0xff}),
		pipeline.TestViewHeader("Content-Type", "application/protobuf"),
	)

	_, err := Proto[*structpb.Struct](view)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, SourceBody, xerr.Source)
	assert.Equal(t, KindDeserialization, xerr.Kind)
}
