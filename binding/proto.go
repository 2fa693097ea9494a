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
	"google.golang.org/protobuf/proto"

	"archimedes.dev/archimedes/pipeline"
)

// Proto decodes the request body as a protocol buffer message. T must be a
// pointer to a generated message type. Accepted media types are
// application/protobuf, application/x-protobuf, and application/octet-stream.
//
//	req, err := binding.Proto[*ordersv1.CreateOrderRequest](view)
func Proto[T proto.Message](view *pipeline.RequestView, opts ...Option) (T, error) {
	var zero T
	cfg := newConfig(opts)
	body, err := decodableBody(view, cfg,
		"application/protobuf", "application/x-protobuf", "application/octet-stream")
	if err != nil {
		return zero, err
	}

	// T is a pointer type; allocate the message it points at.
	out := zero.ProtoReflect().New().Interface().(T)
	unmarshal := proto.UnmarshalOptions{DiscardUnknown: true}
	if err := unmarshal.Unmarshal(body, out); err != nil {
		return zero, wrapError(SourceBody, KindDeserialization, "", err)
	}
	if err := runValidator(cfg, out, SourceBody); err != nil {
		return zero, err
	}

	return out, nil
}
