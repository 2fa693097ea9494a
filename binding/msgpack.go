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
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"archimedes.dev/archimedes/pipeline"
)

// Msgpack decodes the request body as MessagePack into T. Accepted media
// types are application/msgpack and application/x-msgpack; fields map by
// `msgpack` tags.
//
//	msg, err := binding.Msgpack[IngestEvent](view)
func Msgpack[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	var out T
	cfg := newConfig(opts)
	body, err := decodableBody(view, cfg, "application/msgpack", "application/x-msgpack")
	if err != nil {
		return out, err
	}

	dec := msgpack.NewDecoder(bytes.NewReader(body))
	if cfg.strictJSON {
		dec.DisallowUnknownFields(true)
	}
	if err := dec.Decode(&out); err != nil {
		return out, wrapError(SourceBody, KindDeserialization, "", err)
	}
	if err := runValidator(cfg, &out, SourceBody); err != nil {
		return out, err
	}

	return out, nil
}
