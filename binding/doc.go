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

// Package binding extracts typed handler parameters from a request view.
//
// Each extractor materialises one value from the view and reports failures as
// an [ExtractionError] carrying a source, a failure kind, and the offending
// field. Handlers (or the typed adapters in the handler package) run
// extractors in sequence and stop at the first error:
//
//	params, err := binding.Path[GetUserParams](view)
//	if err != nil {
//	    return err
//	}
//	body, err := binding.JSON[UpdateUserRequest](view)
//	if err != nil {
//	    return err
//	}
//
// # Extractor catalog
//
//	binding.Path[T](view)        // typed struct from path parameters
//	binding.Query[T](view)       // typed struct from the query string
//	binding.JSON[T](view)        // JSON body, size-capped
//	binding.Form[T](view)        // application/x-www-form-urlencoded body
//	binding.Msgpack[T](view)     // MessagePack body
//	binding.Proto[T](view)       // protobuf body for proto.Message targets
//	binding.RawBody(view)        // raw body bytes
//	binding.BodyString(view)     // body as UTF-8 text
//	binding.Header[T](view, n)   // single header parsed into T
//	binding.Headers[T](view)     // typed struct from headers
//	binding.Cookie[T](view)      // typed struct from cookies
//	binding.Cookies(view)        // name → value cookie map
//	binding.Multipart(view)      // sequential multipart/form-data parts
//	binding.Inject[T](view)      // shared dependency from the container
//
// Struct extractors walk the target's fields by tag (`path`, `query`, `form`,
// `header`, `cookie`) with support for nested structs (dot notation), slices,
// string-keyed maps, pointers, `default` tags, and custom converters.
//
// # Failure handling
//
// [Optional] turns an extraction failure into absence; [Try] captures the
// outcome in a [Result] so the handler can inspect it:
//
//	limit, ok := binding.Optional(binding.Header[int](view, "X-Limit"))
//	res := binding.Try(binding.JSON[Patch](view))
//
// Extraction failures map to HTTP statuses by kind: missing, invalid-type,
// and deserialization are 400; validation is 422; payload-too-large is 413;
// unsupported-media-type is 415; custom is 500.
package binding
