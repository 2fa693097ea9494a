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
	"fmt"
	"unicode/utf8"
)

// Response is what a foreign handler hands back across the ABI. It covers
// the C archimedes_response_data struct plus response headers for in-process
// embedders the C layout cannot express. The marshalling shim has already
// resolved memory ownership by the time this value exists: Body and the
// header slices are Go memory owned by the core.
type Response struct {
	// Status is the HTTP status code. Anything outside 100-599 marks the
	// response malformed and the request fails as a handler error.
	Status int

	// Body is the response payload, nil for empty responses.
	Body []byte

	// ContentType overrides the default application/json content type when
	// non-empty.
	ContentType string

	// HeaderNames and HeaderValues are additional response headers as
	// parallel slices. Names repeat to send a header twice.
	HeaderNames  []string
	HeaderValues []string
}

// Validate checks the structural rules a response must satisfy before it
// can cross into the pipeline. Violations are programming errors in the
// binding, so the messages name the broken field precisely.
func (r *Response) Validate() error {
	if r == nil {
		return fmt.Errorf("binding returned no response")
	}
	if r.Status < 100 || r.Status > 599 {
		return fmt.Errorf("binding returned status %d outside 100-599", r.Status)
	}
	if len(r.HeaderNames) != len(r.HeaderValues) {
		return fmt.Errorf("binding returned %d header names but %d values",
			len(r.HeaderNames), len(r.HeaderValues))
	}
	if r.ContentType != "" && !utf8.ValidString(r.ContentType) {
		return fmt.Errorf("binding returned a content type that is not valid UTF-8")
	}
	for i, name := range r.HeaderNames {
		if name == "" {
			return fmt.Errorf("binding returned an empty header name at index %d", i)
		}
	}

	return nil
}
