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
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrValidation is the sentinel for validation failures. Use
// errors.Is(err, ErrValidation) to detect them.
var ErrValidation = errors.New("validation")

// FieldError represents a single validation failure for one field.
type FieldError struct {
	Path    string         `json:"path"`           // JSON path, e.g. "items.2.price"
	Code    string         `json:"code"`           // stable code, e.g. "schema.required" or "tag.min"
	Message string         `json:"message"`        // human-readable message
	Meta    map[string]any `json:"meta,omitempty"` // additional detail (schema URL, tag, param)
}

// Error returns "path: message", or just the message for root failures.
func (e FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns [ErrValidation] for errors.Is compatibility.
func (e FieldError) Unwrap() error {
	return ErrValidation
}

// Error aggregates validation failures for one payload.
type Error struct {
	Fields []FieldError `json:"fields"`

	// Truncated is set when the failure list was cut at the configured
	// maximum.
	Truncated bool `json:"truncated,omitempty"`
}

// Add appends a field failure.
func (e *Error) Add(path, code, message string, meta map[string]any) {
	e.Fields = append(e.Fields, FieldError{Path: path, Code: code, Message: message, Meta: meta})
}

// Sort orders failures by path then code, giving deterministic output
// for logs and tests.
func (e *Error) Sort() {
	sort.Slice(e.Fields, func(i, j int) bool {
		if e.Fields[i].Path != e.Fields[j].Path {
			return e.Fields[i].Path < e.Fields[j].Path
		}

		return e.Fields[i].Code < e.Fields[j].Code
	})
}

// Error returns all failures joined with "; ".
func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}

	return strings.Join(msgs, "; ")
}

// Unwrap returns [ErrValidation] for errors.Is compatibility.
func (e *Error) Unwrap() error {
	return ErrValidation
}

// HTTPStatus maps validation failures to 422 Unprocessable Entity.
func (e *Error) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

// First returns the first failure, or a zero FieldError when empty.
func (e *Error) First() FieldError {
	if len(e.Fields) == 0 {
		return FieldError{}
	}

	return e.Fields[0]
}
