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

package router

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no route matches the requested path on any method.
	ErrNotFound = errors.New("route not found")

	// ErrMethodNotAllowed indicates the path is routable but not with the
	// requested method. Resolve returns it wrapped in a
	// [*MethodNotAllowedError] carrying the allowed methods.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrDuplicateRoute indicates a second registration for the same
	// (method, template) pair.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrAmbiguousRoute indicates two templates that would match the same
	// concrete paths with no literal preference between them, such as
	// /users/{id} and /users/{name}.
	ErrAmbiguousRoute = errors.New("ambiguous route")

	// ErrInvalidTemplate indicates a malformed path template.
	ErrInvalidTemplate = errors.New("invalid path template")
)

// MethodNotAllowedError reports a path that exists under other methods.
type MethodNotAllowedError struct {
	// Method is the requested method.
	Method string

	// Allow lists the methods registered for the path, sorted, suitable for
	// an Allow response header.
	Allow []string
}

// Error implements the error interface.
func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s not allowed (allow: %s)", e.Method, strings.Join(e.Allow, ", "))
}

// Is makes the error match [ErrMethodNotAllowed] under errors.Is.
func (e *MethodNotAllowedError) Is(target error) bool {
	return target == ErrMethodNotAllowed
}
