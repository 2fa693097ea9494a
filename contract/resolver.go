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
	"errors"
	"fmt"

	"archimedes.dev/archimedes/router"
)

// Resolver binds raw (method, path) pairs to contract operations. It is
// built once from a verified artifact and is immutable afterwards.
type Resolver struct {
	artifact *Artifact
	index    *router.Router[*Operation]
}

// Resolution is the outcome of binding a request to the contract.
type Resolution struct {
	// Operation is the matched contract operation.
	Operation *Operation

	// Template is the matched path template.
	Template string

	// Params maps template parameter names to the concrete segments they
	// captured. Values are raw strings; typed coercion happens in the
	// extractors against the handler's declared types.
	Params map[string]string
}

// OperationID returns the matched operation's id.
func (r Resolution) OperationID() string {
	if r.Operation == nil {
		return ""
	}

	return r.Operation.ID
}

// OperationNotFoundError reports a request no contract operation covers.
type OperationNotFoundError struct {
	Method string
	Path   string
}

// Error implements the error interface.
func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("no operation for %s %s", e.Method, e.Path)
}

// NewResolver indexes every artifact operation into a router. Artifacts
// already reject duplicate (method, path) pairs, so the only registration
// failures left are ambiguous templates.
func NewResolver(a *Artifact) (*Resolver, error) {
	idx := router.New[*Operation]()
	for i := range a.Operations {
		op := &a.Operations[i]
		if err := idx.Register(op.Method, op.Path, op.ID, op); err != nil {
			return nil, fmt.Errorf("index operation %s: %w", op.ID, err)
		}
	}

	return &Resolver{artifact: a, index: idx}, nil
}

// Resolve matches a request against the contract. A path without any
// operation yields *OperationNotFoundError; a path that exists only under
// other methods yields *router.MethodNotAllowedError so the transport can
// answer 405 with an Allow header.
func (r *Resolver) Resolve(method, path string) (Resolution, error) {
	m, err := r.index.Resolve(method, path)
	if err != nil {
		var mna *router.MethodNotAllowedError
		if errors.As(err, &mna) {
			return Resolution{}, mna
		}

		return Resolution{}, &OperationNotFoundError{Method: method, Path: path}
	}

	return Resolution{Operation: m.Handler, Template: m.Template, Params: m.Params}, nil
}

// Artifact returns the artifact the resolver was built from.
func (r *Resolver) Artifact() *Artifact { return r.artifact }
