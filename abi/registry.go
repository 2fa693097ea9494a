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
	"net/http"
	"sort"
	"sync"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/pipeline"
)

// Callback is one foreign handler invocation. The marshalling shim behind
// it calls through the C function pointer captured at registration; an
// error return means the invocation itself failed (the callback could not
// be reached or produced no response), not that the handler chose an error
// status.
//
// Callbacks are invoked from arbitrary worker goroutines, possibly many at
// once. Synchronization of the binding's own state, including the user-data
// pointer it registered with, is the binding's responsibility.
type Callback func(req *Request) (*Response, error)

// Registry holds the foreign callbacks by operation id and enforces the
// ABI registration rules: at most one callback per operation, and no
// registrations once the server is serving.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
	frozen    bool
}

// NewRegistry returns an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]Callback)}
}

// Register binds a callback to an operation id.
func (r *Registry) Register(operationID string, cb Callback) error {
	if operationID == "" {
		return errors.New(errors.KindHandlerRegistration, "empty operation id")
	}
	if cb == nil {
		return errors.Newf(errors.KindHandlerRegistration, "nil callback for operation %q", operationID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Newf(errors.KindHandlerRegistration,
			"registry is frozen: cannot register %q", operationID)
	}
	if _, dup := r.callbacks[operationID]; dup {
		return errors.Newf(errors.KindHandlerRegistration,
			"operation %q already has a foreign handler", operationID)
	}
	r.callbacks[operationID] = cb

	return nil
}

// remove rolls back a registration whose pipeline binding failed. Only the
// host calls it, before the registry freezes.
func (r *Registry) remove(operationID string) {
	r.mu.Lock()
	delete(r.callbacks, operationID)
	r.mu.Unlock()
}

// Callback returns the callback registered for the operation.
func (r *Registry) Callback(operationID string) (Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.callbacks[operationID]

	return cb, ok
}

// Freeze seals the registry. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry has been sealed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}

// Operations lists the operation ids with a registered callback, sorted.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.callbacks))
	for id := range r.callbacks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Len reports the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.callbacks)
}

// Adapt turns a foreign callback into a pipeline handler. The handler
// flattens the request, invokes the callback, and translates its response;
// an invocation failure or a malformed response becomes a handler error
// with the cause preserved in the last-error slot for the C caller.
func Adapt(cb Callback) pipeline.Handler {
	return func(mc *pipeline.MiddlewareContext, view *pipeline.RequestView) *pipeline.Response {
		resp, err := cb(NewRequest(mc, view))
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			SetLastError(errors.Wrapf(errors.KindHandlerFailure, err,
				"foreign handler for operation %q", mc.OperationID()))

			return pipeline.Envelope(http.StatusInternalServerError,
				errors.KindHandlerFailure.Code(),
				"foreign handler failed", mc.RequestID())
		}

		out := &pipeline.Response{Status: resp.Status, Body: resp.Body}
		if resp.ContentType != "" {
			out.SetHeader("Content-Type", resp.ContentType)
		}
		for i, name := range resp.HeaderNames {
			out.AddHeader(name, resp.HeaderValues[i])
		}

		return out
	}
}
