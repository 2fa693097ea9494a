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

package pipeline

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/identity"
)

// MiddlewareContext carries what the stages establish about a request:
// request id, trace identifiers, the authenticated caller, the operation id
// and the policy decision. The pipeline seals it before the handler runs;
// the established fields are then immutable for the rest of the request.
// Typed extensions remain writable after seal so handlers can hand data to
// their own helpers.
type MiddlewareContext struct {
	sealed    bool
	startedAt time.Time

	requestID   string
	traceID     string
	spanID      string
	operationID string

	caller    identity.Caller
	callerSet bool

	decision    authz.Decision
	decisionSet bool

	extMu sync.RWMutex
	ext   map[reflect.Type]any
}

// NewMiddlewareContext returns an empty, unsealed context stamped with the
// current time.
func NewMiddlewareContext() *MiddlewareContext {
	return &MiddlewareContext{startedAt: time.Now()}
}

// StartedAt returns the instant the pipeline accepted the request.
func (mc *MiddlewareContext) StartedAt() time.Time { return mc.startedAt }

func (mc *MiddlewareContext) mustBeUnsealed(field string) {
	if mc.sealed {
		panic(fmt.Sprintf("pipeline: %s mutated after seal", field))
	}
}

// seal freezes the established fields. Called once by dispatch before the
// handler is invoked.
func (mc *MiddlewareContext) seal() {
	mc.sealed = true
}

// Sealed reports whether the context has been frozen.
func (mc *MiddlewareContext) Sealed() bool { return mc.sealed }

// SetRequestID records the request correlation id. Panics after seal.
func (mc *MiddlewareContext) SetRequestID(id string) {
	mc.mustBeUnsealed("request id")
	mc.requestID = id
}

// RequestID returns the request correlation id.
func (mc *MiddlewareContext) RequestID() string { return mc.requestID }

// SetTrace records the trace and span identifiers. Panics after seal.
func (mc *MiddlewareContext) SetTrace(traceID, spanID string) {
	mc.mustBeUnsealed("trace")
	mc.traceID = traceID
	mc.spanID = spanID
}

// TraceID returns the trace id, "" when tracing is off.
func (mc *MiddlewareContext) TraceID() string { return mc.traceID }

// SpanID returns the span id, "" when tracing is off.
func (mc *MiddlewareContext) SpanID() string { return mc.spanID }

// SetOperationID records the resolved operation id. Panics after seal.
func (mc *MiddlewareContext) SetOperationID(id string) {
	mc.mustBeUnsealed("operation id")
	mc.operationID = id
}

// OperationID returns the resolved operation id, "" when no operation
// matched.
func (mc *MiddlewareContext) OperationID() string { return mc.operationID }

// SetCaller records the authenticated caller. Panics after seal.
func (mc *MiddlewareContext) SetCaller(c identity.Caller) {
	mc.mustBeUnsealed("caller")
	mc.caller = c
	mc.callerSet = true
}

// Caller returns the authenticated caller and whether identity
// establishment ran.
func (mc *MiddlewareContext) Caller() (identity.Caller, bool) {
	return mc.caller, mc.callerSet
}

// SetDecision records the policy decision. Panics after seal.
func (mc *MiddlewareContext) SetDecision(d authz.Decision) {
	mc.mustBeUnsealed("decision")
	mc.decision = d
	mc.decisionSet = true
}

// Decision returns the policy decision and whether authorization ran.
func (mc *MiddlewareContext) Decision() (authz.Decision, bool) {
	return mc.decision, mc.decisionSet
}

// SetExtension stores v under its concrete type. One value per type;
// storing again replaces. Usable before and after seal.
func SetExtension[T any](mc *MiddlewareContext, v T) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	mc.extMu.Lock()
	defer mc.extMu.Unlock()

	if mc.ext == nil {
		mc.ext = make(map[reflect.Type]any)
	}
	mc.ext[key] = v
}

// Extension retrieves the value stored for type T.
func Extension[T any](mc *MiddlewareContext) (T, bool) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	mc.extMu.RLock()
	defer mc.extMu.RUnlock()

	v, ok := mc.ext[key]
	if !ok {
		var zero T

		return zero, false
	}

	return v.(T), true
}
