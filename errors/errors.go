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

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the stable Archimedes failure
// categories. Every Kind maps to a stable code string, a default HTTP
// status, and a numeric code shared with the binding ABI.
//
// Kinds are append-only: existing values never change meaning so that
// clients and foreign bindings can rely on them.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota

	// KindConfiguration indicates invalid or inconsistent configuration.
	KindConfiguration

	// KindArtifactLoad indicates a contract artifact could not be loaded,
	// parsed, or checksum-verified.
	KindArtifactLoad

	// KindPolicyLoad indicates an authorization policy bundle could not be
	// loaded or compiled.
	KindPolicyLoad

	// KindHandlerRegistration indicates a handler could not be registered
	// (duplicate operation, unknown operation, registry frozen).
	KindHandlerRegistration

	// KindServerStart indicates the server failed to start listening.
	KindServerStart

	// KindOperationNotFound indicates no contract operation matched the
	// request.
	KindOperationNotFound

	// KindHandlerFailure indicates a handler returned an error or panicked.
	KindHandlerFailure

	// KindValidationFailure indicates a request or response body failed
	// schema validation.
	KindValidationFailure

	// KindAuthorizationDenied indicates the policy engine denied the request.
	KindAuthorizationDenied

	// KindNullPointer indicates a required pointer crossing the binding ABI
	// was nil.
	KindNullPointer

	// KindInvalidUTF8 indicates bytes that were required to be UTF-8 were not.
	KindInvalidUTF8
)

// kindInfo carries the stable projection of a Kind.
type kindInfo struct {
	code    string
	status  int
	abiCode int
}

var kinds = map[Kind]kindInfo{
	KindInternal:            {code: "INTERNAL_ERROR", status: http.StatusInternalServerError, abiCode: 99},
	KindConfiguration:       {code: "INVALID_CONFIG", status: http.StatusInternalServerError, abiCode: 1},
	KindArtifactLoad:        {code: "CONTRACT_LOAD_ERROR", status: http.StatusInternalServerError, abiCode: 2},
	KindPolicyLoad:          {code: "POLICY_LOAD_ERROR", status: http.StatusInternalServerError, abiCode: 3},
	KindHandlerRegistration: {code: "HANDLER_REGISTRATION", status: http.StatusInternalServerError, abiCode: 4},
	KindServerStart:         {code: "SERVER_START_ERROR", status: http.StatusInternalServerError, abiCode: 5},
	KindOperationNotFound:   {code: "NOT_FOUND", status: http.StatusNotFound, abiCode: 6},
	KindHandlerFailure:      {code: "HANDLER_ERROR", status: http.StatusInternalServerError, abiCode: 7},
	KindValidationFailure:   {code: "VALIDATION_FAILED", status: http.StatusUnprocessableEntity, abiCode: 8},
	KindAuthorizationDenied: {code: "FORBIDDEN", status: http.StatusForbidden, abiCode: 9},
	KindNullPointer:         {code: "NULL_POINTER", status: http.StatusInternalServerError, abiCode: 10},
	KindInvalidUTF8:         {code: "INVALID_UTF8", status: http.StatusBadRequest, abiCode: 11},
}

// Code returns the stable code string for the kind.
func (k Kind) Code() string {
	if info, ok := kinds[k]; ok {
		return info.code
	}

	return kinds[KindInternal].code
}

// HTTPStatus returns the default HTTP status for the kind.
func (k Kind) HTTPStatus() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}

	return http.StatusInternalServerError
}

// ABICode returns the numeric error code exposed through the binding ABI.
// The values are frozen: foreign bindings compiled against older headers
// must keep working.
func (k Kind) ABICode() int {
	if info, ok := kinds[k]; ok {
		return info.abiCode
	}

	return kinds[KindInternal].abiCode
}

// String returns the stable code string, making Kind usable in logs.
func (k Kind) String() string { return k.Code() }

// E is the error type used throughout Archimedes. It carries a Kind for
// classification, a human-readable message, and an optional wrapped cause.
//
// Construct with [New], [Newf], or [Wrap]; inspect with [GetKind],
// [errors.Is], and [errors.As].
type E struct {
	// Kind classifies the failure.
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}

		return e.Err.Error()
	}

	return e.Message
}

// Unwrap returns the wrapped cause for errors.Is/As traversal.
func (e *E) Unwrap() error { return e.Err }

// HTTPStatus implements the ErrorType interface used by the envelope writer.
func (e *E) HTTPStatus() int { return e.Kind.HTTPStatus() }

// Code implements the ErrorCode interface used by the envelope writer.
func (e *E) Code() string { return e.Kind.Code() }

// New creates an error of the given kind with a fixed message.
func New(kind Kind, message string) *E {
	return &E{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and message. It returns nil when err is nil so
// callers can wrap unconditionally.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}

	return &E{Kind: kind, Message: message, Err: err}
}

// Wrapf wraps err with a kind and formatted message. It returns nil when err
// is nil.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return &E{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// GetKind extracts the Kind from an error chain. Errors that are not *E
// report KindInternal.
func GetKind(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// Re-exported standard helpers so callers need a single errors import.
var (
	// Is reports whether any error in err's chain matches target.
	Is = errors.Is

	// As finds the first error in err's chain that matches target.
	As = errors.As

	// Join wraps a list of errors into one.
	Join = errors.Join
)
