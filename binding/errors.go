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
	stderrors "errors"
	"fmt"
	"net/http"

	"archimedes.dev/archimedes/errors"
)

// Source identifies where an extractor read its input from.
type Source int

const (
	// SourceOther covers extractors without a request-derived source, such as
	// container injection.
	SourceOther Source = iota

	// SourcePath reads URL path parameters.
	SourcePath

	// SourceQuery reads the URL query string.
	SourceQuery

	// SourceBody reads the request body.
	SourceBody

	// SourceHeader reads HTTP headers.
	SourceHeader

	// SourceCookie reads HTTP cookies.
	SourceCookie

	// SourceContentType covers media-type negotiation failures.
	SourceContentType
)

// String returns the wire name of the source.
func (s Source) String() string {
	switch s {
	case SourcePath:
		return "path"
	case SourceQuery:
		return "query"
	case SourceBody:
		return "body"
	case SourceHeader:
		return "header"
	case SourceCookie:
		return "cookie"
	case SourceContentType:
		return "content-type"
	default:
		return "other"
	}
}

// Kind classifies an extraction failure and decides its HTTP status.
type Kind int

const (
	// KindCustom covers failures that are the server's fault, such as a
	// missing container dependency.
	KindCustom Kind = iota

	// KindMissing means a required parameter was absent.
	KindMissing

	// KindInvalidType means a single value could not be parsed into the
	// target type.
	KindInvalidType

	// KindValidation means the decoded value failed post-bind validation.
	KindValidation

	// KindDeserialization means the payload could not be decoded.
	KindDeserialization

	// KindPayloadTooLarge means the body exceeded the configured cap.
	KindPayloadTooLarge

	// KindUnsupportedMediaType means the Content-Type did not match the
	// extractor's format.
	KindUnsupportedMediaType
)

// String returns the wire name of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindInvalidType:
		return "invalid-type"
	case KindValidation:
		return "validation"
	case KindDeserialization:
		return "deserialization"
	case KindPayloadTooLarge:
		return "payload-too-large"
	case KindUnsupportedMediaType:
		return "unsupported-media-type"
	default:
		return "custom"
	}
}

// HTTPStatus returns the response status for the failure kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissing, KindInvalidType, KindDeserialization:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel causes carried inside [ExtractionError].
var (
	ErrEmptyBody       = stderrors.New("request body is empty")
	ErrTargetNotStruct = stderrors.New("extraction target must be a struct")
	ErrMaxDepth        = stderrors.New("struct nesting exceeds maximum depth")
	ErrSliceLimit      = stderrors.New("slice exceeds maximum element count")
	ErrMapLimit        = stderrors.New("map exceeds maximum entry count")
	ErrMapKeyNotString = stderrors.New("only string-keyed maps are supported")
	ErrInvalidBoolean  = stderrors.New("invalid boolean value")
	ErrUnparseableTime = stderrors.New("unable to parse time value")
	ErrUnsupportedKind = stderrors.New("unsupported target kind")
	ErrNoContainer     = stderrors.New("no dependency container attached to the request")
	ErrMissingBoundary = stderrors.New("multipart content type is missing its boundary")
	ErrInvalidUTF8Body = stderrors.New("request body is not valid UTF-8")
)

// ExtractionError describes a failed extraction. Every extractor in this
// package reports failures through this type; use [errors.As] to recover it:
//
//	var xerr *binding.ExtractionError
//	if errors.As(err, &xerr) {
//	    status := xerr.HTTPStatus()
//	}
type ExtractionError struct {
	Source  Source // where the value was read from
	Kind    Kind   // failure classification
	Field   string // wire name of the failing field, when known
	Message string // human-readable description
	Err     error  // underlying cause, when any
}

// Error formats the failure with its source and field context.
func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %s %q: %s", e.Source, e.Field, e.Message)
	}

	return fmt.Sprintf("extract %s: %s", e.Source, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status implied by the failure kind.
func (e *ExtractionError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// Code returns the stable envelope code for the failure.
func (e *ExtractionError) Code() string {
	return errors.CodeForStatus(e.HTTPStatus())
}

// newError builds an ExtractionError with a formatted message.
func newError(source Source, kind Kind, field, format string, args ...any) *ExtractionError {
	return &ExtractionError{
		Source:  source,
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// wrapError builds an ExtractionError around a cause, keeping the cause
// visible to errors.Is.
func wrapError(source Source, kind Kind, field string, err error) *ExtractionError {
	return &ExtractionError{
		Source:  source,
		Kind:    kind,
		Field:   field,
		Message: err.Error(),
		Err:     err,
	}
}

// AsExtractionError recovers the ExtractionError from an error chain. Errors
// produced outside this package coerce to a custom-kind failure so callers
// always get a status mapping.
func AsExtractionError(err error) *ExtractionError {
	if err == nil {
		return nil
	}

	var xerr *ExtractionError
	if stderrors.As(err, &xerr) {
		return xerr
	}

	return &ExtractionError{
		Source:  SourceOther,
		Kind:    KindCustom,
		Message: err.Error(),
		Err:     err,
	}
}
