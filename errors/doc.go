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

// Package errors defines the Archimedes error taxonomy and the canonical
// user-visible error envelope.
//
// Every failure in the framework is classified by a [Kind]: a stable code
// string, a default HTTP status, and a numeric code shared with the binding
// ABI. Errors wrap with %w semantics and are inspected with [GetKind],
// [Is], and [As].
//
// # Error envelope
//
// All 4xx/5xx responses leaving the pipeline carry the same JSON shape:
//
//	{"error": {"code": "VALIDATION_FAILED", "message": "...", "request_id": "..."}}
//
// Codes are append-only. Use [CodeForStatus] to derive a code from a raw
// status and [WriteEnvelope] to emit the body.
//
// # Creating errors
//
//	err := errors.Newf(errors.KindArtifactLoad, "open %s: checksum mismatch", path)
//	if errors.IsKind(err, errors.KindArtifactLoad) {
//	    // terminal: the service cannot start without a valid artifact
//	}
package errors
