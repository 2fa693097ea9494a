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

// Package validation validates request and response payloads against the
// schemas declared in a contract artifact.
//
// A [SchemaValidator] is built once per loaded artifact. Every schema the
// artifact declares is checked against the supported construct set and
// compiled up front, so schema problems surface at startup rather than on
// the first request that hits them. Validation itself is allocation-light
// and safe for concurrent use.
//
//	v, err := validation.NewSchemaValidator(artifact)
//	...
//	res := v.ValidateRequest(op, body)
//	if !res.Valid {
//	    return res.Err()
//	}
//
// Failures are reported as [FieldError] values with a JSON path, a stable
// machine-readable code and a human-readable message. Whether a failure
// rejects the request or is merely recorded is the pipeline's decision
// (enforce versus monitor mode); this package only reports.
//
// The package also provides [Struct] for tag-based validation of bound
// input structs, using go-playground/validator semantics.
package validation
