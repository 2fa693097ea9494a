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

// Package abi is the invocation surface foreign-language bindings program
// against. It lets handlers written in Python, Node, or any C-capable
// runtime serve contract operations as first-class citizens of the request
// pipeline: the same stages, the same validation and authorization, the
// same telemetry.
//
// The package is pure Go. The C symbols themselves (archimedes_new,
// archimedes_register_handler, archimedes_run, ...) live in the
// libarchimedes main package, which compiles to a shared library and is a
// thin marshalling shim over the types here. Everything that can be tested
// without a C compiler is on this side of the boundary.
//
// A [Host] owns one embedded server built from a flat [Config] that mirrors
// the C configuration struct field for field. Foreign handlers register as
// [Callback] values keyed by operation id; [Adapt] turns a callback into a
// pipeline handler that flattens the request into a [Request], invokes the
// callback, and converts its [Response] back into pipeline terms. The
// [Registry] enforces the ABI registration rules: one callback per
// operation, no registrations once the server is serving.
//
// Failures crossing the ABI do not travel as Go errors: C callers see a
// numeric code from the frozen error enum plus a process-wide last-error
// message set by [SetLastError] and read by [LastErrorMessage]. The numeric
// values come from [errors.Kind.ABICode] and never change meaning.
package abi
