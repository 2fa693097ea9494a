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

// Package router implements the radix-tree path matcher that binds
// (method, path) pairs to contract operations.
//
// Path templates use OpenAPI-style {name} parameter segments:
//
//	r := router.New[http.Handler]()
//	r.Register("GET", "/users/{userId}", "getUser", handler)
//
//	m, err := r.Resolve("GET", "/users/42")
//	// m.OperationID == "getUser", m.Params["userId"] == "42"
//
// Matching precedence is literal > parameter > wildcard: /users/new wins
// over /users/{id}, which wins over /users/{rest...}. Resolution
// distinguishes an unknown path (ErrNotFound) from a known path with the
// wrong method (a *MethodNotAllowedError carrying the allowed set).
//
// Routers compose with Nest (mount under a prefix) and Merge (union
// without prefix). Duplicate registrations and ambiguous templates (two
// templates that match the same concrete paths with no literal
// preference between them) are rejected at registration time, so
// resolution is pure and deterministic.
//
// Registration is single-goroutine configuration-phase work; after the
// last Register/Nest/Merge call the router is immutable and safe for
// unlimited concurrent Resolve calls.
package router
