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

// Package pipeline is the request-processing backbone: a fixed-order chain
// of middleware stages wrapped around every handler invocation.
//
// The stage order is immutable:
//
//	request-id → tracing → identity → authorization → request-validation
//	                                                        │
//	                                                        ▼
//	                                                     handler
//	                                                        │
//	                                                        ▼
//	error-normalization ← telemetry ← … ← response-validation
//
// Each stage receives the mutable MiddlewareContext, the read-mostly
// RequestView, and a continuation it must invoke at most once. A stage that
// short-circuits produces its own response, which still unwinds through
// telemetry and error normalization, so every request is counted and every
// error body is the canonical envelope.
//
// The chain is composed once at startup into a single closure; per-request
// work is limited to walking it. Operations resolve against the contract
// before the chain runs, so identity, authorization, and validation stages
// see the resolved operation. Requests no operation covers still traverse
// the full chain and end in a 404 or 405 envelope.
package pipeline
