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

// Package authz evaluates authorization policy for incoming requests.
//
// The engine embeds OPA: a policy bundle (tar+gzip with a .manifest, Rego
// modules, and optional data documents) is compiled into a prepared query
// that is evaluated once per request with a JSON-shaped input document
// describing the caller, the resolved operation, and the request. Decisions
// are fail-closed: a missing bundle, an undefined decision, or an evaluation
// error all deny.
//
// A fixed-capacity decision cache keyed on a 64-bit fingerprint of
// (caller, service, operation, method) short-circuits repeat evaluations.
// Reloading the bundle always clears the cache so stale decisions cannot
// outlive the policy that produced them. An optional file watcher reloads
// the bundle in place when it changes on disk.
//
//	engine := authz.New(authz.WithCache(1024, time.Minute, false))
//	if err := engine.LoadBundle(ctx, "/etc/archimedes/policy.tar.gz"); err != nil {
//		return err
//	}
//
//	decision := engine.Authorize(ctx, authz.Input{
//		Caller:      caller,
//		Service:     "billing",
//		OperationID: "createInvoice",
//		Method:      http.MethodPost,
//		Path:        "/invoices",
//	})
//	if !decision.Allowed {
//		// 403 with decision.Reason
//	}
package authz
