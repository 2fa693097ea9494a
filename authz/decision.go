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

package authz

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"archimedes.dev/archimedes/identity"
)

// Input is the request context handed to the policy engine. It is rendered
// into the JSON input document the Rego policy sees.
type Input struct {
	// Caller is the authenticated (or anonymous) identity of the requester.
	Caller identity.Caller

	// Service is the service name from the contract artifact.
	Service string

	// OperationID is the resolved contract operation, empty when the router
	// matched no operation.
	OperationID string

	// Method and Path describe the incoming request line.
	Method string
	Path   string

	// PathParams are the values captured by the route pattern.
	PathParams map[string]string

	// Headers carries selected request headers (single-valued) for policies
	// that key on them. Optional.
	Headers map[string]string

	// RequestID is the correlation id minted or adopted for this request.
	RequestID string
}

// Document renders the input as the JSON-shaped document passed to policy
// evaluation. The caller sub-document uses the canonical identity JSON shape.
func (in Input) Document() map[string]any {
	var caller map[string]any
	if err := json.Unmarshal(in.Caller.JSON(), &caller); err != nil {
		caller = map[string]any{"type": string(identity.TypeAnonymous)}
	}

	doc := map[string]any{
		"service":      in.Service,
		"operation_id": in.OperationID,
		"method":       in.Method,
		"path":         in.Path,
		"request_id":   in.RequestID,
		"caller":       caller,
	}

	if len(in.PathParams) > 0 {
		params := make(map[string]any, len(in.PathParams))
		for k, v := range in.PathParams {
			params[k] = v
		}
		doc["path_params"] = params
	}

	if len(in.Headers) > 0 {
		headers := make(map[string]any, len(in.Headers))
		for k, v := range in.Headers {
			headers[k] = v
		}
		doc["headers"] = headers
	}

	return doc
}

// fingerprint hashes the cacheable dimensions of the input. Two requests with
// the same caller, service, operation, and method share a decision; path
// params and headers deliberately do not participate so that one decision
// covers a whole operation.
func (in Input) fingerprint() uint64 {
	var sb strings.Builder
	in.Caller.Fingerprint(&sb)

	h := xxhash.New()
	_, _ = h.WriteString(sb.String())
	_, _ = h.WriteString(in.Service)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(in.OperationID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(in.Method)

	return h.Sum64()
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Reason explains a denial. Empty for allows unless the policy sets one.
	Reason string

	// PolicyID names the bundle that produced the decision.
	PolicyID string

	// PolicyVersion is the bundle manifest revision.
	PolicyVersion string

	// EvalTime is how long the evaluation took. Preserved on cached hits.
	EvalTime time.Duration

	// Cached reports whether the decision came from the cache.
	Cached bool
}

// Result is the label used for decision metrics: "allow" or "deny".
func (d Decision) Result() string {
	if d.Allowed {
		return "allow"
	}

	return "deny"
}
