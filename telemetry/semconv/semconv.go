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

// Package semconv defines the attribute keys shared by Archimedes logs,
// metrics, and traces.
//
// The constants follow OpenTelemetry semantic conventions where one exists;
// framework-specific attributes (operation id, caller type, policy outcome)
// use the archimedes.* namespace. Using these keys everywhere keeps the three
// observability signals joinable on the same fields.
package semconv

// Service metadata, set once at initialization.
const (
	// ServiceName identifies the logical service emitting telemetry.
	ServiceName = "service.name"

	// ServiceVersion is the version string of the service instance.
	ServiceVersion = "service.version"

	// DeploymentEnviron is the deployment environment
	// ("production", "development", ...).
	DeploymentEnviron = "deployment.environment"
)

// HTTP request/response attributes.
const (
	// HTTPMethod is the HTTP request method ("GET", "POST", ...).
	HTTPMethod = "http.method"

	// HTTPRoute is the matched path template (e.g. "/users/{userId}"),
	// never the concrete path.
	HTTPRoute = "http.route"

	// HTTPTarget is the concrete path requested (e.g. "/users/42").
	HTTPTarget = "http.target"

	// HTTPStatusCode is the numeric response status.
	HTTPStatusCode = "http.status_code"
)

// Trace correlation attributes for log records.
const (
	// TraceID is the W3C trace id of the request's span.
	TraceID = "trace_id"

	// SpanID is the span id covering the request pipeline.
	SpanID = "span_id"
)

// Archimedes-specific attributes.
const (
	// RequestID is the per-request correlation id (UUIDv7), echoed in the
	// X-Request-ID response header.
	RequestID = "request_id"

	// OperationID is the contract operation the request resolved to.
	OperationID = "archimedes.operation_id"

	// CallerType is the identity variant attributed to the request
	// ("anonymous", "spiffe", "user", "api_key").
	CallerType = "archimedes.caller_type"

	// CallerID is the caller's identity string.
	CallerID = "archimedes.caller_id"

	// PolicyDecision is the authorization outcome ("allow" or "deny").
	PolicyDecision = "archimedes.policy_decision"

	// PolicyRevision is the version of the policy bundle that produced
	// the decision.
	PolicyRevision = "archimedes.policy_revision"

	// ValidationDirection distinguishes request from response validation
	// failures ("request", "response").
	ValidationDirection = "archimedes.validation_direction"

	// DurationMS is the wall-clock request duration in milliseconds.
	DurationMS = "duration_ms"
)
