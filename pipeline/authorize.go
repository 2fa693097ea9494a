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

package pipeline

import (
	"context"
	"net/http"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/errors"
)

// Authorizer decides whether a caller may invoke an operation. The authz
// package's Engine is the production implementation; the interface keeps the
// pipeline testable without a policy bundle.
type Authorizer interface {
	Authorize(ctx context.Context, in authz.Input) authz.Decision
}

// authorizeStage evaluates the operation against policy and stops denied
// requests with 403. Requests that resolved to no operation pass through;
// dispatch rejects those with the routing error instead. Without a
// configured authorizer the stage is a no-op.
func authorizeStage(authorizer Authorizer, service string, rec Recorder) Stage {
	return Stage{
		Name: "authorize",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			if authorizer == nil || view.Operation() == nil {
				return next()
			}

			caller, _ := mc.Caller()
			d := authorizer.Authorize(view.Context(), authz.Input{
				Caller:      caller,
				Service:     service,
				OperationID: mc.OperationID(),
				Method:      view.Method(),
				Path:        view.Path(),
				PathParams:  view.PathParams(),
				RequestID:   mc.RequestID(),
			})
			mc.SetDecision(d)
			rec.RecordAuthzDecision(view.Context(), d.Result(), d.Cached)

			if !d.Allowed {
				message := d.Reason
				if message == "" {
					message = "forbidden"
				}

				return Envelope(http.StatusForbidden,
					errors.CodeForStatus(http.StatusForbidden),
					message, mc.RequestID())
			}

			return next()
		},
	}
}
