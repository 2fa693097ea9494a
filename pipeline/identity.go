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
	"log/slog"
	"net/http"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/telemetry/semconv"
)

// identityStage attributes the request to a caller. Absent credentials make
// the caller anonymous; a credential that is present but invalid stops the
// request with 401. The response message stays generic, the extraction error
// goes to the log.
func identityStage(chain *identity.Chain, logger *slog.Logger) Stage {
	return Stage{
		Name: "identity",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			caller, err := chain.Extract(&identity.Request{
				Header: view.Header(),
				TLS:    view.TLS(),
			})
			if err != nil {
				logger.LogAttrs(view.Context(), slog.LevelWarn, "identity extraction failed",
					slog.String(semconv.RequestID, mc.RequestID()),
					slog.String(semconv.HTTPMethod, view.Method()),
					slog.String(semconv.HTTPTarget, view.Path()),
					slog.String("error", err.Error()),
				)

				return Envelope(http.StatusUnauthorized,
					errors.CodeForStatus(http.StatusUnauthorized),
					"invalid credentials", mc.RequestID())
			}
			mc.SetCaller(caller)

			return next()
		},
	}
}
