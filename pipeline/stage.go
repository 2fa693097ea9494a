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

import "fmt"

// Next runs the remainder of the pipeline and returns its response. A stage
// may call it at most once; skipping it short-circuits the request with the
// stage's own response.
type Next func() *Response

// ProcessFunc is the body of a stage. It observes the request, decides
// whether to continue via next, and may rewrite the response on the way
// back out. It must return a non-nil response.
type ProcessFunc func(mc *MiddlewareContext, view *RequestView, next Next) *Response

// Stage is one named step of the request pipeline.
type Stage struct {
	Name    string
	Process ProcessFunc
}

// Handler is the terminal function of a composed pipeline.
type Handler func(mc *MiddlewareContext, view *RequestView) *Response

// compose nests the stages around the terminal handler, first stage
// outermost. Each stage's next is guarded: a second invocation within the
// same request panics, since replaying the inner pipeline would duplicate
// handler side effects.
func compose(stages []Stage, terminal Handler) Handler {
	h := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		inner := h
		h = func(mc *MiddlewareContext, view *RequestView) *Response {
			called := false
			next := func() *Response {
				if called {
					panic(fmt.Sprintf("pipeline: stage %q invoked next more than once", st.Name))
				}
				called = true

				return inner(mc, view)
			}

			return st.Process(mc, view, next)
		}
	}

	return h
}
