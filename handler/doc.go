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

// Package handler adapts typed operation handlers to the pipeline's
// bytes-in/bytes-out contract.
//
// A typed handler is an ordinary function over extracted inputs:
//
//	p.MustRegister("createUser", handler.JSON(
//	    func(c *handler.Context, req CreateUserRequest) (User, error) {
//	        store, err := binding.Inject[*UserStore](c.View())
//	        if err != nil {
//	            return User{}, err
//	        }
//
//	        return store.Create(c.Context(), req)
//	    },
//	))
//
// The adapter runs the extractor, calls the function, and serializes the
// result: JSON by default, MessagePack when the request's Accept header asks
// for it. A returned error maps to the canonical error envelope through the
// same status and code resolution the rest of the framework uses, so
// extraction failures, validation failures, and domain errors all come out
// with consistent statuses.
//
// Handlers that need full control over status and headers return
// *pipeline.Response, either built directly or through the [Context]
// helpers:
//
//	handler.Func(func(c *handler.Context) (*pipeline.Response, error) {
//	    return c.String(http.StatusTeapot, "short and stout"), nil
//	})
//
// Inputs beyond a single body or parameter struct compose through
// [Extract], which takes any extraction closure:
//
//	handler.Extract(func(c *handler.Context) (getUserInput, error) {
//	    params, err := binding.Path[getUserParams](c.View())
//	    if err != nil {
//	        return getUserInput{}, err
//	    }
//	    fields, err := binding.Query[fieldSelection](c.View())
//	    if err != nil {
//	        return getUserInput{}, err
//	    }
//
//	    return getUserInput{Params: params, Fields: fields}, nil
//	}, getUser)
package handler
