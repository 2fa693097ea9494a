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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/contract"
)

// testViewConfig collects TestView options before the view is built.
type testViewConfig struct {
	body      []byte
	header    http.Header
	maxBody   int64
	op        *contract.Operation
	template  string
	params    map[string]string
	container *container.Container
}

// TestViewOption configures a view built by TestView.
type TestViewOption func(*testViewConfig)

// TestViewBody sets the request body.
func TestViewBody(body []byte) TestViewOption {
	return func(c *testViewConfig) { c.body = body }
}

// TestViewJSON marshals v as the request body and sets the JSON content
// type. Panics on unmarshalable input.
func TestViewJSON(v any) TestViewOption {
	return func(c *testViewConfig) {
		raw, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("pipeline.TestViewJSON: %v", err))
		}
		c.body = raw
		c.header.Set("Content-Type", "application/json")
	}
}

// TestViewHeader adds a request header.
func TestViewHeader(name, value string) TestViewOption {
	return func(c *testViewConfig) { c.header.Add(name, value) }
}

// TestViewMaxBody overrides the body cap the view is built with.
func TestViewMaxBody(n int64) TestViewOption {
	return func(c *testViewConfig) { c.maxBody = n }
}

// TestViewOperation marks the view as resolved to op at the given template
// with the given path parameters.
func TestViewOperation(op *contract.Operation, template string, params map[string]string) TestViewOption {
	return func(c *testViewConfig) {
		c.op = op
		c.template = template
		c.params = params
	}
}

// TestViewContainer attaches a dependency container.
func TestViewContainer(dc *container.Container) TestViewOption {
	return func(c *testViewConfig) { c.container = dc }
}

// TestView builds a request view for tests without an HTTP server. It
// panics on invalid input so test setup stays terse; production views come
// from ServeHTTP.
//
//	view := pipeline.TestView(http.MethodGet, "/users/42",
//	    pipeline.TestViewOperation(op, "/users/{userId}", map[string]string{"userId": "42"}),
//	)
func TestView(method, path string, opts ...TestViewOption) *RequestView {
	cfg := testViewConfig{
		header:  make(http.Header),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	req, err := http.NewRequest(method, "http://archimedes.test"+path, bytes.NewReader(cfg.body))
	if err != nil {
		panic(fmt.Sprintf("pipeline.TestView: %v", err))
	}
	for name, values := range cfg.header {
		req.Header[name] = values
	}

	v := NewRequestView(req, cfg.maxBody)
	v.container = cfg.container
	if cfg.op != nil {
		v.setResolution(contract.Resolution{
			Operation: cfg.op,
			Template:  cfg.template,
			Params:    cfg.params,
		})
	}

	return v
}
