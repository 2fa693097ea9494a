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

package handler

import (
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"archimedes.dev/archimedes/binding"
	"archimedes.dev/archimedes/pipeline"
)

// ContentTypeMsgpack is the content type of negotiated MessagePack
// responses.
const ContentTypeMsgpack = "application/msgpack"

// Func adapts a handler that takes no extracted input.
func Func[Out any](fn func(c *Context) (Out, error)) pipeline.Handler {
	return func(mc *pipeline.MiddlewareContext, view *pipeline.RequestView) *pipeline.Response {
		c := NewContext(mc, view)
		out, err := fn(c)
		if err != nil {
			return c.Error(err)
		}

		return respond(c, out)
	}
}

// Extract adapts a handler with a caller-supplied extraction step. It is
// the general form the single-source adapters reduce to; use it to compose
// several binding calls into one input value.
func Extract[In, Out any](extract func(c *Context) (In, error), fn func(c *Context, in In) (Out, error)) pipeline.Handler {
	return func(mc *pipeline.MiddlewareContext, view *pipeline.RequestView) *pipeline.Response {
		c := NewContext(mc, view)
		in, err := extract(c)
		if err != nil {
			return c.Error(err)
		}
		out, err := fn(c, in)
		if err != nil {
			return c.Error(err)
		}

		return respond(c, out)
	}
}

// JSON adapts a handler whose input is the JSON request body.
func JSON[In, Out any](fn func(c *Context, in In) (Out, error), opts ...binding.Option) pipeline.Handler {
	return Extract(func(c *Context) (In, error) {
		return binding.JSON[In](c.view, opts...)
	}, fn)
}

// Msgpack adapts a handler whose input is a MessagePack request body.
func Msgpack[In, Out any](fn func(c *Context, in In) (Out, error), opts ...binding.Option) pipeline.Handler {
	return Extract(func(c *Context) (In, error) {
		return binding.Msgpack[In](c.view, opts...)
	}, fn)
}

// Form adapts a handler whose input is a URL-encoded form body.
func Form[In, Out any](fn func(c *Context, in In) (Out, error), opts ...binding.Option) pipeline.Handler {
	return Extract(func(c *Context) (In, error) {
		return binding.Form[In](c.view, opts...)
	}, fn)
}

// Query adapts a handler whose input binds from the query string.
func Query[In, Out any](fn func(c *Context, in In) (Out, error), opts ...binding.Option) pipeline.Handler {
	return Extract(func(c *Context) (In, error) {
		return binding.Query[In](c.view, opts...)
	}, fn)
}

// Path adapts a handler whose input binds from the path parameters.
func Path[In, Out any](fn func(c *Context, in In) (Out, error), opts ...binding.Option) pipeline.Handler {
	return Extract(func(c *Context) (In, error) {
		return binding.Path[In](c.view, opts...)
	}, fn)
}

// respond serializes a typed result. A *pipeline.Response passes through
// untouched, an empty struct means no content, and everything else encodes
// as JSON or, when the Accept header asks for it, MessagePack.
func respond[Out any](c *Context, out Out) *pipeline.Response {
	switch v := any(out).(type) {
	case *pipeline.Response:
		if v == nil {
			return pipeline.NoContent()
		}

		return v
	case nil:
		return pipeline.NoContent()
	case struct{}:
		return pipeline.NoContent()
	}

	if acceptsMsgpack(c.view.HeaderValue("Accept")) {
		body, err := msgpack.Marshal(out)
		if err != nil {
			return pipeline.Text(http.StatusInternalServerError, "response serialization failed")
		}

		return pipeline.Blob(http.StatusOK, ContentTypeMsgpack, body)
	}

	return pipeline.JSON(http.StatusOK, out)
}

// acceptsMsgpack reports whether the Accept header names MessagePack
// explicitly. Wildcards keep the JSON default.
func acceptsMsgpack(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "application/msgpack", "application/x-msgpack":
			return true
		}
	}

	return false
}
