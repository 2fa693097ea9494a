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

package main

/*
#include <stdlib.h>
#include "archimedes.h"

// Go cannot call a C function pointer directly; this trampoline does.
static struct archimedes_response_data
archimedes_invoke(archimedes_handler_fn fn,
                  const struct archimedes_request_context *ctx,
                  const uint8_t *body, size_t body_len, void *user_data) {
	return fn(ctx, body, body_len, user_data);
}
*/
import "C"

import (
	"unsafe"

	"archimedes.dev/archimedes/abi"
)

// foreignCallback wraps a C handler function pointer as an abi.Callback.
// The request is marshalled into C memory the handler borrows for the
// duration of the call; response bytes are copied into Go memory before
// any owned C buffers are released.
func foreignCallback(fn C.archimedes_handler_fn, userData unsafe.Pointer) abi.Callback {
	return func(req *abi.Request) (*abi.Response, error) {
		ctx, release := marshalContext(req)
		defer release()

		var body *C.uint8_t
		if len(req.Body) > 0 {
			body = (*C.uint8_t)(unsafe.Pointer(&req.Body[0]))
		}

		cresp := C.archimedes_invoke(fn, ctx, body, C.size_t(len(req.Body)), userData)

		return goResponse(cresp), nil
	}
}

// callAllocs tracks the C allocations of one handler invocation so a single
// release frees them all.
type callAllocs struct {
	ptrs []unsafe.Pointer
}

func (a *callAllocs) cstring(s string) *C.char {
	p := C.CString(s)
	a.ptrs = append(a.ptrs, unsafe.Pointer(p))

	return p
}

// array builds a NULL-free C array of C strings, nil for empty input.
func (a *callAllocs) array(values []string) **C.char {
	if len(values) == 0 {
		return nil
	}

	size := C.size_t(len(values)) * C.size_t(unsafe.Sizeof((*C.char)(nil)))
	arr := (**C.char)(C.malloc(size))
	a.ptrs = append(a.ptrs, unsafe.Pointer(arr))

	out := unsafe.Slice(arr, len(values))
	for i, v := range values {
		out[i] = a.cstring(v)
	}

	return arr
}

func (a *callAllocs) release() {
	for _, p := range a.ptrs {
		C.free(p)
	}
	a.ptrs = nil
}

// marshalContext builds the C request context entirely in C memory, keeping
// the cgo pointer-passing rules trivially satisfied. The returned release
// func frees every allocation made here.
func marshalContext(req *abi.Request) (*C.struct_archimedes_request_context, func()) {
	allocs := &callAllocs{}

	ctx := (*C.struct_archimedes_request_context)(C.calloc(1, C.sizeof_struct_archimedes_request_context))
	allocs.ptrs = append(allocs.ptrs, unsafe.Pointer(ctx))

	ctx.request_id = allocs.cstring(req.RequestID)
	ctx.trace_id = allocs.cstring(req.TraceID)
	ctx.span_id = allocs.cstring(req.SpanID)
	ctx.operation_id = allocs.cstring(req.OperationID)
	ctx.method = allocs.cstring(req.Method)
	ctx.path = allocs.cstring(req.Path)
	ctx.query = allocs.cstring(req.Query)
	ctx.caller_identity_json = allocs.cstring(string(req.CallerJSON))

	ctx.path_param_names = allocs.array(req.ParamNames)
	ctx.path_param_values = allocs.array(req.ParamValues)
	ctx.path_params_count = C.size_t(len(req.ParamNames))

	ctx.header_names = allocs.array(req.HeaderNames)
	ctx.header_values = allocs.array(req.HeaderValues)
	ctx.headers_count = C.size_t(len(req.HeaderNames))

	return ctx, allocs.release
}

// goResponse copies a handler response into Go memory, honoring the
// body_owned contract: owned buffers are freed with the C allocator once
// copied. Structural validation happens later in abi.Adapt, so a zeroed
// struct from a misbehaving handler surfaces as a handler error rather
// than a crash.
func goResponse(cr C.struct_archimedes_response_data) *abi.Response {
	resp := &abi.Response{Status: int(cr.status_code)}

	if cr.body != nil && cr.body_len > 0 {
		resp.Body = C.GoBytes(unsafe.Pointer(cr.body), C.int(cr.body_len))
	}
	if cr.content_type != nil {
		resp.ContentType = C.GoString(cr.content_type)
	}

	if bool(cr.body_owned) {
		if cr.body != nil {
			C.free(unsafe.Pointer(cr.body))
		}
		if cr.content_type != nil {
			C.free(unsafe.Pointer(cr.content_type))
		}
	}

	return resp
}
