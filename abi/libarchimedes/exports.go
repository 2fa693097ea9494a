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

// Package main builds the embedding core as a C library:
//
//	go build -buildmode=c-shared -o libarchimedes.so .
//	go build -buildmode=c-archive -o libarchimedes.a .
//
// The exported archimedes_* functions implement the contract declared in
// archimedes.h. Language bindings link against the built artifact; the
// pure-Go surface behind it lives in the abi package.
package main

/*
#include <stdlib.h>
#include "archimedes.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unicode/utf8"
	"unsafe"

	"archimedes.dev/archimedes/abi"
	"archimedes.dev/archimedes/app"
	"archimedes.dev/archimedes/errors"
)

func main() {}

// errcode records err in the last-error slot and returns its wire code,
// ARCHIMEDES_ERROR_OK for nil.
func errcode(err error) C.archimedes_error {
	return C.archimedes_error(abi.SetLastError(err))
}

// hostFromC resolves a C handle back to its host. NULL and already-freed
// handles yield a null-pointer error instead of a crash.
func hostFromC(capp *C.struct_archimedes_app) (*abi.Host, error) {
	if capp == nil || capp.opaque == 0 {
		return nil, errors.New(errors.KindNullPointer, "app handle is NULL")
	}

	h, ok := cgo.Handle(uintptr(capp.opaque)).Value().(*abi.Host)
	if !ok {
		return nil, errors.New(errors.KindNullPointer, "app handle does not refer to an archimedes app")
	}

	return h, nil
}

// goConfig copies the C configuration into its Go mirror, checking UTF-8 on
// every string field. The strings are copied, not borrowed, so the caller
// may free its config as soon as archimedes_new returns.
func goConfig(c *C.struct_archimedes_config) (abi.Config, error) {
	cfg := abi.Config{
		ListenPort:               uint16(c.listen_port),
		MetricsPort:              uint16(c.metrics_port),
		EnableValidation:         bool(c.enable_validation),
		EnableResponseValidation: bool(c.enable_response_validation),
		EnableAuthorization:      bool(c.enable_authorization),
		EnableTracing:            bool(c.enable_tracing),
		ShutdownTimeoutSecs:      uint32(c.shutdown_timeout_secs),
		RequestTimeoutSecs:       uint32(c.request_timeout_secs),
		MaxBodySize:              uint64(c.max_body_size),
	}

	strings := []struct {
		dst  *string
		src  *C.char
		name string
	}{
		{&cfg.ContractPath, c.contract_path, "contract_path"},
		{&cfg.PolicyBundlePath, c.policy_bundle_path, "policy_bundle_path"},
		{&cfg.ListenAddr, c.listen_addr, "listen_addr"},
		{&cfg.OTLPEndpoint, c.otlp_endpoint, "otlp_endpoint"},
		{&cfg.ServiceName, c.service_name, "service_name"},
	}
	for _, f := range strings {
		if f.src == nil {
			continue
		}
		s := C.GoString(f.src)
		if !utf8.ValidString(s) {
			return abi.Config{}, errors.Newf(errors.KindInvalidUTF8,
				"config field %s is not valid UTF-8", f.name)
		}
		*f.dst = s
	}

	return cfg, nil
}

//export archimedes_new
func archimedes_new(config *C.struct_archimedes_config) *C.struct_archimedes_app {
	abi.SetLastError(nil)

	if config == nil {
		abi.SetLastError(errors.New(errors.KindNullPointer, "config is NULL"))

		return nil
	}

	cfg, err := goConfig(config)
	if err != nil {
		abi.SetLastError(err)

		return nil
	}

	host, err := abi.NewHost(cfg)
	if err != nil {
		abi.SetLastError(err)

		return nil
	}

	capp := (*C.struct_archimedes_app)(C.malloc(C.sizeof_struct_archimedes_app))
	capp.opaque = C.uintptr_t(cgo.NewHandle(host))

	return capp
}

//export archimedes_register_handler
func archimedes_register_handler(capp *C.struct_archimedes_app, operationID *C.char, handler C.archimedes_handler_fn, userData unsafe.Pointer) C.archimedes_error {
	host, err := hostFromC(capp)
	if err != nil {
		return errcode(err)
	}
	if operationID == nil {
		return errcode(errors.New(errors.KindNullPointer, "operation_id is NULL"))
	}
	if handler == nil {
		return errcode(errors.New(errors.KindNullPointer, "handler is NULL"))
	}

	opID := C.GoString(operationID)
	if !utf8.ValidString(opID) {
		return errcode(errors.New(errors.KindInvalidUTF8, "operation_id is not valid UTF-8"))
	}

	return errcode(host.RegisterHandler(opID, foreignCallback(handler, userData)))
}

//export archimedes_register_async_handler
func archimedes_register_async_handler(capp *C.struct_archimedes_app, operationID *C.char, handler C.archimedes_async_handler_fn, userData unsafe.Pointer) C.archimedes_error {
	host, err := hostFromC(capp)
	if err != nil {
		return errcode(err)
	}
	if operationID == nil {
		return errcode(errors.New(errors.KindNullPointer, "operation_id is NULL"))
	}

	return errcode(host.RegisterAsyncHandler(C.GoString(operationID)))
}

//export archimedes_run
func archimedes_run(capp *C.struct_archimedes_app) C.archimedes_error {
	host, err := hostFromC(capp)
	if err != nil {
		return errcode(err)
	}

	return errcode(host.Run())
}

//export archimedes_stop
func archimedes_stop(capp *C.struct_archimedes_app) C.archimedes_error {
	host, err := hostFromC(capp)
	if err != nil {
		return errcode(err)
	}

	return errcode(host.Stop())
}

//export archimedes_is_running
func archimedes_is_running(capp *C.struct_archimedes_app) C.int32_t {
	host, err := hostFromC(capp)
	if err != nil || !host.IsRunning() {
		return 0
	}

	return 1
}

//export archimedes_free
func archimedes_free(capp *C.struct_archimedes_app) {
	if capp == nil || capp.opaque == 0 {
		return
	}

	handle := cgo.Handle(uintptr(capp.opaque))
	capp.opaque = 0
	if host, ok := handle.Value().(*abi.Host); ok {
		host.Close()
	}
	handle.Delete()
	C.free(unsafe.Pointer(capp))
}

// The last-error C string lives until the next archimedes_last_error call.
// A dedicated static empty string keeps C.GoString safe for callers that
// read the slot when nothing failed.
var lastErrState struct {
	mu    sync.Mutex
	str   *C.char
	empty *C.char
}

//export archimedes_last_error
func archimedes_last_error() *C.char {
	lastErrState.mu.Lock()
	defer lastErrState.mu.Unlock()

	if lastErrState.str != nil {
		C.free(unsafe.Pointer(lastErrState.str))
		lastErrState.str = nil
	}

	msg := abi.LastErrorMessage()
	if msg == "" {
		if lastErrState.empty == nil {
			lastErrState.empty = C.CString("")
		}

		return lastErrState.empty
	}

	lastErrState.str = C.CString(msg)

	return lastErrState.str
}

var (
	versionOnce sync.Once
	versionC    *C.char
)

//export archimedes_version
func archimedes_version() *C.char {
	versionOnce.Do(func() { versionC = C.CString(app.Version) })

	return versionC
}
