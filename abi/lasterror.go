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

package abi

import (
	"sync"

	"archimedes.dev/archimedes/errors"
)

// The last-error slot is the ABI's error channel: C functions return only a
// numeric code, and the caller fetches the human-readable message through
// archimedes_last_error afterwards. One slot per process, shared by every
// host, written on each failing ABI call. It is process-lifecycle state,
// never touched by request handling except when a foreign invocation
// itself fails.
var lastError struct {
	mu   sync.Mutex
	code int
	msg  string
}

// SetLastError records err in the process-wide last-error slot and returns
// its numeric ABI code. A nil err clears the slot and returns 0.
func SetLastError(err error) int {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()

	if err == nil {
		lastError.code = 0
		lastError.msg = ""

		return 0
	}

	lastError.code = errors.GetKind(err).ABICode()
	lastError.msg = err.Error()

	return lastError.code
}

// LastErrorMessage returns the message recorded by the most recent
// SetLastError, "" when the slot is clear.
func LastErrorMessage() string {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()

	return lastError.msg
}

// LastErrorCode returns the numeric ABI code recorded by the most recent
// SetLastError, 0 when the slot is clear.
func LastErrorCode() int {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()

	return lastError.code
}
