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
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// HeaderRequestID is the correlation header the pipeline reads from trusted
// clients and always sets on responses.
const HeaderRequestID = "X-Request-ID"

// IDGenerator mints request correlation ids.
type IDGenerator func() string

// generateUUIDv7 generates a UUID v7 string for request IDs.
// UUID v7 is time-ordered and lexicographically sortable (RFC 9562).
func generateUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ulidEntropy is a thread-safe entropy source for ULID generation.
// It provides monotonic ordering within the same millisecond.
var (
	ulidEntropy     = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyLock sync.Mutex
)

// generateULID generates a ULID string for request IDs.
// ULID is time-ordered, lexicographically sortable, and has a compact
// 26-character representation.
func generateULID() string {
	ulidEntropyLock.Lock()
	defer ulidEntropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// requestIDStage establishes the request correlation id. An incoming
// X-Request-ID is adopted only when trust is enabled and the value parses as
// a UUID; anything else gets a freshly minted id. The id is stamped on every
// response on the way out.
func requestIDStage(trustIncoming bool, generate IDGenerator) Stage {
	if generate == nil {
		generate = generateUUIDv7
	}

	return Stage{
		Name: "request-id",
		Process: func(mc *MiddlewareContext, view *RequestView, next Next) *Response {
			var id string
			if trustIncoming {
				if v := view.HeaderValue(HeaderRequestID); v != "" {
					if _, err := uuid.Parse(v); err == nil {
						id = v
					}
				}
			}
			if id == "" {
				id = generate()
			}
			mc.SetRequestID(id)

			resp := next()
			resp.SetHeader(HeaderRequestID, id)

			return resp
		},
	}
}
