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

package app

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/pipeline"
)

// clientLimiter caps concurrent in-flight requests per client address.
// Requests beyond the cap are refused with 503 before they reach the
// pipeline. The total connection cap is enforced separately at the
// listener (netutil.LimitListener).
type clientLimiter struct {
	next   http.Handler
	max    int
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]int
}

func newClientLimiter(next http.Handler, maxPerClient int, logger *slog.Logger) *clientLimiter {
	return &clientLimiter{
		next:     next,
		max:      maxPerClient,
		logger:   logger,
		inFlight: make(map[string]int),
	}
}

func (l *clientLimiter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r.RemoteAddr)

	if !l.acquire(client) {
		l.logger.Warn("per-client connection cap exceeded",
			"client", client, "max", l.max)
		refuse(w, r)

		return
	}
	defer l.release(client)

	l.next.ServeHTTP(w, r)
}

func (l *clientLimiter) acquire(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight[client] >= l.max {
		return false
	}
	l.inFlight[client]++

	return true
}

func (l *clientLimiter) release(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.inFlight[client] - 1; n > 0 {
		l.inFlight[client] = n
	} else {
		delete(l.inFlight, client)
	}
}

// clientKey reduces a remote address to its host so all connections from
// one client count together regardless of source port.
func clientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

// refuse writes the canonical 503 envelope. The request never reached the
// pipeline, so the correlation id is minted here: a well-formed inbound
// X-Request-ID is echoed, anything else gets a fresh UUIDv7.
func refuse(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(pipeline.HeaderRequestID)
	if _, err := uuid.Parse(id); err != nil {
		v7, genErr := uuid.NewV7()
		if genErr != nil {
			id = ""
		} else {
			id = v7.String()
		}
	}

	body := errors.MarshalEnvelope(
		errors.CodeForStatus(http.StatusServiceUnavailable),
		"connection limit reached",
		id,
	)

	w.Header().Set("Content-Type", errors.ContentTypeJSON)
	if id != "" {
		w.Header().Set(pipeline.HeaderRequestID, id)
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(body)
}
