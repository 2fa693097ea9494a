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

package realtime

import "sync"

// Registry errors, surfaced to refused clients as 503 envelopes.
var (
	// ErrServerFull means the total connection cap is reached.
	ErrServerFull = registryError("connection limit reached")

	// ErrClientLimit means the per-client connection cap is reached.
	ErrClientLimit = registryError("per-client connection limit reached")
)

type registryError string

func (e registryError) Error() string { return string(e) }

// Registry tracks live connections by id and enforces the total and
// per-client caps. A cap of zero means unlimited. Safe for concurrent use;
// iteration works on a snapshot so callbacks can add or remove connections
// freely.
//
// Slots are accounted from the moment an upgrade is admitted, not from
// insertion, so two racing handshakes cannot both pass a cap with one slot
// left.
type Registry struct {
	maxConns     int
	maxPerClient int

	mu        sync.RWMutex
	conns     map[string]*Conn
	total     int
	perClient map[string]int
}

// NewRegistry builds a registry with the given caps. Zero disables a cap.
func NewRegistry(maxConns, maxPerClient int) *Registry {
	return &Registry{
		maxConns:     maxConns,
		maxPerClient: maxPerClient,
		conns:        make(map[string]*Conn),
		perClient:    make(map[string]int),
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// ClientConns returns the number of slots held by one client, including
// upgrades still in flight.
func (r *Registry) ClientConns(clientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.perClient[clientID]
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]

	return c, ok
}

// Snapshot returns the registered connections at this instant. The slice is
// private to the caller; connections added or removed afterwards do not
// affect it.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}

	return out
}

// CloseAll sends every registered connection a close frame with the given
// code and reason. Used on server drain.
func (r *Registry) CloseAll(code int, reason string) {
	for _, c := range r.Snapshot() {
		c.Close(code, reason)
	}
}

// reserve claims a slot for clientID before the upgrade is attempted. The
// claim must be balanced by insert+remove or by unreserve when the upgrade
// fails.
func (r *Registry) reserve(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConns > 0 && r.total >= r.maxConns {
		return ErrServerFull
	}
	if r.maxPerClient > 0 && r.perClient[clientID] >= r.maxPerClient {
		return ErrClientLimit
	}

	r.total++
	r.perClient[clientID]++

	return nil
}

// unreserve releases a claimed slot after a failed upgrade.
func (r *Registry) unreserve(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total--
	if n := r.perClient[clientID] - 1; n > 0 {
		r.perClient[clientID] = n
	} else {
		delete(r.perClient, clientID)
	}
}

// insert registers an upgraded connection on its reserved slot.
func (r *Registry) insert(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
}

// remove deregisters a connection and releases its slot.
func (r *Registry) remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return
	}
	delete(r.conns, c.ID())

	r.total--
	if n := r.perClient[c.ClientID()] - 1; n > 0 {
		r.perClient[c.ClientID()] = n
	} else {
		delete(r.perClient, c.ClientID())
	}
}
