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
	"sync"
)

// Gate is a component that reports whether it can serve traffic. Gates
// registered with [ReadinessManager] feed /_archimedes/ready: the service
// reports ready only when startup has completed and every gate passes.
type Gate interface {
	Ready() bool
}

// GateFunc adapts a plain function to a [Gate].
type GateFunc func() bool

// Ready reports the function's result.
func (f GateFunc) Ready() bool { return f() }

// ReadinessManager holds named readiness gates. Gates can be registered
// and removed at any time, including while the server is running; a
// connection pool can take itself out of rotation by flipping its gate.
// Safe for concurrent use.
type ReadinessManager struct {
	mu    sync.RWMutex
	gates map[string]Gate
}

// Register adds a gate under name, replacing any existing gate with the
// same name.
func (rm *ReadinessManager) Register(name string, gate Gate) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.gates == nil {
		rm.gates = make(map[string]Gate)
	}
	rm.gates[name] = gate
}

// Unregister removes the named gate. Removing an unknown name is a no-op.
func (rm *ReadinessManager) Unregister(name string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.gates, name)
}

// Check evaluates every gate. It reports whether all pass, plus the
// per-gate results. No gates means ready.
func (rm *ReadinessManager) Check() (bool, map[string]bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if len(rm.gates) == 0 {
		return true, nil
	}

	status := make(map[string]bool, len(rm.gates))
	allReady := true
	for name, gate := range rm.gates {
		ready := gate.Ready()
		status[name] = ready
		if !ready {
			allReady = false
		}
	}

	return allReady, status
}
