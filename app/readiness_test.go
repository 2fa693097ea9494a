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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadinessNoGatesIsReady(t *testing.T) {
	t.Parallel()

	rm := &ReadinessManager{}

	ok, gates := rm.Check()

	assert.True(t, ok)
	assert.Empty(t, gates)
}

func TestReadinessAllGatesMustPass(t *testing.T) {
	t.Parallel()

	rm := &ReadinessManager{}
	rm.Register("db", GateFunc(func() bool { return true }))
	rm.Register("broker", GateFunc(func() bool { return false }))

	ok, gates := rm.Check()

	assert.False(t, ok)
	assert.Equal(t, map[string]bool{"db": true, "broker": false}, gates)
}

func TestReadinessRegisterReplacesGate(t *testing.T) {
	t.Parallel()

	rm := &ReadinessManager{}
	rm.Register("db", GateFunc(func() bool { return false }))
	rm.Register("db", GateFunc(func() bool { return true }))

	ok, gates := rm.Check()

	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"db": true}, gates)
}

func TestReadinessUnregister(t *testing.T) {
	t.Parallel()

	rm := &ReadinessManager{}
	rm.Register("db", GateFunc(func() bool { return false }))
	rm.Unregister("db")
	rm.Unregister("never-registered")

	ok, _ := rm.Check()

	assert.True(t, ok)
}

func TestReadinessConcurrentAccess(t *testing.T) {
	t.Parallel()

	rm := &ReadinessManager{}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a' + n))
			rm.Register(name, GateFunc(func() bool { return true }))
		}(i)
		go func() {
			defer wg.Done()
			rm.Check()
		}()
	}
	wg.Wait()

	ok, gates := rm.Check()
	assert.True(t, ok)
	assert.Len(t, gates, 10)
}
