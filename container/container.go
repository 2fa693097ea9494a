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

package container

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Predefined registry errors.
var (
	// ErrRegistrationClosed is returned by Register after the container froze.
	ErrRegistrationClosed = errors.New("container: registration closed")

	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("container: duplicate type")

	// ErrNotRegistered is returned by Resolve for an unknown type.
	ErrNotRegistered = errors.New("container: type not registered")
)

// Container is a type-keyed registry of shared dependencies.
//
// The zero value is not usable; create instances with [New]. All methods are
// safe for concurrent use.
type Container struct {
	mu      sync.RWMutex
	entries map[reflect.Type]any
	frozen  bool
}

// New returns an empty, unfrozen container.
func New() *Container {
	return &Container{
		entries: make(map[reflect.Type]any),
	}
}

// keyOf resolves the registry key for a type parameter. Using a pointer
// indirection keeps interface type parameters addressable as keys.
func keyOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register stores value under its static type T.
//
// It returns [ErrDuplicateType] if T is already registered and
// [ErrRegistrationClosed] if the container froze. Both errors name the
// offending type.
func Register[T any](c *Container, value T) error {
	key := keyOf[T]()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return fmt.Errorf("%w: cannot register %s after serving started", ErrRegistrationClosed, key)
	}
	if _, exists := c.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, key)
	}
	c.entries[key] = value

	return nil
}

// MustRegister is like [Register] but panics on error. It is intended for
// application assembly where a wiring mistake should fail fast.
func MustRegister[T any](c *Container, value T) {
	if err := Register(c, value); err != nil {
		panic(err)
	}
}

// Resolve returns the value registered under type T.
//
// It returns [ErrNotRegistered] naming T when no value was registered.
func Resolve[T any](c *Container) (T, error) {
	key := keyOf[T]()

	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero T

		return zero, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	return value.(T), nil
}

// MustResolve is like [Resolve] but panics when T is not registered.
func MustResolve[T any](c *Container) T {
	value, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}

	return value
}

// Has reports whether a value is registered under type T.
func Has[T any](c *Container) bool {
	key := keyOf[T]()

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[key]

	return ok
}

// Len returns the number of registered types.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Freeze closes the container for registration. Resolution remains
// available. Freeze is idempotent.
func (c *Container) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether the container is closed for registration.
func (c *Container) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.frozen
}

// Types returns the names of all registered types in sorted order.
// It exists for diagnostics and error reporting.
func (c *Container) Types() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for key := range c.entries {
		names = append(names, key.String())
	}
	c.mu.RUnlock()

	sort.Strings(names)

	return names
}
