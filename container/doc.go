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

// Package container provides a type-keyed dependency registry shared by
// handlers and background tasks.
//
// Values are registered once during application assembly and resolved by
// their static Go type. One value per type is allowed; registering a second
// value for an already-registered type is an error, which keeps wiring
// explicit instead of silently shadowing dependencies.
//
// The registry freezes when the application starts serving. After
// [Container.Freeze] every registration attempt fails with
// [ErrRegistrationClosed], so the dependency graph visible to handlers is
// immutable for the lifetime of the process. Resolution is lock-cheap and
// safe for concurrent use from any goroutine.
//
// Example:
//
//	c := container.New()
//	if err := container.Register(c, store); err != nil {
//	    return err
//	}
//	c.Freeze()
//
//	store, err := container.Resolve[*UserStore](c)
//
// Interface types are registered through a pointer type parameter:
//
//	container.Register[UserStore](c, postgresStore{})
package container
