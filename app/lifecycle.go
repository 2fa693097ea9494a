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
	"context"
	"fmt"
	"sync"
)

// Hooks stores the lifecycle callbacks of an App.
type Hooks struct {
	onStart    []func(context.Context) error // sequential, first error aborts startup
	onReady    []func()                      // async, errors don't stop the server
	onShutdown []func(context.Context)       // LIFO, bounded by the shutdown timeout
	onStop     []func()                      // best effort after the server exits
	mu         sync.Mutex
}

// OnStart registers a hook that runs before the listener opens. Hooks run
// sequentially in registration order; the first error aborts startup.
// Use it for initialization that must succeed: database connections,
// cache warmup, migrations.
//
//	a.OnStart(func(ctx context.Context) error {
//	    return db.PingContext(ctx)
//	})
func (a *App) OnStart(fn func(context.Context) error) {
	a.checkNotStarted()
	a.hooks.mu.Lock()
	defer a.hooks.mu.Unlock()
	a.hooks.onStart = append(a.hooks.onStart, fn)
}

// OnReady registers a hook that runs after the listener is accepting
// connections. Hooks run asynchronously; panics are recovered and logged.
// Use it for service discovery registration and other announcements.
func (a *App) OnReady(fn func()) {
	a.checkNotStarted()
	a.hooks.mu.Lock()
	defer a.hooks.mu.Unlock()
	a.hooks.onReady = append(a.hooks.onReady, fn)
}

// OnShutdown registers a hook that runs during graceful shutdown, after
// in-flight requests have drained. Hooks run in reverse registration
// order and receive a context bounded by the shutdown timeout.
func (a *App) OnShutdown(fn func(context.Context)) {
	a.checkNotStarted()
	a.hooks.mu.Lock()
	defer a.hooks.mu.Unlock()
	a.hooks.onShutdown = append(a.hooks.onShutdown, fn)
}

// OnStop registers a hook that runs after the server has fully stopped.
// Hooks run best-effort; panics are recovered and logged.
func (a *App) OnStop(fn func()) {
	a.checkNotStarted()
	a.hooks.mu.Lock()
	defer a.hooks.mu.Unlock()
	a.hooks.onStop = append(a.hooks.onStop, fn)
}

func (a *App) checkNotStarted() {
	if a.started.Load() {
		panic("app: cannot register hooks after the server has started")
	}
}

// executeStartHooks runs the OnStart hooks sequentially, stopping at the
// first failure.
func (a *App) executeStartHooks(ctx context.Context) error {
	a.hooks.mu.Lock()
	hooks := make([]func(context.Context) error, len(a.hooks.onStart))
	copy(hooks, a.hooks.onStart)
	a.hooks.mu.Unlock()

	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("OnStart hook %d failed: %w", i, err)
		}
	}

	return nil
}

// executeReadyHooks fires the OnReady hooks, each in its own goroutine
// with panic recovery.
func (a *App) executeReadyHooks() {
	a.hooks.mu.Lock()
	hooks := make([]func(), len(a.hooks.onReady))
	copy(hooks, a.hooks.onReady)
	a.hooks.mu.Unlock()

	for _, hook := range hooks {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("OnReady hook panic", "error", r)
				}
			}()
			hook()
		}()
	}
}

// executeShutdownHooks runs the OnShutdown hooks in reverse registration
// order.
func (a *App) executeShutdownHooks(ctx context.Context) {
	a.hooks.mu.Lock()
	hooks := make([]func(context.Context), len(a.hooks.onShutdown))
	copy(hooks, a.hooks.onShutdown)
	a.hooks.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}

// executeStopHooks runs the OnStop hooks with panic recovery.
func (a *App) executeStopHooks() {
	a.hooks.mu.Lock()
	hooks := make([]func(), len(a.hooks.onStop))
	copy(hooks, a.hooks.onStop)
	a.hooks.mu.Unlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Warn("OnStop hook panic", "error", r)
				}
			}()
			hook()
		}()
	}
}
