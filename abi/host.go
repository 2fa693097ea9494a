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
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"archimedes.dev/archimedes/app"
	"archimedes.dev/archimedes/config"
	"archimedes.dev/archimedes/errors"
)

// Config mirrors the C archimedes_config struct field for field. Zero
// values select the documented defaults, except ListenPort where zero binds
// an ephemeral port; language bindings that promise the 8080 default apply
// it on their side before crossing the ABI.
type Config struct {
	// ContractPath locates the contract artifact on disk. Required.
	ContractPath string

	// PolicyBundlePath locates the OPA policy bundle. Optional; without it
	// the authorizer runs against an empty policy set.
	PolicyBundlePath string

	// ListenAddr is the bind address, default 0.0.0.0.
	ListenAddr string

	// ListenPort is the HTTP port. Zero binds an ephemeral port.
	ListenPort uint16

	// MetricsPort is the Prometheus scrape port, zero disables metrics.
	MetricsPort uint16

	EnableValidation         bool
	EnableResponseValidation bool
	EnableAuthorization      bool
	EnableTracing            bool

	// OTLPEndpoint selects the OTLP trace exporter when tracing is
	// enabled; empty falls back to the stdout exporter.
	OTLPEndpoint string

	// ServiceName defaults to archimedes-service.
	ServiceName string

	// ShutdownTimeoutSecs bounds graceful shutdown, default 30.
	ShutdownTimeoutSecs uint32

	// RequestTimeoutSecs bounds handler execution, default 30.
	RequestTimeoutSecs uint32

	// MaxBodySize caps request bodies in bytes, default 1 MiB.
	MaxBodySize uint64
}

// runtime maps the flat ABI configuration onto the framework configuration,
// starting from the built-in defaults so unset fields keep their documented
// values.
func (c Config) runtime() *config.Config {
	cfg := config.Default()

	cfg.Contract.Path = c.ContractPath
	if c.ListenAddr != "" {
		cfg.Server.ListenAddr = c.ListenAddr
	}
	cfg.Server.Port = int(c.ListenPort)
	cfg.Metrics.Port = int(c.MetricsPort)

	cfg.Validation.EnableRequest = c.EnableValidation
	cfg.Validation.EnableResponse = c.EnableResponseValidation

	cfg.Authorization.Enabled = c.EnableAuthorization
	cfg.Authorization.BundlePath = c.PolicyBundlePath

	cfg.Tracing.Enabled = c.EnableTracing
	if c.EnableTracing {
		if c.OTLPEndpoint != "" {
			cfg.Tracing.Provider = "otlp"
			cfg.Tracing.Endpoint = c.OTLPEndpoint
		} else {
			cfg.Tracing.Provider = "stdout"
		}
	}

	if c.ServiceName != "" {
		cfg.ServiceName = c.ServiceName
	}
	if c.ShutdownTimeoutSecs > 0 {
		cfg.Server.ShutdownTimeout = time.Duration(c.ShutdownTimeoutSecs) * time.Second
	}
	if c.RequestTimeoutSecs > 0 {
		cfg.Server.RequestTimeout = time.Duration(c.RequestTimeoutSecs) * time.Second
	}
	if c.MaxBodySize > 0 {
		cfg.Limits.MaxBodyBytes = int64(c.MaxBodySize)
	}

	return cfg
}

// Host is one embedded server instance as the C API sees it: the value
// behind an archimedes_app handle. It owns the app, the foreign-callback
// registry, and the run/stop lifecycle the C functions drive from foreign
// threads.
type Host struct {
	app      *app.App
	registry *Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	started atomic.Bool
	running atomic.Bool
	closed  atomic.Bool
}

// NewHost builds a host from the flat ABI configuration. Everything that
// can fail from bad configuration fails here: config validation, artifact
// load and checksum verification, schema compilation.
func NewHost(cfg Config) (*Host, error) {
	a, err := app.New(
		app.WithConfig(cfg.runtime()),
		app.WithoutBanner(),
	)
	if err != nil {
		return nil, err
	}

	return &Host{app: a, registry: NewRegistry()}, nil
}

// App exposes the embedded app, mainly for tests that need the bound
// address or the pipeline.
func (h *Host) App() *app.App { return h.app }

// Registry exposes the foreign-callback registry.
func (h *Host) Registry() *Registry { return h.registry }

// Version returns the framework version string the ABI reports.
func (h *Host) Version() string { return h.app.Version() }

// RegisterHandler binds a foreign callback to a contract operation. The
// registry takes the callback first so ABI registration rules apply even
// when the pipeline would also have caught the error; a pipeline rejection
// (unknown operation, native handler already bound) rolls the registry
// entry back.
func (h *Host) RegisterHandler(operationID string, cb Callback) error {
	if h.closed.Load() {
		return errors.New(errors.KindHandlerRegistration, "host is closed")
	}

	if err := h.registry.Register(operationID, cb); err != nil {
		return err
	}
	if err := h.app.Register(operationID, Adapt(cb)); err != nil {
		h.registry.remove(operationID)

		return err
	}

	return nil
}

// RegisterAsyncHandler rejects async foreign handlers. The callback type
// exists in the header for layout compatibility, but the invoker does not
// drive completion callbacks, so accepting one would register a handler
// that never responds.
func (h *Host) RegisterAsyncHandler(operationID string) error {
	return errors.Newf(errors.KindHandlerRegistration,
		"async foreign handlers are not supported: operation %q must register a synchronous handler", operationID)
}

// Run freezes the registry and serves until Stop is called or the process
// receives SIGINT/SIGTERM. It blocks the calling thread, which for the C
// API is the thread that called archimedes_run.
func (h *Host) Run() error {
	if h.closed.Load() {
		return errors.New(errors.KindServerStart, "host is closed")
	}
	if !h.started.CompareAndSwap(false, true) {
		return errors.New(errors.KindServerStart, "server already started")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	h.registry.Freeze()

	// Flip the running flag when the listener is accepting; the watcher
	// ends with ctx both on shutdown and on a failed start.
	go func() {
		if h.app.WaitReady(ctx) == nil {
			h.running.Store(true)
		}
	}()

	err := h.app.Run(ctx)

	h.running.Store(false)
	cancel()
	close(done)

	return err
}

// Stop triggers graceful shutdown and blocks until Run has returned, so a
// C caller that frees the handle right after archimedes_stop cannot pull
// memory out from under in-flight requests. Stopping a host that never ran
// is an error; stopping one that already stopped is not.
func (h *Host) Stop() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if cancel == nil {
		return errors.New(errors.KindServerStart, "server is not running")
	}

	cancel()
	<-done

	return nil
}

// IsRunning reports whether the listener is accepting connections.
func (h *Host) IsRunning() bool { return h.running.Load() }

// Close stops the server if it is still running and marks the host
// unusable. Idempotent; called by archimedes_free.
func (h *Host) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
