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
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/config"
	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/logging"
	"archimedes.dev/archimedes/metrics"
	"archimedes.dev/archimedes/pipeline"
	"archimedes.dev/archimedes/tracing"
	"archimedes.dev/archimedes/validation"
)

// Version is the framework version, surfaced at /_archimedes/version and
// through the binding ABI.
const Version = "1.0.0"

// reservedPrefix is owned by the sidecar endpoints on the main listener.
const reservedPrefix = "/_archimedes/"

// App wires a contract artifact, the request pipeline, and the
// observability stack into a runnable HTTP service.
//
// Build one with [New], register handlers for the contract's operations,
// then call [App.Run]. Configuration, hook registration, and mounts are
// rejected once the server has started.
type App struct {
	cfg      *config.Config
	logging  *logging.Logger
	logger   *slog.Logger
	metrics  *metrics.Recorder
	tracing  *tracing.Tracer
	artifact *contract.Artifact
	resolver *contract.Resolver
	schemas  *validation.SchemaValidator
	engine   *authz.Engine
	watcher  *authz.Watcher
	idents   *identity.Chain
	registry *container.Container
	pipe     *pipeline.Pipeline

	hooks     Hooks
	readiness *ReadinessManager

	mounts  map[string]http.Handler
	mountMu sync.Mutex

	// Construction inputs collected by options, consumed by the build
	// steps in New.
	configOpts    []config.Option
	identityOpts  []identity.ChainOption
	contractBytes []byte

	version       string
	bannerEnabled bool
	bannerForced  bool

	customConfig   *config.Config
	customLogging  *logging.Logger
	customMetrics  *metrics.Recorder
	customTracing  *tracing.Tracer
	customIdents   *identity.Chain
	customEngine   *authz.Engine
	customRegistry *container.Container

	boundAddr atomic.Value // string
	readyCh   chan struct{}
	ready     atomic.Bool
	started   atomic.Bool
}

// New builds an App: configuration is loaded and validated, the contract
// artifact is loaded and sealed, and the pipeline is assembled. Everything
// that can fail from bad configuration fails here, before Run.
func New(opts ...Option) (*App, error) {
	a := &App{
		version:       Version,
		bannerEnabled: true,
		readiness:     &ReadinessManager{},
		readyCh:       make(chan struct{}),
		mounts:        make(map[string]http.Handler),
	}

	for _, opt := range opts {
		opt(a)
	}

	if err := a.buildConfig(); err != nil {
		return nil, err
	}
	if err := a.buildTelemetry(); err != nil {
		return nil, err
	}
	if err := a.buildContract(); err != nil {
		return nil, err
	}
	a.buildAuthorization()
	a.buildIdentity()
	if err := a.buildPipeline(); err != nil {
		return nil, err
	}

	return a, nil
}

// MustNew is New, panicking on error.
func MustNew(opts ...Option) *App {
	a, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("app: %v", err))
	}

	return a
}

func (a *App) buildConfig() error {
	if a.customConfig != nil {
		if err := a.customConfig.Validate(); err != nil {
			return err
		}
		a.cfg = a.customConfig

		return nil
	}

	cfg, err := config.Load(a.configOpts...)
	if err != nil {
		return err
	}
	a.cfg = cfg

	return nil
}

func (a *App) buildTelemetry() error {
	if a.customLogging != nil {
		a.logging = a.customLogging
	} else {
		lg, err := logging.New(
			logging.WithHandlerType(logging.HandlerType(a.cfg.Logging.Format)),
			logging.WithLevel(parseLogLevel(a.cfg.Logging.Level)),
			logging.WithServiceName(a.cfg.ServiceName),
			logging.WithServiceVersion(a.cfg.ServiceVersion),
			logging.WithEnvironment(a.cfg.Environment),
		)
		if err != nil {
			return errors.Wrap(errors.KindConfiguration, err, "build logger")
		}
		a.logging = lg
	}
	a.logger = a.logging.Slog()

	if a.customMetrics != nil {
		a.metrics = a.customMetrics
	} else if a.cfg.Metrics.Port != 0 {
		rec, err := metrics.New(
			metrics.WithServiceName(a.cfg.ServiceName),
			metrics.WithServiceVersion(a.cfg.ServiceVersion),
			metrics.WithPrometheus(fmt.Sprintf(":%d", a.cfg.Metrics.Port), "/metrics"),
			metrics.WithLogger(a.logger),
		)
		if err != nil {
			return errors.Wrap(errors.KindConfiguration, err, "build metrics recorder")
		}
		a.metrics = rec
	}

	if a.customTracing != nil {
		a.tracing = a.customTracing

		return nil
	}

	topts := []tracing.Option{
		tracing.WithServiceName(a.cfg.ServiceName),
		tracing.WithServiceVersion(a.cfg.ServiceVersion),
		tracing.WithEnvironment(a.cfg.Environment),
		tracing.WithSampleRate(a.cfg.Tracing.SampleRate),
		tracing.WithLogger(a.logger),
	}
	if a.cfg.Tracing.Enabled {
		switch a.cfg.Tracing.Provider {
		case "stdout":
			topts = append(topts, tracing.WithStdout())
		case "otlp":
			// Scheme-qualified endpoints go over HTTP, bare host:port
			// over gRPC.
			if strings.Contains(a.cfg.Tracing.Endpoint, "://") {
				topts = append(topts, tracing.WithOTLPHTTP(a.cfg.Tracing.Endpoint))
			} else {
				topts = append(topts, tracing.WithOTLPGRPC(a.cfg.Tracing.Endpoint))
			}
		}
		if a.cfg.Tracing.Insecure {
			topts = append(topts, tracing.WithInsecure())
		}
	}

	tr, err := tracing.New(topts...)
	if err != nil {
		return errors.Wrap(errors.KindConfiguration, err, "build tracer")
	}
	a.tracing = tr

	return nil
}

func (a *App) buildContract() error {
	var (
		art *contract.Artifact
		err error
	)

	switch {
	case a.contractBytes != nil:
		art, err = contract.LoadBytes(a.contractBytes)
	case a.cfg.Contract.Path != "":
		art, err = contract.Load(a.cfg.Contract.Path)
	case a.cfg.Contract.URL != "":
		art, err = contract.LoadRemote(context.Background(), a.cfg.Contract.URL)
	default:
		return errors.New(errors.KindArtifactLoad, "no contract source: set contract.path, contract.url, or WithContractBytes")
	}
	if err != nil {
		return err
	}

	if err := art.Seal(); err != nil {
		return err
	}
	a.artifact = art

	resolver, err := contract.NewResolver(art)
	if err != nil {
		return err
	}
	a.resolver = resolver

	if a.cfg.Validation.EnableRequest || a.cfg.Validation.EnableResponse {
		v, err := validation.NewSchemaValidator(art)
		if err != nil {
			return err
		}
		a.schemas = v
	}

	return nil
}

func (a *App) buildAuthorization() {
	if a.customEngine != nil {
		a.engine = a.customEngine

		return
	}
	if !a.cfg.Authorization.Enabled {
		return
	}

	opts := []authz.Option{authz.WithLogger(a.logger)}
	if a.cfg.Authorization.Query != "" {
		opts = append(opts, authz.WithQuery(a.cfg.Authorization.Query))
	}
	if a.cfg.Authorization.Cache.Capacity > 0 {
		opts = append(opts, authz.WithCache(
			a.cfg.Authorization.Cache.Capacity,
			a.cfg.Authorization.Cache.TTL,
			a.cfg.Authorization.Cache.CacheDenies,
		))
	}

	a.engine = authz.New(opts...)
}

func (a *App) buildIdentity() {
	if a.customIdents != nil {
		a.idents = a.customIdents

		return
	}

	a.idents = identity.DefaultChain(a.identityOpts...)
}

func (a *App) buildPipeline() error {
	a.registry = a.customRegistry
	if a.registry == nil {
		a.registry = container.New()
	}

	popts := []pipeline.Option{
		pipeline.WithService(a.cfg.ServiceName),
		pipeline.WithLogger(a.logger),
		pipeline.WithContainer(a.registry),
		pipeline.WithTrustIncomingRequestID(a.cfg.Server.TrustIncomingRequestID),
		pipeline.WithIdentityChain(a.idents),
		pipeline.WithMaxBodyBytes(a.cfg.Limits.MaxBodyBytes),
		pipeline.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	}
	if a.metrics != nil {
		popts = append(popts, pipeline.WithRecorder(a.metrics))
	}
	if a.engine != nil {
		popts = append(popts, pipeline.WithAuthorizer(a.engine))
	}
	if a.schemas != nil && a.cfg.Validation.EnableRequest {
		popts = append(popts, pipeline.WithRequestValidation(
			a.schemas, a.cfg.Validation.RequestMode == config.ModeEnforce))
	}
	if a.schemas != nil && a.cfg.Validation.EnableResponse {
		popts = append(popts, pipeline.WithResponseValidation(
			a.schemas, a.cfg.Validation.ResponseMode == config.ModeEnforce))
	}
	if a.tracing != nil && a.tracing.IsEnabled() {
		popts = append(popts,
			pipeline.WithTracer(a.tracing.Tracer()),
			pipeline.WithPropagator(a.tracing.Propagator()))
	}

	p, err := pipeline.New(a.resolver, popts...)
	if err != nil {
		return err
	}
	a.pipe = p

	return nil
}

// parseLogLevel maps the config level string to a slog level. The config
// validator has already constrained the value; unknown strings fall back
// to info.
func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// Register binds a handler to a contract operation id. Registration is
// rejected for unknown operations, duplicate registrations, and after the
// server has started.
func (a *App) Register(operationID string, h pipeline.Handler) error {
	return a.pipe.Register(operationID, h)
}

// MustRegister is Register, panicking on error.
func (a *App) MustRegister(operationID string, h pipeline.Handler) {
	a.pipe.MustRegister(operationID, h)
}

// Mount attaches a raw http.Handler beside the pipeline, for endpoints the
// contract cannot express: WebSocket upgrades, SSE streams, debug pages.
// Mounted paths bypass the pipeline entirely. The /_archimedes/ prefix is
// reserved.
func (a *App) Mount(pattern string, h http.Handler) error {
	if a.started.Load() {
		return errors.New(errors.KindHandlerRegistration, "cannot mount after the server has started")
	}
	if h == nil {
		return errors.New(errors.KindHandlerRegistration, "nil handler")
	}
	if !strings.HasPrefix(pattern, "/") {
		return errors.Newf(errors.KindHandlerRegistration, "mount pattern %q must start with /", pattern)
	}
	if strings.HasPrefix(pattern, reservedPrefix) || pattern == strings.TrimSuffix(reservedPrefix, "/") {
		return errors.Newf(errors.KindHandlerRegistration, "mount pattern %q is reserved", pattern)
	}

	a.mountMu.Lock()
	defer a.mountMu.Unlock()
	if _, dup := a.mounts[pattern]; dup {
		return errors.Newf(errors.KindHandlerRegistration, "pattern %q already mounted", pattern)
	}
	a.mounts[pattern] = h

	return nil
}

// MustMount is Mount, panicking on error.
func (a *App) MustMount(pattern string, h http.Handler) {
	if err := a.Mount(pattern, h); err != nil {
		panic(fmt.Sprintf("app: %v", err))
	}
}

// Config returns the resolved configuration. Treat it as read-only.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the service logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Pipeline returns the request pipeline, mainly for tests that drive it
// directly.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// Container returns the dependency container. Registrations are rejected
// once the server has started.
func (a *App) Container() *container.Container { return a.registry }

// Artifact returns the sealed contract artifact.
func (a *App) Artifact() *contract.Artifact { return a.artifact }

// Resolver returns the contract resolver.
func (a *App) Resolver() *contract.Resolver { return a.resolver }

// Authorizer returns the policy engine, or nil when authorization is
// disabled.
func (a *App) Authorizer() *authz.Engine { return a.engine }

// Metrics returns the metrics recorder, or nil when metrics are disabled.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Tracing returns the tracer.
func (a *App) Tracing() *tracing.Tracer { return a.tracing }

// Readiness returns the manager for runtime readiness gates.
func (a *App) Readiness() *ReadinessManager { return a.readiness }

// Version returns the framework version string.
func (a *App) Version() string { return a.version }

// BoundAddr returns the address the listener actually bound, usable once
// [App.WaitReady] has returned. Empty before the server starts.
func (a *App) BoundAddr() string {
	if addr, ok := a.boundAddr.Load().(string); ok {
		return addr
	}

	return ""
}

// WaitReady blocks until the server is accepting connections or ctx is
// done.
func (a *App) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether startup completed and the listener is accepting
// connections, and all readiness gates pass.
func (a *App) Ready() bool {
	if !a.ready.Load() {
		return false
	}
	ok, _ := a.readiness.Check()

	return ok
}
