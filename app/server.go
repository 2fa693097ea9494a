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
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"

	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/errors"
)

// Run starts the HTTP server and blocks until ctx is canceled or the
// server fails. Cancellation triggers graceful shutdown: the listener
// closes immediately, in-flight requests drain up to the shutdown timeout,
// then the shutdown hooks run in reverse order.
//
// Signal handling belongs to the caller:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	if err := a.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
func (a *App) Run(ctx context.Context) error {
	listener, err := a.prepare(ctx)
	if err != nil {
		return err
	}

	server := a.newServer(ctx, a.rootHandler())

	return a.runServer(ctx, server, listener, "HTTP", func() error {
		return server.Serve(listener)
	})
}

// RunTLS is Run over TLS with the given certificate pair.
func (a *App) RunTLS(ctx context.Context, certFile, keyFile string) error {
	listener, err := a.prepare(ctx)
	if err != nil {
		return err
	}

	server := a.newServer(ctx, a.rootHandler())

	return a.runServer(ctx, server, listener, "HTTPS", func() error {
		return server.ServeTLS(listener, certFile, keyFile)
	})
}

// RunMTLS is Run over mutual TLS: clients must present a certificate
// signed by the configured CA pool. Client identities surface through the
// pipeline's mTLS identity source.
func (a *App) RunMTLS(ctx context.Context, serverCert tls.Certificate, opts ...MTLSOption) error {
	mcfg := newMTLSConfig(serverCert, opts...)
	if err := mcfg.validate(); err != nil {
		return errors.Wrap(errors.KindConfiguration, err, "invalid mTLS configuration")
	}

	listener, err := a.prepare(ctx)
	if err != nil {
		return err
	}

	tlsConfig := mcfg.buildTLSConfig()
	tlsListener := tls.NewListener(listener, tlsConfig)

	server := a.newServer(ctx, a.rootHandler())
	server.TLSConfig = tlsConfig

	// Certificate authorization happens per connection, before any
	// request on it is served.
	server.ConnState = func(conn net.Conn, state http.ConnState) {
		if state == http.StateActive && !mcfg.authorizeConn(conn) {
			conn.Close()
		}
	}

	return a.runServer(ctx, server, tlsListener, "mTLS", func() error {
		return server.Serve(tlsListener)
	})
}

// prepare transitions the app to started: observability comes up, the
// policy bundle loads, the start hooks run, the registries freeze, and the
// listener binds. Any failure unwinds what already started.
func (a *App) prepare(ctx context.Context) (net.Listener, error) {
	if !a.started.CompareAndSwap(false, true) {
		return nil, errors.New(errors.KindServerStart, "server already started")
	}

	if a.metrics != nil {
		if err := a.metrics.Start(ctx); err != nil {
			return nil, errors.Wrap(errors.KindServerStart, err, "start metrics listener")
		}
	}

	if err := a.loadPolicy(ctx); err != nil {
		a.unwind()

		return nil, err
	}

	if err := a.executeStartHooks(ctx); err != nil {
		a.unwind()

		return nil, fmt.Errorf("startup failed: %w", err)
	}

	// Point of no return: handlers, mounts, and container registrations
	// are now immutable.
	a.registry.Freeze()
	a.pipe.Freeze()

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", a.cfg.Addr())
	if err != nil {
		a.unwind()

		return nil, errors.Wrapf(errors.KindServerStart, err, "listen on %s", a.cfg.Addr())
	}

	if a.cfg.Limits.MaxConns > 0 {
		listener = netutil.LimitListener(listener, a.cfg.Limits.MaxConns)
	}
	a.boundAddr.Store(listener.Addr().String())

	return listener, nil
}

// unwind tears down components brought up by a failed prepare.
func (a *App) unwind() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.stopPolicyWatcher()
	a.shutdownObservability(ctx)
}

// loadPolicy loads the authorization bundle and starts the change watcher
// when configured.
func (a *App) loadPolicy(ctx context.Context) error {
	if a.engine == nil || a.cfg.Authorization.BundlePath == "" {
		return nil
	}

	if err := a.engine.LoadBundle(ctx, a.cfg.Authorization.BundlePath); err != nil {
		return err
	}

	if !a.cfg.Authorization.Watch {
		return nil
	}

	watcher, err := authz.NewWatcher(a.engine, a.cfg.Authorization.BundlePath,
		authz.WithWatcherLogger(a.logger))
	if err != nil {
		return errors.Wrap(errors.KindPolicyLoad, err, "create bundle watcher")
	}
	if err := watcher.Start(); err != nil {
		return errors.Wrap(errors.KindPolicyLoad, err, "start bundle watcher")
	}
	a.watcher = watcher

	return nil
}

func (a *App) stopPolicyWatcher() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("policy watcher stop failed", "error", err)
		}
		a.watcher = nil
	}
}

// rootHandler assembles the main listener's handler: sidecar endpoints,
// raw mounts, then the pipeline for everything else, optionally wrapped
// for h2c.
func (a *App) rootHandler() http.Handler {
	mux := http.NewServeMux()
	a.mountSidecar(mux)

	a.mountMu.Lock()
	for pattern, h := range a.mounts {
		mux.Handle(pattern, h)
	}
	a.mountMu.Unlock()

	var root http.Handler = a.pipe
	if a.cfg.Limits.MaxConnsPerClient > 0 {
		root = newClientLimiter(root, a.cfg.Limits.MaxConnsPerClient, a.logger)
	}
	mux.Handle("/", root)

	handler := http.Handler(mux)
	if a.cfg.Server.EnableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	return handler
}

func (a *App) newServer(ctx context.Context, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}
}

// runServer owns the serve/shutdown lifecycle shared by Run, RunTLS, and
// RunMTLS.
func (a *App) runServer(ctx context.Context, server *http.Server, listener net.Listener, protocol string, serve func() error) error {
	serverErr := make(chan error, 1)
	serverUp := make(chan struct{})

	go func() {
		a.printStartupBanner(listener.Addr().String(), protocol)
		a.logStartupInfo(ctx, listener.Addr().String(), protocol)
		close(serverUp)

		if err := serve(); err != nil && err != http.ErrServerClosed {
			serverErr <- errors.Wrapf(errors.KindServerStart, err, "%s server failed", protocol)
		}
	}()

	// The listener is already bound, so connections made from here on
	// queue until Serve picks them up.
	<-serverUp
	a.ready.Store(true)
	close(a.readyCh)
	a.executeReadyHooks()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		a.logger.Info("server shutting down", "protocol", protocol, "reason", ctx.Err())
	}

	a.ready.Store(false)

	// The parent ctx is already canceled; the fresh context bounds how
	// long draining and the shutdown hooks may take.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closes the listener immediately and waits for in-flight requests.
	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("%s server forced to shutdown: %w", protocol, err)
	}

	a.executeShutdownHooks(shutdownCtx)
	a.stopPolicyWatcher()
	a.shutdownObservability(shutdownCtx)
	a.executeStopHooks()

	a.logger.Info("server exited", "protocol", protocol)

	if a.customLogging == nil {
		_ = a.logging.Shutdown(shutdownCtx)
	}

	return shutdownErr
}

func (a *App) logStartupInfo(ctx context.Context, addr, protocol string) {
	attrs := []any{
		"address", addr,
		"environment", a.cfg.Environment,
		"protocol", protocol,
		"operations", len(a.artifact.Operations),
	}
	if a.metrics != nil {
		attrs = append(attrs, "metrics_address", a.metrics.ServerAddress())
	}
	if a.tracing != nil && a.tracing.IsEnabled() {
		attrs = append(attrs, "tracing_provider", string(a.tracing.Provider()))
	}

	if a.logger.Enabled(ctx, slog.LevelInfo) {
		a.logger.Info("server starting", attrs...)
	}
}

func (a *App) shutdownObservability(ctx context.Context) {
	if a.metrics != nil && a.customMetrics == nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown failed", "error", err)
		}
	}
	if a.tracing != nil && a.customTracing == nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}
