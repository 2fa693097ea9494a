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
	"archimedes.dev/archimedes/authz"
	"archimedes.dev/archimedes/config"
	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/logging"
	"archimedes.dev/archimedes/metrics"
	"archimedes.dev/archimedes/tracing"
)

// Option configures an App at construction time.
type Option func(*App)

// WithConfig supplies a fully built configuration, skipping the
// file/env loading layers. The configuration is still validated.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.customConfig = cfg
	}
}

// WithConfigFile adds a configuration file layer (YAML, TOML, or JSON).
// Later files override earlier ones; ARCHIMEDES_* environment variables
// override files.
func WithConfigFile(path string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithFile(path))
	}
}

// WithConfigOptions forwards raw options to the configuration loader.
func WithConfigOptions(opts ...config.Option) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, opts...)
	}
}

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithServiceName(name))
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithServiceVersion(version))
	}
}

// WithPort sets the HTTP listener port. Port 0 binds an ephemeral port,
// which tests read back with [App.BoundAddr].
func WithPort(port int) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithPort(port))
	}
}

// WithContractPath points the service at a contract artifact on disk.
func WithContractPath(path string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithContractPath(path))
	}
}

// WithContractURL points the service at a remote contract artifact,
// fetched with retries at construction time.
func WithContractURL(url string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithContractURL(url))
	}
}

// WithContractBytes supplies the contract artifact in memory. Takes
// precedence over path and URL sources.
func WithContractBytes(data []byte) Option {
	return func(a *App) {
		a.contractBytes = data
	}
}

// WithPolicyBundle points the authorizer at an OPA bundle on disk, loaded
// during Run before the listener opens.
func WithPolicyBundle(path string) Option {
	return func(a *App) {
		a.configOpts = append(a.configOpts, config.WithPolicyBundle(path))
	}
}

// WithLogging supplies a caller-managed logger, replacing the one built
// from configuration. Shutdown leaves it to its owner.
func WithLogging(lg *logging.Logger) Option {
	return func(a *App) {
		a.customLogging = lg
	}
}

// WithMetrics supplies a caller-managed metrics recorder, replacing the
// one built from configuration.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(a *App) {
		a.customMetrics = rec
	}
}

// WithTracing supplies a caller-managed tracer, replacing the one built
// from configuration.
func WithTracing(tr *tracing.Tracer) Option {
	return func(a *App) {
		a.customTracing = tr
	}
}

// WithIdentityChain replaces the default identity source chain
// (mTLS, bearer JWT, API key, anonymous fallback).
func WithIdentityChain(chain *identity.Chain) Option {
	return func(a *App) {
		a.customIdents = chain
	}
}

// WithIdentityOptions configures the default identity chain, for example
// the JWT verification key or the API key header.
func WithIdentityOptions(opts ...identity.ChainOption) Option {
	return func(a *App) {
		a.identityOpts = append(a.identityOpts, opts...)
	}
}

// WithAuthorizer supplies a caller-managed policy engine, replacing the
// one built from configuration. The caller is responsible for loading its
// bundle.
func WithAuthorizer(engine *authz.Engine) Option {
	return func(a *App) {
		a.customEngine = engine
	}
}

// WithContainer supplies a pre-populated dependency container.
func WithContainer(c *container.Container) Option {
	return func(a *App) {
		a.customRegistry = c
	}
}

// WithVersion overrides the framework version string reported at
// /_archimedes/version.
func WithVersion(v string) Option {
	return func(a *App) {
		a.version = v
	}
}

// WithoutBanner suppresses the startup banner. The banner is also skipped
// automatically in production.
func WithoutBanner() Option {
	return func(a *App) {
		a.bannerEnabled = false
	}
}

// WithBanner forces the startup banner on, including in production.
func WithBanner() Option {
	return func(a *App) {
		a.bannerEnabled = true
		a.bannerForced = true
	}
}
