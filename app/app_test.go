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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/config"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/logging"
	"archimedes.dev/archimedes/pipeline"
)

// userArtifact is the contract fixture shared by the app tests: a small
// user service with one schema-validated operation.
func userArtifact(t testing.TB) *contract.Artifact {
	t.Helper()

	return contract.TestArtifactWithSchemas("user-service",
		map[string]any{
			"createUserRequest": map[string]any{
				"type":     "object",
				"required": []string{"name", "email"},
				"properties": map[string]any{
					"name":  map[string]any{"type": "string"},
					"email": map[string]any{"type": "string"},
				},
			},
		},
		contract.Operation{ID: "getUser", Method: "GET", Path: "/users/{userId}"},
		contract.Operation{ID: "createUser", Method: "POST", Path: "/users", RequestSchema: "createUserRequest"},
		contract.Operation{ID: "deleteUser", Method: "DELETE", Path: "/users/{userId}"},
	)
}

func okHandler(_ *pipeline.MiddlewareContext, view *pipeline.RequestView) *pipeline.Response {
	return pipeline.JSON(http.StatusOK, map[string]string{"id": view.Param("userId")})
}

func TestNewRequiresContractSource(t *testing.T) {
	t.Parallel()

	_, err := New(WithConfig(TestingConfig()))

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindArtifactLoad))
	assert.Contains(t, err.Error(), "no contract source")
}

func TestNewValidatesCustomConfig(t *testing.T) {
	t.Parallel()

	cfg := TestingConfig()
	cfg.ServiceName = ""

	_, err := New(WithConfig(cfg))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "servicename")
}

func TestNewRejectsCorruptArtifact(t *testing.T) {
	t.Parallel()

	_, err := New(
		WithConfig(TestingConfig()),
		WithContractBytes([]byte(`{"service":"user-service"}`)),
	)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindArtifactLoad))
}

func TestNewBuildsWorkingApp(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))

	assert.NotNil(t, a.Config())
	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Pipeline())
	assert.NotNil(t, a.Container())
	assert.NotNil(t, a.Artifact())
	assert.NotNil(t, a.Resolver())
	assert.NotNil(t, a.Readiness())
	assert.Equal(t, Version, a.Version())
	assert.Nil(t, a.Authorizer(), "authorization is off in the test config")
	assert.Nil(t, a.Metrics(), "metrics are off in the test config")

	assert.False(t, a.Ready())
	assert.Empty(t, a.BoundAddr())
}

func TestMustNewPanicsOnError(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		MustNew(WithConfig(TestingConfig()))
	})
}

func TestWithVersionOverridesReportedVersion(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t), WithVersion("2.0.0-rc1"))

	assert.Equal(t, "2.0.0-rc1", a.Version())
}

func TestRegisterRejectsUnknownOperation(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))

	err := a.Register("renameUser", okHandler)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindHandlerRegistration))
	assert.Contains(t, err.Error(), "not in the contract")
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	require.NoError(t, a.Register("getUser", okHandler))

	err := a.Register("getUser", okHandler)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a handler")
}

func TestMountValidation(t *testing.T) {
	t.Parallel()

	ping := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		pattern string
		handler http.Handler
		wantErr string
	}{
		{name: "nil handler", pattern: "/debug", handler: nil, wantErr: "nil handler"},
		{name: "relative pattern", pattern: "debug", handler: ping, wantErr: "must start with /"},
		{name: "reserved prefix", pattern: "/_archimedes/evil", handler: ping, wantErr: "reserved"},
		{name: "reserved root", pattern: "/_archimedes", handler: ping, wantErr: "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := TestingApp(t, userArtifact(t))
			err := a.Mount(tt.pattern, tt.handler)

			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindHandlerRegistration))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMountRejectsDuplicatePattern(t *testing.T) {
	t.Parallel()

	ping := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	a := TestingApp(t, userArtifact(t))
	require.NoError(t, a.Mount("/debug/ping", ping))

	err := a.Mount("/debug/ping", ping)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already mounted")
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{"info", logging.LevelInfo},
		{"warn", logging.LevelWarn},
		{"error", logging.LevelError},
		{"ERROR", logging.LevelError},
		{"unknown", logging.LevelInfo},
		{"", logging.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), "level %q", tt.in)
	}
}

func TestTracingProviderSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*config.Config)
		enabled  bool
		provider string
	}{
		{
			name:    "disabled stays noop",
			mutate:  func(c *config.Config) {},
			enabled: false,
		},
		{
			name: "stdout provider",
			mutate: func(c *config.Config) {
				c.Tracing.Enabled = true
				c.Tracing.Provider = "stdout"
			},
			enabled:  true,
			provider: "stdout",
		},
		{
			name: "otlp with bare endpoint uses grpc",
			mutate: func(c *config.Config) {
				c.Tracing.Enabled = true
				c.Tracing.Provider = "otlp"
				c.Tracing.Endpoint = "collector:4317"
				c.Tracing.Insecure = true
			},
			enabled:  true,
			provider: "otlp-grpc",
		},
		{
			name: "otlp with scheme uses http",
			mutate: func(c *config.Config) {
				c.Tracing.Enabled = true
				c.Tracing.Provider = "otlp"
				c.Tracing.Endpoint = "https://collector:4318/v1/traces"
			},
			enabled:  true,
			provider: "otlp-http",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := TestingConfig()
			tt.mutate(cfg)

			a := TestingApp(t, userArtifact(t), WithConfig(cfg))

			require.NotNil(t, a.Tracing())
			assert.Equal(t, tt.enabled, a.Tracing().IsEnabled())
			if tt.provider != "" {
				assert.Equal(t, tt.provider, string(a.Tracing().Provider()))
			}
		})
	}
}
