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
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/pipeline"
)

func httpGet(t testing.TB, url string, header map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func httpPost(t testing.TB, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeEnvelope(t testing.TB, r io.Reader) errors.Envelope {
	t.Helper()

	var env errors.Envelope
	require.NoError(t, json.NewDecoder(r).Decode(&env))

	return env
}

func TestRunServesContractOperation(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	a.MustRegister("getUser", okHandler)

	base := TestingRun(t, a)

	resp := httpGet(t, base+"/users/42", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "42", body["id"])

	id, err := uuid.Parse(resp.Header.Get(pipeline.HeaderRequestID))
	require.NoError(t, err, "every pipeline response carries a request id")
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestRunRejectsInvalidBodyBeforeHandler(t *testing.T) {
	t.Parallel()

	var invoked atomic.Bool
	a := TestingApp(t, userArtifact(t))
	a.MustRegister("createUser", func(_ *pipeline.MiddlewareContext, _ *pipeline.RequestView) *pipeline.Response {
		invoked.Store(true)

		return pipeline.NoContent()
	})

	base := TestingRun(t, a)

	resp := httpPost(t, base+"/users", `{"name":"Alice"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, invoked.Load(), "the handler must never see an invalid body")

	env := decodeEnvelope(t, resp.Body)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Message, "email")
	assert.Equal(t, resp.Header.Get(pipeline.HeaderRequestID), env.Error.RequestID)
}

func TestRunUnknownRouteReturnsEnvelope(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	a.MustRegister("getUser", okHandler)

	base := TestingRun(t, a)

	resp := httpGet(t, base+"/accounts/7", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decodeEnvelope(t, resp.Body)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.NotEmpty(t, env.Error.RequestID)
}

func TestRunTwiceFails(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	TestingRun(t, a)

	err := a.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindServerStart))
	assert.Contains(t, err.Error(), "already started")
}

func TestRegistrationStaysOpenThroughStartHooks(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	a.MustRegister("getUser", okHandler)

	var lateHookWired atomic.Bool
	a.OnStart(func(context.Context) error { return nil })
	a.OnStart(func(context.Context) error {
		// Hooks after the first can still wire dependencies; the
		// registries freeze only once every start hook has run.
		if err := container.Register(a.Container(), time.Minute); err != nil {
			return err
		}
		lateHookWired.Store(true)

		return nil
	})

	base := TestingRun(t, a)
	require.True(t, lateHookWired.Load())

	err := a.Register("createUser", okHandler)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindHandlerRegistration))
	assert.Contains(t, err.Error(), "frozen")

	assert.Error(t, container.Register(a.Container(), 7),
		"container registration closes with the handler registry")

	resp := httpGet(t, base+"/users/42", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMountedHandlerBypassesPipeline(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	a.MustMount("/debug/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	base := TestingRun(t, a)

	resp := httpGet(t, base+"/debug/ping", nil)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
	assert.Empty(t, resp.Header.Get(pipeline.HeaderRequestID), "mounted handlers bypass the pipeline stages")
}

func TestSidecarEndpointsOverListener(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	base := TestingRun(t, a)

	t.Run("health", func(t *testing.T) {
		resp := httpGet(t, base+HealthPath, nil)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("ready", func(t *testing.T) {
		resp := httpGet(t, base+ReadyPath, nil)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ready", body.Status)
	})

	t.Run("version", func(t *testing.T) {
		resp := httpGet(t, base+VersionPath, nil)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body versionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "archimedes-test", body.Service)
		assert.Equal(t, Version, body.Archimedes)
		assert.Equal(t, "0.0.0-test", body.Contract)
	})
}

func TestReadinessGateTakesServiceOutOfRotation(t *testing.T) {
	t.Parallel()

	a := TestingApp(t, userArtifact(t))
	base := TestingRun(t, a)

	var poolUp atomic.Bool
	a.Readiness().Register("db-pool", GateFunc(poolUp.Load))

	resp := httpGet(t, base+ReadyPath, nil)
	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, map[string]bool{"db-pool": false}, body.Gates)

	poolUp.Store(true)

	resp = httpGet(t, base+ReadyPath, nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body.Status)
}

// TestGracefulShutdownDrainsInFlight covers the drain sequence: on cancel
// the listener closes immediately, new connections are refused, and the
// in-flight request still completes with its full response.
func TestGracefulShutdownDrainsInFlight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})

	a := TestingApp(t, userArtifact(t))
	a.MustRegister("getUser", func(_ *pipeline.MiddlewareContext, view *pipeline.RequestView) *pipeline.Response {
		close(entered)
		<-release

		return pipeline.JSON(http.StatusOK, map[string]string{"id": view.Param("userId")})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	readyCtx, readyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readyCancel()
	require.NoError(t, a.WaitReady(readyCtx))
	addr := a.BoundAddr()

	type result struct {
		resp *http.Response
		err  error
	}
	inFlight := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/users/9")
		inFlight <- result{resp, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request never reached the handler")
	}

	cancel()

	// The listener closes as soon as shutdown begins; new connections must
	// be refused while the in-flight request is still being served.
	refused := false
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err != nil {
			refused = true

			break
		}
		conn.Close()
		time.Sleep(20 * time.Millisecond)
	}
	assert.True(t, refused, "new connections must be refused during drain")

	close(release)

	res := <-inFlight
	require.NoError(t, res.err, "the in-flight request must complete")
	defer res.resp.Body.Close()
	assert.Equal(t, http.StatusOK, res.resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.resp.Body).Decode(&body))
	assert.Equal(t, "9", body["id"])

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after draining")
	}
}

func TestPerClientCapRefusesExcessRequests(t *testing.T) {
	t.Parallel()

	cfg := TestingConfig()
	cfg.Limits.MaxConnsPerClient = 1

	entered := make(chan struct{})
	release := make(chan struct{})

	a := TestingApp(t, userArtifact(t), WithConfig(cfg))
	a.MustRegister("getUser", func(_ *pipeline.MiddlewareContext, _ *pipeline.RequestView) *pipeline.Response {
		close(entered)
		<-release

		return pipeline.NoContent()
	})

	base := TestingRun(t, a)

	go func() {
		resp, err := http.Get(base + "/users/1")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the handler")
	}
	defer close(release)

	stamp := uuid.Must(uuid.NewV7()).String()
	resp := httpGet(t, base+"/users/2", map[string]string{pipeline.HeaderRequestID: stamp})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	env := decodeEnvelope(t, resp.Body)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, stamp, env.Error.RequestID, "a well-formed inbound request id is echoed")
}

func TestMaxConnsHoldsExcessConnections(t *testing.T) {
	t.Parallel()

	cfg := TestingConfig()
	cfg.Limits.MaxConns = 1

	entered := make(chan struct{})
	release := make(chan struct{})

	a := TestingApp(t, userArtifact(t), WithConfig(cfg))
	a.MustRegister("getUser", func(_ *pipeline.MiddlewareContext, _ *pipeline.RequestView) *pipeline.Response {
		close(entered)
		<-release

		return pipeline.NoContent()
	})

	base := TestingRun(t, a)

	go func() {
		resp, err := http.Get(base + "/users/1")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the handler")
	}
	defer close(release)

	// The connection cap parks further connections at the listener; a
	// second request cannot be served while the slot is held.
	client := &http.Client{Timeout: 300 * time.Millisecond}
	_, err := client.Get(base + "/users/2")
	require.Error(t, err, "over-cap connections wait instead of being served")
}
