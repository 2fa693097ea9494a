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
	"testing"
	"time"

	"archimedes.dev/archimedes/config"
	"archimedes.dev/archimedes/contract"
)

// TestingConfig returns a configuration for lifecycle tests: loopback
// listener on an ephemeral port, metrics and authorization disabled,
// error-level logging so test output stays quiet.
func TestingConfig() *config.Config {
	cfg := config.Default()
	cfg.ServiceName = "archimedes-test"
	cfg.Server.ListenAddr = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Metrics.Port = 0
	cfg.Authorization.Enabled = false
	cfg.Logging.Level = "error"

	return cfg
}

// TestingApp builds an App around the given artifact with [TestingConfig]
// defaults and the banner off. Extra options apply after the defaults, so
// tests can override any of them.
func TestingApp(t testing.TB, art *contract.Artifact, opts ...Option) *App {
	t.Helper()

	data, err := art.Marshal()
	if err != nil {
		t.Fatalf("TestingApp: marshal artifact: %v", err)
	}

	defaults := []Option{
		WithConfig(TestingConfig()),
		WithContractBytes(data),
		WithoutBanner(),
	}

	a, err := New(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("TestingApp: %v", err)
	}

	return a
}

// TestingRun starts the app in a goroutine and blocks until the listener
// accepts connections, returning the base URL. Cleanup cancels the run
// context and waits for the server to drain, failing the test if Run
// returned an error.
func TestingRun(t testing.TB, a *App) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	readyCtx, readyCancel := context.WithTimeout(ctx, 10*time.Second)
	defer readyCancel()
	if err := a.WaitReady(readyCtx); err != nil {
		cancel()
		t.Fatalf("TestingRun: server never became ready: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("TestingRun: run returned: %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Errorf("TestingRun: server did not stop within 15s")
		}
	})

	return "http://" + a.BoundAddr()
}
