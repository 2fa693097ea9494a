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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// ErrServerNotReady is returned when the scrape listener fails to come up
// within the timeout.
var ErrServerNotReady = errors.New("metrics server not ready")

// TestingRecorder builds a Recorder for unit tests: Prometheus provider with
// the dedicated listener disabled, so measurements are asserted by scraping
// [Recorder.Handler] without binding a port. Shutdown is registered on
// t.Cleanup.
func TestingRecorder(t testing.TB, serviceName string, opts ...Option) *Recorder {
	t.Helper()

	defaultOpts := []Option{
		WithServiceName(serviceName),
		WithPrometheus(":0", "/metrics"),
		WithServerDisabled(),
	}

	recorder, err := New(append(defaultOpts, opts...)...)
	if err != nil {
		t.Fatalf("TestingRecorder: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Shutdown(ctx); err != nil {
			t.Logf("TestingRecorder: shutdown warning: %v", err)
		}
	})

	return recorder
}

// TestingRecorderWithListener builds a Recorder whose scrape listener binds
// an ephemeral port. [Recorder.ServerAddress] reports the bound address once
// Start has returned.
func TestingRecorderWithListener(t testing.TB, serviceName string, opts ...Option) *Recorder {
	t.Helper()

	defaultOpts := []Option{
		WithServiceName(serviceName),
		WithPrometheus(":0", "/metrics"),
	}

	recorder, err := New(append(defaultOpts, opts...)...)
	if err != nil {
		t.Fatalf("TestingRecorderWithListener: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Shutdown(ctx); err != nil {
			t.Logf("TestingRecorderWithListener: shutdown warning: %v", err)
		}
	})

	return recorder
}

// WaitForMetricsServer dials the scrape listener until it accepts
// connections or the timeout expires.
func WaitForMetricsServer(t testing.TB, address string, timeout time.Duration) error {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", address, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return fmt.Errorf("%w after %v", ErrServerNotReady, timeout)
}
