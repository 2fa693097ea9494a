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

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New()
	require.NoError(t, err)

	assert.Equal(t, LevelInfo, logger.Level())
	assert.Equal(t, "archimedes-service", logger.ServiceName())
	assert.True(t, logger.IsEnabled())
}

func TestNewNilOutput(t *testing.T) {
	_, err := New(WithOutput(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output writer")
}

func TestNewEmptyServiceName(t *testing.T) {
	_, err := New(WithServiceName(""))
	require.Error(t, err)
}

func TestNewInvalidHandlerType(t *testing.T) {
	_, err := New(WithHandlerType("xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHandler)
}

func TestJSONOutput(t *testing.T) {
	logger, buf := NewTestLogger(WithServiceName("orders"))

	logger.Info("contract loaded", "operations", 12)

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "contract loaded", entries[0].Message)
	assert.Equal(t, "orders", entries[0].Attrs["service"])
	assert.EqualValues(t, 12, entries[0].Attrs["operations"])
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := MustNew(
		WithJSONHandler(),
		WithOutput(buf),
		WithLevel(LevelWarn),
	)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSensitiveFieldRedaction(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.Info("login attempt",
		"user", "ada",
		"password", "hunter2",
		"token", "eyJhbGciOi",
	)

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "ada", entries[0].Attrs["user"])
	assert.Equal(t, "***REDACTED***", entries[0].Attrs["password"])
	assert.Equal(t, "***REDACTED***", entries[0].Attrs["token"])
}

func TestSamplingInitialWindow(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := MustNew(
		WithJSONHandler(),
		WithOutput(buf),
		WithSampling(SamplingConfig{Initial: 5, Thereafter: 10}),
	)

	for range 25 {
		logger.Info("tick")
	}

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	// First 5 unconditionally, then entries 15 and 25.
	assert.Len(t, entries, 7)
}

func TestSamplingNeverDropsErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := MustNew(
		WithJSONHandler(),
		WithOutput(buf),
		WithSampling(SamplingConfig{Initial: 1, Thereafter: 1000}),
	)

	for range 20 {
		logger.Error("boom")
	}

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestSetLevel(t *testing.T) {
	logger, buf := NewTestLogger()
	require.NoError(t, logger.SetLevel(LevelError))

	logger.Info("dropped")
	logger.Error("kept")

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestSetLevelOnCustomLogger(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger, err := New(WithCustomLogger(custom))
	require.NoError(t, err)

	err = logger.SetLevel(LevelDebug)
	assert.ErrorIs(t, err, ErrCannotChangeLevel)
}

func TestShutdownDropsEntries(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.Info("before")
	require.NoError(t, logger.Shutdown(context.Background()))
	logger.Info("after")

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "before", entries[0].Message)
	assert.False(t, logger.IsEnabled())

	// Shutdown is idempotent.
	require.NoError(t, logger.Shutdown(context.Background()))
}

func TestLogError(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.LogError(errors.New("connection refused"), "artifact fetch failed", "url", "http://registry")
	logger.LogError(nil, "ignored")

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].Attrs["error"])
	assert.Equal(t, "http://registry", entries[0].Attrs["url"])
}

func TestConsoleHandlerOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := MustNew(
		WithConsoleHandler(),
		WithOutput(buf),
	)

	logger.Info("server ready", "addr", ":8080")

	out := buf.String()
	assert.Contains(t, out, "server ready")
	assert.Contains(t, out, "addr=:8080")
}

func TestContextRoundTrip(t *testing.T) {
	logger, buf := NewTestLogger()
	requestLogger := logger.With("request_id", "0198c5b1")

	ctx := IntoContext(context.Background(), requestLogger)
	FromContext(ctx).Info("handled")

	entries, err := ParseJSONLogEntries(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0198c5b1", entries[0].Attrs["request_id"])
}

func TestFromContextDefault(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
