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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerType represents the type of logging handler.
type HandlerType string

const (
	// JSONHandler outputs structured JSON logs.
	JSONHandler HandlerType = "json"
	// TextHandler outputs key=value text logs.
	TextHandler HandlerType = "text"
	// ConsoleHandler outputs human-readable colored logs.
	ConsoleHandler HandlerType = "console"
)

// Level represents log level.
type Level = slog.Level

const (
	// LevelDebug is the debug log level.
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// bgCtx is reused across log calls; the context carries no cancellation
// semantics for logging.
var bgCtx = context.Background()

// SamplingConfig configures log sampling to reduce volume in high-traffic
// scenarios.
//
// The first Initial entries are logged unconditionally, then one in every
// Thereafter entries. The counter resets every Tick interval so recent
// activity stays visible. Entries at error level bypass sampling entirely.
type SamplingConfig struct {
	Initial    int           // Log first N occurrences unconditionally
	Thereafter int           // After Initial, log 1 of every M entries (0 = log all)
	Tick       time.Duration // Reset sampling counter every interval (0 = never reset)
}

// Logger is a structured logger with leveled output, sampling and
// sensitive-field redaction.
//
// All methods are safe for concurrent use. The underlying slog.Logger is
// held in an atomic pointer so log calls never take a lock; the mutex
// protects reconfiguration only.
type Logger struct {
	handlerType HandlerType
	output      io.Writer
	level       Level

	serviceName    string
	serviceVersion string
	environment    string

	addSource   bool
	replaceAttr func(groups []string, a slog.Attr) slog.Attr

	samplingConfig *SamplingConfig
	sampleCounter  atomic.Int64
	sampleTicker   *time.Ticker
	sampleStop     chan struct{}

	customLogger *slog.Logger
	useCustom    bool

	logger         atomic.Pointer[slog.Logger]
	mu             sync.Mutex
	isShuttingDown atomic.Bool

	registerGlobal bool
}

// Option is a functional option for configuring the logger.
type Option func(*Logger)

// defaultLogger returns a logger with default configuration.
func defaultLogger() *Logger {
	return &Logger{
		handlerType:    JSONHandler,
		output:         os.Stdout,
		level:          LevelInfo,
		serviceName:    "archimedes-service",
		serviceVersion: "unknown",
		environment:    "development",
	}
}

// New creates a new logger.
//
// By default the logger is not registered as the global slog default, so
// multiple independent loggers can coexist in one process. Use
// [WithGlobalLogger] to opt in.
func New(opts ...Option) (*Logger, error) {
	l := defaultLogger()

	for _, opt := range opts {
		opt(l)
	}

	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := l.initialize(); err != nil {
		return nil, err
	}

	return l, nil
}

// MustNew creates a new logger or panics on error.
func MustNew(opts ...Option) *Logger {
	l, err := New(opts...)
	if err != nil {
		panic("logging initialization failed: " + err.Error())
	}

	return l
}

// validate checks the configuration before initialization.
func (l *Logger) validate() error {
	if l.output == nil {
		return errors.New("output writer cannot be nil")
	}
	if l.serviceName == "" {
		return errors.New("service name cannot be empty")
	}
	if l.useCustom && l.customLogger == nil {
		return ErrNilLogger
	}
	if l.samplingConfig != nil {
		if l.samplingConfig.Initial < 0 || l.samplingConfig.Thereafter < 0 {
			return errors.New("sampling config values must be non-negative")
		}
	}

	return nil
}

// initialize sets up the handler and the sampling ticker.
func (l *Logger) initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.initializeHandler(); err != nil {
		return err
	}

	if l.samplingConfig != nil && l.samplingConfig.Tick > 0 {
		l.sampleStop = make(chan struct{})
		l.sampleTicker = time.NewTicker(l.samplingConfig.Tick)
		go l.samplingResetter()
	}

	return nil
}

// samplingResetter resets the sampling counter periodically.
func (l *Logger) samplingResetter() {
	for {
		select {
		case <-l.sampleTicker.C:
			l.sampleCounter.Store(0)
		case <-l.sampleStop:
			return
		}
	}
}

// shouldSample reports whether a log entry passes the sampling policy.
// Entries at error level and above always pass.
func (l *Logger) shouldSample(level slog.Level) bool {
	if level >= slog.LevelError {
		return true
	}
	if l.samplingConfig == nil {
		return true
	}

	count := l.sampleCounter.Add(1)
	if count <= int64(l.samplingConfig.Initial) {
		return true
	}
	if l.samplingConfig.Thereafter == 0 {
		return true
	}

	return (count-int64(l.samplingConfig.Initial))%int64(l.samplingConfig.Thereafter) == 0
}

// initializeHandler creates and stores the handler. Callers must hold mu.
func (l *Logger) initializeHandler() error {
	if l.useCustom {
		if l.customLogger == nil {
			return ErrNilLogger
		}
		l.logger.Store(l.customLogger)
		if l.registerGlobal {
			slog.SetDefault(l.customLogger)
		}

		return nil
	}

	opts := &slog.HandlerOptions{
		Level:       l.level,
		AddSource:   l.addSource,
		ReplaceAttr: l.buildReplaceAttr(),
	}

	var handler slog.Handler
	switch l.handlerType {
	case JSONHandler:
		handler = slog.NewJSONHandler(l.output, opts)
	case TextHandler:
		handler = slog.NewTextHandler(l.output, opts)
	case ConsoleHandler:
		handler = newConsoleHandler(l.output, opts)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidHandler, l.handlerType)
	}

	logger := slog.New(handler).With(
		"service", l.serviceName,
	)
	l.logger.Store(logger)
	if l.registerGlobal {
		slog.SetDefault(logger)
	}

	return nil
}

// buildReplaceAttr creates the attribute replacer function with
// sensitive-field redaction.
func (l *Logger) buildReplaceAttr() func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case "password", "token", "secret", "api_key", "authorization":
			return slog.String(a.Key, "***REDACTED***")
		}
		if l.replaceAttr != nil {
			return l.replaceAttr(groups, a)
		}

		return a
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger.Load()
}

// With returns a slog.Logger with additional attributes.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.Slog().With(args...)
}

// log funnels all level methods through the shutdown, level and sampling
// checks.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l.isShuttingDown.Load() {
		return
	}

	logger := l.Slog()
	if !logger.Enabled(bgCtx, level) {
		return
	}
	if !l.shouldSample(level) {
		return
	}

	logger.Log(bgCtx, level, msg, args...)
}

// Debug logs a debug message with structured attributes.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs an informational message with structured attributes.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a warning message with structured attributes.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs an error message with structured attributes.
// Errors bypass sampling and are always logged.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// Shutdown stops the sampling ticker and flushes the handler if it
// supports flushing. Log calls after Shutdown are dropped.
func (l *Logger) Shutdown(_ context.Context) error {
	if l.isShuttingDown.Swap(true) {
		return nil
	}

	if l.sampleTicker != nil {
		l.sampleTicker.Stop()
		close(l.sampleStop)
	}

	if logger := l.Slog(); logger != nil {
		if flusher, ok := logger.Handler().(interface{ Flush() error }); ok {
			return flusher.Flush()
		}
	}

	return nil
}

// SetLevel changes the minimum log level at runtime.
//
// Not supported with custom loggers; those control their own level.
func (l *Logger) SetLevel(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.useCustom {
		return ErrCannotChangeLevel
	}

	oldLevel := l.level
	l.level = level
	if err := l.initializeHandler(); err != nil {
		l.level = oldLevel

		return err
	}

	return nil
}

// Level returns the current minimum log level.
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.level
}

// ServiceName returns the configured service name.
func (l *Logger) ServiceName() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.serviceName
}

// IsEnabled reports whether the logger accepts entries.
func (l *Logger) IsEnabled() bool {
	return !l.isShuttingDown.Load()
}
