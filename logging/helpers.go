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
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"
)

// logAttrPool provides pooled attribute slices for the convenience
// methods. Capacity 16 fits typical entries without growth.
var logAttrPool = sync.Pool{
	New: func() any {
		s := make([]any, 0, 16)

		return &s
	},
}

// LogRequest logs an HTTP request with standard fields: method, path,
// remote and user_agent, plus query when non-empty. Additional fields
// are passed via extra:
//
//	logger.LogRequest(r, "status", 200, "duration_ms", 45)
func (l *Logger) LogRequest(r *http.Request, extra ...any) {
	if l.isShuttingDown.Load() {
		return
	}

	attrsPtr := logAttrPool.Get().(*[]any)
	attrs := (*attrsPtr)[:0]
	defer func() {
		*attrsPtr = (*attrsPtr)[:0]
		logAttrPool.Put(attrsPtr)
	}()

	attrs = append(attrs,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"user_agent", r.UserAgent(),
	)
	if r.URL.RawQuery != "" {
		attrs = append(attrs, "query", r.URL.RawQuery)
	}
	attrs = append(attrs, extra...)

	l.log(LevelInfo, "http request", attrs...)
}

// LogError logs an error with a message and optional extra fields.
func (l *Logger) LogError(err error, msg string, extra ...any) {
	if err == nil {
		return
	}

	attrsPtr := logAttrPool.Get().(*[]any)
	attrs := (*attrsPtr)[:0]
	defer func() {
		*attrsPtr = (*attrsPtr)[:0]
		logAttrPool.Put(attrsPtr)
	}()

	attrs = append(attrs, "error", err.Error())
	attrs = append(attrs, extra...)

	l.log(LevelError, msg, attrs...)
}

// LogDuration logs a message with the elapsed time since start as
// duration_ms.
func (l *Logger) LogDuration(msg string, start time.Time, extra ...any) {
	attrsPtr := logAttrPool.Get().(*[]any)
	attrs := (*attrsPtr)[:0]
	defer func() {
		*attrsPtr = (*attrsPtr)[:0]
		logAttrPool.Put(attrsPtr)
	}()

	attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())
	attrs = append(attrs, extra...)

	l.log(LevelInfo, msg, attrs...)
}

// ErrorWithStack logs an error with an optional stack trace. Stack
// capture is for unexpected conditions (panics, invariant violations),
// not expected failures like validation errors.
func (l *Logger) ErrorWithStack(msg string, err error, includeStack bool, extra ...any) {
	if l.isShuttingDown.Load() {
		return
	}

	attrsPtr := logAttrPool.Get().(*[]any)
	attrs := (*attrsPtr)[:0]
	defer func() {
		*attrsPtr = (*attrsPtr)[:0]
		logAttrPool.Put(attrsPtr)
	}()

	attrs = append(attrs, "error", err.Error())
	if includeStack {
		attrs = append(attrs, "stack", captureStack(3))
	}
	attrs = append(attrs, extra...)

	l.log(LevelError, msg, attrs...)
}

// captureStack captures a stack trace, skipping the given number of
// frames.
func captureStack(skip int) string {
	var buf strings.Builder
	pcs := make([]uintptr, 10)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}

	return buf.String()
}
