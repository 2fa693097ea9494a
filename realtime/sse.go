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

package realtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// ContentTypeEventStream is the content type of an SSE response.
const ContentTypeEventStream = "text/event-stream; charset=utf-8"

// ErrStreamingUnsupported means the response writer cannot flush, so no
// event stream can be served over it.
var ErrStreamingUnsupported = stderrors.New("response writer does not support streaming")

// Event is one server-sent event. Data may span multiple lines; the framer
// splits it into repeated "data:" lines and a compliant client joins them
// back. ID and Event must be single-line; embedded newlines are stripped.
type Event struct {
	// ID sets the event id the client echoes in Last-Event-ID on
	// reconnect. Empty omits the field.
	ID string

	// Event names the event type. Empty omits the field, which clients
	// treat as "message".
	Event string

	// Data is the event payload.
	Data string

	// Retry asks the client to wait this many milliseconds before
	// reconnecting. Zero omits the field.
	Retry int
}

// Bytes returns the wire framing of the event, trailing blank line
// included. The framing is stable, so a fan-out can encode once and write
// the same bytes to every subscriber.
func (e Event) Bytes() []byte {
	var b bytes.Buffer

	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(stripNewlines(e.ID))
		b.WriteByte('\n')
	}
	if e.Event != "" {
		b.WriteString("event: ")
		b.WriteString(stripNewlines(e.Event))
		b.WriteByte('\n')
	}
	if e.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(e.Retry))
		b.WriteByte('\n')
	}
	if e.Data != "" {
		for _, line := range strings.Split(e.Data, "\n") {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')

	return b.Bytes()
}

// Stream writes server-sent events to one client. Created per request by
// [NewStream]; ended by the client disconnecting or the handler returning.
// Safe for concurrent use, so a keepalive goroutine can share it with the
// sender.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context

	writeMu sync.Mutex
}

// NewStream opens an event stream on w: it sets the stream headers, commits
// the 200, and flushes so the client sees the stream immediately. Fails
// only when w cannot flush.
func NewStream(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, flusher: flusher, ctx: r.Context()}, nil
}

// Context returns the request context; it ends when the client disconnects.
func (s *Stream) Context() context.Context { return s.ctx }

// Send frames one event and flushes it to the client. Returns an error once
// the client is gone; the handler should stop sending and return.
func (s *Stream) Send(evt Event) error {
	return s.write(evt.Bytes())
}

// Comment writes a comment line, the conventional SSE keepalive. Clients
// ignore it; proxies see traffic. Multi-line text becomes multiple comment
// lines.
func (s *Stream) Comment(text string) error {
	var b bytes.Buffer
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	return s.write(b.Bytes())
}

func (s *Stream) write(frame []byte) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("stream closed: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	s.flusher.Flush()

	return nil
}

// LastEventID returns the id of the last event the client saw, sent on
// reconnect, or "" on a fresh connection.
func LastEventID(r *http.Request) string {
	return r.Header.Get("Last-Event-ID")
}

func stripNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}

	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
