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
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordedStream(t *testing.T) (*Stream, *httptest.ResponseRecorder) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	s, err := NewStream(rec, req)
	require.NoError(t, err)

	return s, rec
}

func TestNewStreamSetsCanonicalHeaders(t *testing.T) {
	t.Parallel()

	_, rec := newRecordedStream(t)

	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.Flushed, "the stream opening must reach the client immediately")
}

func TestNewStreamRequiresFlusher(t *testing.T) {
	t.Parallel()

	// Wrapping the recorder behind the plain interface hides Flush.
	type opaque struct{ http.ResponseWriter }

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	_, err := NewStream(opaque{httptest.NewRecorder()}, req)

	require.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestEventFraming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{
			name: "data only",
			evt:  Event{Data: "hello"},
			want: "data: hello\n\n",
		},
		{
			name: "multi-line data splits into repeated data lines",
			evt:  Event{Data: "line one\nline two\nline three"},
			want: "data: line one\ndata: line two\ndata: line three\n\n",
		},
		{
			name: "all fields",
			evt:  Event{ID: "42", Event: "update", Data: "x", Retry: 1500},
			want: "id: 42\nevent: update\nretry: 1500\ndata: x\n\n",
		},
		{
			name: "trailing newline preserved as empty data line",
			evt:  Event{Data: "a\n"},
			want: "data: a\ndata: \n\n",
		},
		{
			name: "newlines stripped from single-line fields",
			evt:  Event{ID: "4\n2", Event: "up\r\ndate", Data: "x"},
			want: "id: 42\nevent: update\ndata: x\n\n",
		},
		{
			name: "empty event is a bare separator",
			evt:  Event{},
			want: "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, string(tt.evt.Bytes()))
		})
	}
}

func TestStreamSendWritesFrames(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStream(t)

	require.NoError(t, s.Send(Event{ID: "1", Data: "first"}))
	require.NoError(t, s.Send(Event{ID: "2", Data: "second"}))

	assert.Equal(t, "id: 1\ndata: first\n\nid: 2\ndata: second\n\n", rec.Body.String())
}

func TestStreamCommentKeepalive(t *testing.T) {
	t.Parallel()

	s, rec := newRecordedStream(t)

	require.NoError(t, s.Comment("keepalive"))
	assert.Equal(t, ": keepalive\n\n", rec.Body.String())

	rec.Body.Reset()
	require.NoError(t, s.Comment("two\nlines"))
	assert.Equal(t, ": two\n: lines\n\n", rec.Body.String())
}

// parseEvents reads a raw SSE stream the way a compliant client does:
// a blank line dispatches the pending event, repeated data lines join with
// newlines, comment lines are ignored, a single optional space after the
// colon is stripped.
func parseEvents(t *testing.T, raw string) []Event {
	t.Helper()

	var (
		events    []Event
		cur       Event
		dataParts []string
		sawField  bool
	)

	dispatch := func() {
		if !sawField {
			return
		}
		cur.Data = strings.Join(dataParts, "\n")
		events = append(events, cur)
		cur, dataParts, sawField = Event{}, nil, false
	}

	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			dispatch()

			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			cur.ID = value
			sawField = true
		case "event":
			cur.Event = value
			sawField = true
		case "retry":
			ms, err := strconv.Atoi(value)
			require.NoError(t, err)
			cur.Retry = ms
			sawField = true
		case "data":
			dataParts = append(dataParts, value)
			sawField = true
		}
	}

	return events
}

func TestEventRoundTripThroughClientParse(t *testing.T) {
	t.Parallel()

	events := []Event{
		{ID: "1", Event: "created", Data: "line one\nline two", Retry: 3000},
		{Data: "plain message"},
		{ID: "2", Event: "deleted", Data: "done"},
	}

	s, rec := newRecordedStream(t)
	for _, evt := range events {
		require.NoError(t, s.Send(evt))
	}
	// Keepalives between events must be invisible to the client parser.
	require.NoError(t, s.Comment("tick"))
	require.NoError(t, s.Send(Event{ID: "3", Data: "after keepalive"}))

	parsed := parseEvents(t, rec.Body.String())

	require.Len(t, parsed, 4)
	assert.Equal(t, events, parsed[:3])
	assert.Equal(t, Event{ID: "3", Data: "after keepalive"}, parsed[3])
}

func TestStreamEndsWhenClientDisconnects(t *testing.T) {
	t.Parallel()

	sendErr := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := NewStream(w, r)
		if err != nil {
			sendErr <- err

			return
		}
		for i := 0; ; i++ {
			if err := s.Send(Event{ID: strconv.Itoa(i), Data: "tick"}); err != nil {
				sendErr <- err

				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream; charset=utf-8", resp.Header.Get("Content-Type"))

	// Read one frame, then hang up.
	buf := make([]byte, 64)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	select {
	case err := <-sendErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept sending after the client disconnected")
	}
}

func TestLastEventID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	assert.Empty(t, LastEventID(req))

	req.Header.Set("Last-Event-ID", "41")
	assert.Equal(t, "41", LastEventID(req))
}
