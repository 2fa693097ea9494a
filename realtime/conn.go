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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message type codes for [WebSocket] callbacks and [Conn.Send], re-exported
// so callers do not need to import gorilla/websocket for the common cases.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

// writeWait bounds how long a control-frame write may block on a peer with
// a full TCP buffer.
const writeWait = 5 * time.Second

// State is the lifecycle position of a connection. States only move
// forward: connecting → open → closing → closed.
type State uint8

const (
	// StateConnecting covers the window between a successful upgrade and
	// the connection being fully configured and registered.
	StateConnecting State = iota

	// StateOpen means the connection is registered and serving traffic.
	StateOpen

	// StateClosing means a close frame has been sent and the connection is
	// waiting for teardown.
	StateClosing

	// StateClosed means the underlying socket is gone and the connection
	// has left the registry.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Conn is one accepted WebSocket connection. It is created by the
// [WebSocket] handler, lives in the [Registry] for as long as the socket is
// up, and is shared between the handler's read loop, the heartbeat, and any
// application goroutines holding a reference.
//
// Data writes are serialized internally, so Send and its siblings are safe
// to call from multiple goroutines.
type Conn struct {
	id        string
	clientID  string
	createdAt time.Time
	ws        *websocket.Conn

	// lastActivity tracks the last data frame in either direction; control
	// frames deliberately do not count, so an idle check sees through a
	// peer that answers pings but sends nothing.
	lastActivity atomic.Int64
	lastPong     atomic.Int64

	mu    sync.Mutex
	state State

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, clientID string) *Conn {
	c := &Conn{
		id:        uuid.Must(uuid.NewV7()).String(),
		clientID:  clientID,
		createdAt: time.Now(),
		ws:        ws,
		done:      make(chan struct{}),
	}
	c.lastActivity.Store(c.createdAt.UnixNano())

	return c
}

// ID returns the connection's UUIDv7 identifier.
func (c *Conn) ID() string { return c.id }

// ClientID returns the identifier of the peer this connection belongs to,
// as derived by the handler's client-key function (the remote host by
// default).
func (c *Conn) ClientID() string { return c.clientID }

// CreatedAt returns when the connection was accepted.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// LastActivity returns the time of the last data frame in either direction.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Done returns a channel closed when the connection is fully torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes one data message to the peer.
func (c *Conn) Send(messageType int, data []byte) error {
	if s := c.State(); s != StateOpen {
		return fmt.Errorf("connection %s is %s", c.id, s)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	c.touch()

	return nil
}

// SendText writes one text message to the peer.
func (c *Conn) SendText(text string) error {
	return c.Send(TextMessage, []byte(text))
}

// SendJSON writes v as a JSON text message to the peer.
func (c *Conn) SendJSON(v any) error {
	if s := c.State(); s != StateOpen {
		return fmt.Errorf("connection %s is %s", c.id, s)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	c.touch()

	return nil
}

// Close sends a close frame with the given code and reason, then closes the
// underlying socket. Closing an already-closed connection is a no-op.
func (c *Conn) Close(code int, reason string) {
	c.closeWith(code, reason)
}

// touch records data-frame activity.
func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// pong records a pong from the peer without counting it as activity.
func (c *Conn) pong() {
	c.lastPong.Store(time.Now().UnixNano())
}

// pongedSince reports whether a pong arrived at or after t.
func (c *Conn) pongedSince(t time.Time) bool {
	return c.lastPong.Load() >= t.UnixNano()
}

// advance moves the state forward. Transitions never go backwards, so a
// late closing signal cannot resurrect a closed connection.
func (c *Conn) advance(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s > c.state {
		c.state = s
	}
}

// ping sends a ping control frame. Control writes are safe alongside data
// writes, so the write mutex is not taken.
func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// closeWith makes a best effort to deliver a close frame, then closes the
// socket. The read loop unblocks on the socket close and finishes teardown.
func (c *Conn) closeWith(code int, reason string) {
	c.mu.Lock()
	alreadyClosing := c.state >= StateClosing
	if !alreadyClosing {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if !alreadyClosing {
		frame := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
	}

	_ = c.ws.Close()
}

// abort closes the socket without a close frame, for peers that already
// failed a write.
func (c *Conn) abort() {
	c.advance(StateClosing)
	_ = c.ws.Close()
}

// shutdown finalizes the connection after the read loop exits.
func (c *Conn) shutdown() {
	c.advance(StateClosed)
	_ = c.ws.Close()
	c.closeOnce.Do(func() { close(c.done) })
}
