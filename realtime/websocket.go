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
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/pipeline"
)

// Heartbeat and transport defaults.
const (
	// DefaultPingInterval is how often the heartbeat pings each peer.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is how long a peer has to answer a ping before
	// the connection is closed with 1011.
	DefaultPongTimeout = 10 * time.Second

	// DefaultReadLimit caps inbound message size; larger messages close
	// the connection with 1009.
	DefaultReadLimit = 1 << 20
)

// WebSocket upgrades HTTP requests to WebSocket connections and owns their
// lifecycle: handshake validation, registry admission against the connection
// caps, the heartbeat, and teardown. It implements http.Handler, so it
// mounts on the server like any bypass route.
type WebSocket struct {
	upgrader websocket.Upgrader
	registry *Registry
	logger   *slog.Logger

	pingInterval time.Duration
	pongTimeout  time.Duration
	idleTimeout  time.Duration
	readLimit    int64

	maxConns     int
	maxPerClient int

	clientKey   func(*http.Request) string
	checkOrigin func(*http.Request) bool

	onConnect    func(*Conn)
	onMessage    func(*Conn, int, []byte)
	onDisconnect func(*Conn)
}

// WebSocketOption configures a [WebSocket] handler.
type WebSocketOption func(*WebSocket)

// WithRegistry shares an existing registry with this handler, so several
// endpoints can count against one set of caps and the application can drain
// them together. Without it the handler builds its own registry from
// [WithMaxConns] and [WithMaxConnsPerClient].
func WithRegistry(r *Registry) WebSocketOption {
	return func(h *WebSocket) {
		h.registry = r
	}
}

// WithMaxConns caps the total number of connections. Zero means unlimited.
// Upgrades beyond the cap are refused with a 503 envelope.
func WithMaxConns(n int) WebSocketOption {
	return func(h *WebSocket) {
		h.maxConns = n
	}
}

// WithMaxConnsPerClient caps connections per client key. Zero means
// unlimited. Upgrades beyond the cap are refused with a 503 envelope.
func WithMaxConnsPerClient(n int) WebSocketOption {
	return func(h *WebSocket) {
		h.maxPerClient = n
	}
}

// WithPingInterval sets the heartbeat interval. Zero disables the heartbeat
// entirely, including the pong and idle watchdogs.
func WithPingInterval(d time.Duration) WebSocketOption {
	return func(h *WebSocket) {
		h.pingInterval = d
	}
}

// WithPongTimeout sets how long a peer may leave a ping unanswered before
// the connection closes with 1011. Zero turns pings into pure keepalives
// with no answer tracking.
func WithPongTimeout(d time.Duration) WebSocketOption {
	return func(h *WebSocket) {
		h.pongTimeout = d
	}
}

// WithIdleTimeout closes connections with no data traffic in either
// direction for the given duration with a normal closure (1000). Pongs do
// not count as traffic. A connection with an unanswered ping outstanding is
// the pong watchdog's to close, not the idle check's. Zero disables the
// check.
func WithIdleTimeout(d time.Duration) WebSocketOption {
	return func(h *WebSocket) {
		h.idleTimeout = d
	}
}

// WithReadLimit caps inbound message size in bytes. Oversize messages close
// the connection with 1009.
func WithReadLimit(limit int64) WebSocketOption {
	return func(h *WebSocket) {
		h.readLimit = limit
	}
}

// WithClientKey sets how a request maps to a client identifier for the
// per-client cap. The default uses the remote host without the port.
func WithClientKey(fn func(*http.Request) string) WebSocketOption {
	return func(h *WebSocket) {
		h.clientKey = fn
	}
}

// WithCheckOrigin sets the origin check for the upgrade handshake. The
// default refuses cross-origin upgrades.
func WithCheckOrigin(fn func(*http.Request) bool) WebSocketOption {
	return func(h *WebSocket) {
		h.checkOrigin = fn
	}
}

// WithWebSocketLogger sets the logger for connection lifecycle messages.
// Without it the handler is silent.
func WithWebSocketLogger(logger *slog.Logger) WebSocketOption {
	return func(h *WebSocket) {
		h.logger = logger
	}
}

// OnConnect registers a callback invoked once per connection, after it is
// registered and before the first read.
func OnConnect(fn func(*Conn)) WebSocketOption {
	return func(h *WebSocket) {
		h.onConnect = fn
	}
}

// OnMessage registers the callback invoked for every inbound data message.
// Messages from one connection are delivered in order, one at a time.
func OnMessage(fn func(c *Conn, messageType int, data []byte)) WebSocketOption {
	return func(h *WebSocket) {
		h.onMessage = fn
	}
}

// OnDisconnect registers a callback invoked after a connection has left the
// registry.
func OnDisconnect(fn func(*Conn)) WebSocketOption {
	return func(h *WebSocket) {
		h.onDisconnect = fn
	}
}

// NewWebSocket builds a WebSocket handler.
func NewWebSocket(opts ...WebSocketOption) *WebSocket {
	h := &WebSocket{
		pingInterval: DefaultPingInterval,
		pongTimeout:  DefaultPongTimeout,
		readLimit:    DefaultReadLimit,
		clientKey:    defaultClientKey,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.registry == nil {
		h.registry = NewRegistry(h.maxConns, h.maxPerClient)
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.reject(w, r, status, reason.Error())
		},
	}

	return h
}

// Registry returns the handler's connection registry.
func (h *WebSocket) Registry() *Registry {
	return h.registry
}

// ServeHTTP validates the upgrade handshake, admits the connection against
// the caps, and serves it until either side closes. The HTTP goroutine runs
// the read loop; the heartbeat runs beside it.
func (h *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		h.reject(w, r, http.StatusBadRequest, "malformed websocket handshake")

		return
	}

	client := h.clientKey(r)
	if err := h.registry.reserve(client); err != nil {
		h.logWarn("websocket upgrade refused", "client", client, "reason", err.Error())
		h.reject(w, r, http.StatusServiceUnavailable, err.Error())

		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader's Error hook already answered the request.
		h.registry.unreserve(client)

		return
	}

	conn := newConn(sock, client)
	if h.readLimit > 0 {
		sock.SetReadLimit(h.readLimit)
	}
	sock.SetPongHandler(func(string) error {
		conn.pong()

		return nil
	})

	h.registry.insert(conn)
	conn.advance(StateOpen)
	h.logDebug("websocket connection open",
		"connection_id", conn.ID(), "client", client)

	if h.onConnect != nil {
		h.onConnect(conn)
	}
	if h.pingInterval > 0 {
		go h.heartbeat(conn)
	}

	h.readLoop(conn)

	h.registry.remove(conn)
	conn.shutdown()
	if h.onDisconnect != nil {
		h.onDisconnect(conn)
	}
	h.logDebug("websocket connection closed",
		"connection_id", conn.ID(), "client", client)
}

// readLoop delivers inbound messages until the socket dies. gorilla answers
// oversize messages with a 1009 close frame on its own; the loop only has
// to stop.
func (h *WebSocket) readLoop(c *Conn) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case stderrors.Is(err, websocket.ErrReadLimit):
				h.logWarn("websocket closed: message exceeds read limit",
					"connection_id", c.ID(), "limit", h.readLimit)
			case websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway):
				h.logDebug("websocket read ended",
					"connection_id", c.ID(), "error", err.Error())
			}

			return
		}

		c.touch()
		if h.onMessage != nil {
			h.onMessage(c, messageType, data)
		}
	}
}

// heartbeat pings the peer every pingInterval and watches for the answers.
// A ping unanswered within pongTimeout closes the connection with 1011; a
// connection idle past idleTimeout with no ping outstanding closes with
// 1000. Exits when the connection tears down.
func (h *WebSocket) heartbeat(c *Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	pongDeadline := time.NewTimer(h.pingInterval)
	if !pongDeadline.Stop() {
		<-pongDeadline.C
	}
	defer pongDeadline.Stop()

	var pingSentAt time.Time

	for {
		select {
		case <-c.Done():
			return

		case <-pongDeadline.C:
			if c.pongedSince(pingSentAt) {
				pingSentAt = time.Time{}

				continue
			}
			h.logWarn("websocket closed: pong timeout",
				"connection_id", c.ID(), "client", c.ClientID())
			c.closeWith(websocket.CloseInternalServerErr, "pong timeout")

			return

		case <-ticker.C:
			if !pingSentAt.IsZero() {
				if !c.pongedSince(pingSentAt) {
					// Ping outstanding; the deadline decides.
					continue
				}
				pingSentAt = time.Time{}
				if !pongDeadline.Stop() {
					select {
					case <-pongDeadline.C:
					default:
					}
				}
			}

			if h.idleTimeout > 0 && time.Since(c.LastActivity()) >= h.idleTimeout {
				h.logDebug("websocket closed: idle timeout",
					"connection_id", c.ID(), "client", c.ClientID())
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")

				return
			}

			// Stamp before the write so the answering pong can never
			// be recorded ahead of its own ping.
			sentAt := time.Now()
			if err := c.ping(); err != nil {
				c.abort()

				return
			}
			if h.pongTimeout > 0 {
				pingSentAt = sentAt
				pongDeadline.Reset(h.pongTimeout)
			}
		}
	}
}

// reject answers a request that never reached the pipeline with a canonical
// error envelope. A well-formed inbound X-Request-ID is echoed; anything
// else gets a fresh UUIDv7.
func (h *WebSocket) reject(w http.ResponseWriter, r *http.Request, status int, message string) {
	id := r.Header.Get(pipeline.HeaderRequestID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.Must(uuid.NewV7()).String()
	}

	w.Header().Set("Content-Type", errors.ContentTypeJSON)
	w.Header().Set(pipeline.HeaderRequestID, id)
	w.WriteHeader(status)
	_, _ = w.Write(errors.MarshalEnvelope(errors.CodeForStatus(status), message, id))
}

func (h *WebSocket) logWarn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *WebSocket) logDebug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

// defaultClientKey reduces the remote address to its host so all
// connections from one client count together regardless of source port.
func defaultClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
