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

// Package realtime provides the framework's push channels: WebSocket
// connections and Server-Sent Event streams.
//
// [WebSocket] is an http.Handler built on gorilla/websocket. It validates
// the upgrade handshake, tracks every accepted connection in a [Registry]
// with total and per-client caps, and runs a heartbeat that pings each peer
// and closes connections that stop answering. Mount it on the server like
// any other handler:
//
//	ws := realtime.NewWebSocket(
//	    realtime.WithMaxConns(1024),
//	    realtime.WithPingInterval(30*time.Second),
//	    realtime.OnMessage(func(c *realtime.Conn, _ int, data []byte) {
//	        _ = c.SendText("ack")
//	    }),
//	)
//	a.Mount("/ws", ws)
//
// [Stream] frames Server-Sent Events: it sets the canonical stream headers,
// splits multi-line data into repeated "data:" lines, and flushes after every
// event so proxies cannot hold frames back. The stream ends when the client
// disconnects; Send reports that as an error.
//
//	func events(w http.ResponseWriter, r *http.Request) {
//	    s, err := realtime.NewStream(w, r)
//	    if err != nil {
//	        http.Error(w, err.Error(), http.StatusInternalServerError)
//	        return
//	    }
//	    for i := 0; ; i++ {
//	        evt := realtime.Event{ID: strconv.Itoa(i), Event: "tick", Data: time.Now().String()}
//	        if err := s.Send(evt); err != nil {
//	            return
//	        }
//	        time.Sleep(time.Second)
//	    }
//	}
package realtime
