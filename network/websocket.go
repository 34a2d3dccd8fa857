// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-relay
//
// go-relay is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-relay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-relay.  If not, see <https://www.gnu.org/licenses/>.

package network

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/algorand/websocket"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/network/limitlistener"
)

// WebsocketPath is the HTTP path peers upgrade on.
const WebsocketPath = "/peer"

const (
	wsHandshakeTimeout = 45 * time.Second
	wsCloseTimeout     = 5 * time.Second
	wsAcceptBacklog    = 64
)

// WebsocketConn presents a websocket as a byte stream. Every Write is sent as
// one binary message; Read drains messages back to back.
type WebsocketConn struct {
	conn *websocket.Conn

	readMu deadlock.Mutex
	reader io.Reader

	writeMu deadlock.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWebsocketConn(conn *websocket.Conn, maxMessageSize int64) *WebsocketConn {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &WebsocketConn{conn: conn}
}

func (wc *WebsocketConn) Read(p []byte) (int, error) {
	wc.readMu.Lock()
	defer wc.readMu.Unlock()
	for {
		if wc.reader == nil {
			mtype, r, err := wc.conn.NextReader()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					switch ce.Code {
					case websocket.CloseNormalClosure, websocket.CloseGoingAway:
						return 0, io.EOF
					}
				}
				return 0, err
			}
			if mtype != websocket.BinaryMessage {
				return 0, errors.New("websocket: peer sent a non-binary message")
			}
			wc.reader = r
		}
		n, err := wc.reader.Read(p)
		if err == io.EOF {
			wc.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (wc *WebsocketConn) Write(p []byte) (int, error) {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	if err := wc.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure control message and drops the connection.
func (wc *WebsocketConn) Close() error {
	wc.closeOnce.Do(func() {
		wc.writeMu.Lock()
		_ = wc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsCloseTimeout))
		wc.writeMu.Unlock()
		wc.closeErr = wc.conn.CloseWithoutFlush()
	})
	return wc.closeErr
}

// LocalAddr implements net.Conn
func (wc *WebsocketConn) LocalAddr() net.Addr { return wc.conn.LocalAddr() }

// RemoteAddr implements net.Conn
func (wc *WebsocketConn) RemoteAddr() net.Addr { return wc.conn.RemoteAddr() }

// SetDeadline implements net.Conn
func (wc *WebsocketConn) SetDeadline(t time.Time) error {
	if err := wc.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return wc.conn.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn
func (wc *WebsocketConn) SetReadDeadline(t time.Time) error { return wc.conn.SetReadDeadline(t) }

// SetWriteDeadline implements net.Conn
func (wc *WebsocketConn) SetWriteDeadline(t time.Time) error { return wc.conn.SetWriteDeadline(t) }

// WebsocketListener accepts peers over websockets and hands them out as net.Conn.
type WebsocketListener struct {
	log      logging.Logger
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	maxMsg   int64

	conns   chan net.Conn
	done    chan struct{}
	closeMu deadlock.Mutex
	closed  bool
}

// ListenWebsocket serves the websocket upgrade endpoint on addr. tlsConf may be nil for plain ws://.
func ListenWebsocket(addr string, tlsConf *tls.Config, limit int, maxMessageSize int64, log logging.Logger) (*WebsocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		ln = limitlistener.RejectingLimitListener(ln, uint64(limit), log)
	}
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
	}

	wl := &WebsocketListener{
		log:    log,
		ln:     ln,
		maxMsg: maxMessageSize,
		conns:  make(chan net.Conn, wsAcceptBacklog),
		done:   make(chan struct{}),
	}
	wl.upgrader.ReadBufferSize = 4096
	wl.upgrader.WriteBufferSize = 4096
	wl.upgrader.EnableCompression = false
	wl.upgrader.CheckOrigin = func(*http.Request) bool { return true }

	mux := http.NewServeMux()
	mux.HandleFunc(WebsocketPath, wl.serveUpgrade)
	wl.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: wsHandshakeTimeout,
	}
	go func() {
		err := wl.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("websocket listener stopped: %v", err)
		}
	}()
	return wl, nil
}

func (wl *WebsocketListener) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wl.log.Info("ws upgrade fail ", err)
		return
	}
	wc := newWebsocketConn(conn, wl.maxMsg)
	select {
	case wl.conns <- wc:
	case <-wl.done:
		wc.Close()
	}
}

// Accept waits for the next upgraded connection.
func (wl *WebsocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-wl.conns:
		return c, nil
	case <-wl.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP server. Connections already accepted stay open.
func (wl *WebsocketListener) Close() error {
	wl.closeMu.Lock()
	defer wl.closeMu.Unlock()
	if wl.closed {
		return nil
	}
	wl.closed = true
	close(wl.done)
	err := wl.server.Close()
	for {
		select {
		case c := <-wl.conns:
			c.Close()
		default:
			return err
		}
	}
}

// Addr returns the bound address.
func (wl *WebsocketListener) Addr() net.Addr {
	return wl.ln.Addr()
}

// DialWebsocket connects to a coordinator websocket endpoint such as wss://host:port/peer.
func DialWebsocket(ctx context.Context, url string, tlsConf *tls.Config, maxMessageSize int64) (net.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  wsHandshakeTimeout,
		EnableCompression: false,
		TLSClientConfig:   tlsConf,
	}
	conn, response, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && response != nil {
			return nil, errors.New("websocket: bad handshake, status " + response.Status)
		}
		return nil, err
	}
	return newWebsocketConn(conn, maxMessageSize), nil
}
