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

package coordinator

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
	"github.com/algorand/go-relay/util/timers"
)

const waitFor = 5 * time.Second

var errBrokenPipe = errors.New("broken pipe")

// fakeConn records what is sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   []protocol.Message
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "fake:" + c.id }

func (c *fakeConn) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errBrokenPipe
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *fakeConn) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func (c *fakeConn) requests() []protocol.Request {
	var out []protocol.Request
	for _, m := range c.messages() {
		if req, ok := m.(protocol.Request); ok {
			out = append(out, req)
		}
	}
	return out
}

func (c *fakeConn) responses() []protocol.Response {
	var out []protocol.Response
	for _, m := range c.messages() {
		if resp, ok := m.(protocol.Response); ok {
			out = append(out, resp)
		}
	}
	return out
}

// register adds a session backed by a fakeConn named after identity.
func register(t *testing.T, r *Registry, identity, address string) *fakeConn {
	t.Helper()
	c := newFakeConn("conn-" + identity)
	require.NoError(t, r.Register(identity, address, c))
	return c
}

// testPeer drives one side of a net.Pipe served by a Service.
type testPeer struct {
	t    *testing.T
	conn net.Conn
	msgs chan protocol.Message
	done chan struct{}
}

func connectPeer(t *testing.T, svc *Service) *testPeer {
	t.Helper()
	server, client := net.Pipe()
	go svc.ServeConn(server)

	p := &testPeer{
		t:    t,
		conn: client,
		msgs: make(chan protocol.Message, 64),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		reader := protocol.NewReader(client, 0)
		for {
			m, err := reader.ReadMessage()
			if err != nil {
				return
			}
			p.msgs <- m
		}
	}()
	t.Cleanup(func() { client.Close() })
	return p
}

func (p *testPeer) send(m protocol.Message) {
	p.t.Helper()
	require.NoError(p.t, protocol.WriteMessage(p.conn, m))
}

func (p *testPeer) next() protocol.Message {
	p.t.Helper()
	select {
	case m := <-p.msgs:
		return m
	case <-time.After(waitFor):
		p.t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (p *testPeer) expect(status protocol.ResponseStatus, payload string) {
	p.t.Helper()
	m := p.next()
	require.Equal(p.t, protocol.Response{Status: status, Payload: payload}, m)
}

func (p *testPeer) expectOK(payload string) {
	p.t.Helper()
	p.expect(protocol.StatusOK, payload)
}

func (p *testPeer) expectRequest() protocol.Request {
	p.t.Helper()
	m := p.next()
	req, ok := m.(protocol.Request)
	require.True(p.t, ok, "expected a request, got %v", m)
	return req
}

func (p *testPeer) expectSilence(d time.Duration) {
	p.t.Helper()
	select {
	case m := <-p.msgs:
		p.t.Fatalf("unexpected message %v", m)
	case <-time.After(d):
	}
}

// login connects as identity and consumes the welcome and peer list.
func (p *testPeer) login(identity, address, peerList string) {
	p.t.Helper()
	p.send(protocol.MakeConnect(identity, address))
	p.expectOK("Welcome " + identity + " from " + address + "!")
	p.expectOK(peerList)
}

// clientsText is the peer list for the given "n. name --> IP: addr" lines.
func clientsText(lines ...string) string {
	return "Current clients:\n" + strings.Join(lines, "\n") + "\nType 'add client_name' to add them to your list."
}

// waitClosed waits until the coordinator closed the connection.
func (p *testPeer) waitClosed() {
	p.t.Helper()
	select {
	case <-p.done:
	case <-time.After(waitFor):
		p.t.Fatal("connection was not closed")
	}
}

func newTestService(t *testing.T, clock timers.Clock) *Service {
	t.Helper()
	svc := MakeService(Config{CommandTimeout: time.Minute, Clock: clock}, logging.TestingLog(t))
	t.Cleanup(svc.Stop)
	return svc
}
