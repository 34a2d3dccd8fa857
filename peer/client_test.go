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

package peer

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-relay/coordinator"
	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
)

const waitTimeout = 5 * time.Second

func startCoordinator(t *testing.T) *coordinator.Service {
	t.Helper()
	svc := coordinator.MakeService(coordinator.Config{CommandTimeout: waitTimeout}, logging.TestingLog(t))
	t.Cleanup(svc.Stop)
	return svc
}

func attach(t *testing.T, svc *coordinator.Service, cfg Config) *Client {
	t.Helper()
	server, client := net.Pipe()
	go svc.ServeConn(server)
	c := NewClient(client, cfg, logging.TestingLog(t))
	t.Cleanup(func() { c.Close() })
	return c
}

func nextResponse(t *testing.T, c *Client) protocol.Response {
	t.Helper()
	select {
	case r, ok := <-c.Responses():
		require.True(t, ok, "response channel closed")
		return r
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for a response")
	}
	return protocol.Response{}
}

func expectOK(t *testing.T, c *Client, payload string) {
	t.Helper()
	r := nextResponse(t, c)
	require.Equal(t, protocol.StatusOK, r.Status, r.Payload)
	require.Equal(t, payload, r.Payload)
}

const onlyClient = "You are the only client connected."

func currentClients(lines ...string) string {
	return "Current clients:\n" + strings.Join(lines, "\n") + "\nType 'add client_name' to add them to your list."
}

func joined(identity, address string) string {
	return "Hey, see that " + identity + " has connected from " + address + ". Type 'add " + identity + "' to add them to your list."
}

func login(t *testing.T, svc *coordinator.Service, cfg Config, peerList string) *Client {
	t.Helper()
	c := attach(t, svc, cfg)
	require.NoError(t, c.Connect())
	expectOK(t, c, "Welcome "+cfg.Identity+" from "+cfg.Address+"!")
	expectOK(t, c, peerList)
	return c
}

func TestClientSendCommandEcho(t *testing.T) {
	svc := startCoordinator(t)
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)
	bob := login(t, svc, Config{Identity: "bob", Address: "10.0.0.2", Executor: Echo}, currentClients("1. alice --> IP: 10.0.0.1"))
	expectOK(t, alice, joined("bob", "10.0.0.2"))

	require.NoError(t, alice.AddContact("bob"))
	expectOK(t, alice, "bob added to your list (10.0.0.2).")

	require.NoError(t, alice.ViewContacts())
	expectOK(t, alice, "Clients you are connected to:\n1. bob -> IP: 10.0.0.2")

	require.NoError(t, alice.SendCommand([]string{"bob"}, "hello"))
	expectOK(t, alice, "hello")

	select {
	case r := <-bob.Responses():
		require.FailNow(t, "unexpected response", r.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientFanOut(t *testing.T) {
	svc := startCoordinator(t)
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)
	login(t, svc, Config{Identity: "bob", Address: "10.0.0.2"}, currentClients("1. alice --> IP: 10.0.0.1"))
	expectOK(t, alice, joined("bob", "10.0.0.2"))
	login(t, svc, Config{Identity: "carol", Address: "10.0.0.3"}, currentClients("1. alice --> IP: 10.0.0.1", "2. bob --> IP: 10.0.0.2"))
	expectOK(t, alice, joined("carol", "10.0.0.3"))

	require.NoError(t, alice.SendCommand([]string{"bob", "carol", "dave"}, "ping"))
	r := nextResponse(t, alice)
	require.Equal(t, protocol.StatusOK, r.Status)
	lines := strings.Split(r.Payload, "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"ping", "ping"}, lines[:2])
	require.True(t, strings.HasPrefix(lines[2], "dave: ERROR: "), lines[2])
}

func TestClientExecutorError(t *testing.T) {
	svc := startCoordinator(t)
	failing := ExecutorFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("boom")
	})
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)
	login(t, svc, Config{Identity: "bob", Address: "10.0.0.2", Executor: failing}, currentClients("1. alice --> IP: 10.0.0.1"))
	expectOK(t, alice, joined("bob", "10.0.0.2"))

	require.NoError(t, alice.SendCommand([]string{"bob"}, "anything"))
	expectOK(t, alice, "ERROR: boom")
}

func TestClientExecutorDeadline(t *testing.T) {
	svc := startCoordinator(t)
	slow := ExecutorFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)
	login(t, svc, Config{Identity: "bob", Address: "10.0.0.2", Executor: slow, ExecTimeout: 20 * time.Millisecond}, currentClients("1. alice --> IP: 10.0.0.1"))
	expectOK(t, alice, joined("bob", "10.0.0.2"))

	require.NoError(t, alice.SendCommand([]string{"bob"}, "sleep"))
	expectOK(t, alice, "ERROR: "+context.DeadlineExceeded.Error())
}

func TestClientRejectedIdentity(t *testing.T) {
	svc := startCoordinator(t)
	login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)

	dup := attach(t, svc, Config{Identity: "alice", Address: "10.0.0.9"})
	require.NoError(t, dup.Connect())
	r := nextResponse(t, dup)
	require.Equal(t, protocol.StatusError, r.Status)
	require.Equal(t, "identity already connected: alice", r.Payload)
}

func TestClientDisconnect(t *testing.T) {
	svc := startCoordinator(t)
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)
	bob := login(t, svc, Config{Identity: "bob", Address: "10.0.0.2"}, currentClients("1. alice --> IP: 10.0.0.1"))
	expectOK(t, alice, joined("bob", "10.0.0.2"))

	require.NoError(t, bob.Disconnect())
	select {
	case <-bob.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "client did not stop")
	}
	require.NoError(t, bob.Err())
	require.ErrorIs(t, bob.AddContact("alice"), ErrClosed)

	expectOK(t, alice, "bob has disconnected. If you had them in your list, they are now removed.")
	require.Eventually(t, func() bool { return svc.Registry().Len() == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestClientCoordinatorStops(t *testing.T) {
	svc := startCoordinator(t)
	alice := login(t, svc, Config{Identity: "alice", Address: "10.0.0.1"}, onlyClient)

	svc.Stop()
	select {
	case <-alice.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "client did not notice the coordinator going away")
	}
	_, ok := <-alice.Responses()
	require.False(t, ok)
}
