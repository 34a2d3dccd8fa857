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
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
	"github.com/algorand/go-relay/util/timers"
)

func makeTestDispatcher(t *testing.T) (*Dispatcher, *Registry, *timers.Frozen) {
	t.Helper()
	reg := MakeRegistry()
	clock := timers.MakeFrozenClock()
	d := MakeDispatcher(reg, clock, time.Second, logging.TestingLog(t), nil)
	t.Cleanup(d.Stop)
	return d, reg, clock
}

// forwarded returns the id of the single command forwarded to c.
func forwarded(t *testing.T, c *fakeConn) string {
	t.Helper()
	reqs := c.requests()
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].IsForwarded())
	return reqs[0].Param(0)
}

func aggregates(c *fakeConn) []string {
	var out []string
	for _, r := range c.responses() {
		out = append(out, r.Payload)
	}
	return out
}

func TestDispatchCollectsResultsInArrivalOrder(t *testing.T) {
	a := require.New(t)
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	carol := register(t, reg, "carol", "10.0.0.3")

	id := d.Dispatch("alice", alice, []string{"bob", "carol"}, "uptime")
	a.Equal(uint64(1), id)
	a.Equal(protocol.MakeForwardedCommand("1", "alice", "uptime"), bob.requests()[0])
	a.Equal(1, d.InFlight())

	d.HandleResult("carol", forwarded(t, carol), "carol up 3 days")
	a.Empty(alice.messages())
	d.HandleResult("bob", forwarded(t, bob), "bob up 1 day")

	a.Equal([]string{"carol up 3 days\nbob up 1 day"}, aggregates(alice))
	a.Zero(d.InFlight())
}

func TestDispatchIdsIncrease(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")

	first := d.Dispatch("alice", alice, nil, "x")
	second := d.Dispatch("alice", alice, nil, "x")
	require.Greater(t, second, first)
}

func TestDispatchEmptyTargetsCompletesImmediately(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")

	d.Dispatch("alice", alice, nil, "x")
	require.Equal(t, []string{""}, aggregates(alice))
	require.Zero(t, d.InFlight())
}

func TestDispatchAllUnknownTargetsCompletesImmediately(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")

	d.Dispatch("alice", alice, []string{"zed", "yan"}, "x")
	require.Equal(t, []string{"zed: ERROR: client not found\nyan: ERROR: client not found"}, aggregates(alice))
	require.Zero(t, d.InFlight())
}

func TestDispatchImmediateFailuresFollowResults(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	carol := register(t, reg, "carol", "10.0.0.3")
	carol.setFail(true)

	d.Dispatch("alice", alice, []string{"zed", "carol", "bob", "yan"}, "x")
	require.Empty(t, alice.messages())

	d.HandleResult("bob", forwarded(t, bob), "ok")
	require.Equal(t, []string{
		"ok\nzed: ERROR: client not found\ncarol: ERROR: failed to send command\nyan: ERROR: client not found",
	}, aggregates(alice))
}

func TestDispatchTimeoutReportsSilentReceivers(t *testing.T) {
	a := require.New(t)
	d, reg, clock := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	register(t, reg, "carol", "10.0.0.3")

	d.Dispatch("alice", alice, []string{"bob", "carol"}, "x")
	d.HandleResult("bob", forwarded(t, bob), "from bob")
	a.Empty(alice.messages())

	clock.Fire()
	a.Eventually(func() bool { return len(alice.messages()) == 1 }, waitFor, 10*time.Millisecond)
	a.Equal([]string{"from bob\ncarol: ERROR: timed out"}, aggregates(alice))
	a.Equal(1.0, d.metrics.commandTimeouts.GetValue())

	// a late result changes nothing
	d.HandleResult("carol", "1", "too late")
	a.Len(alice.messages(), 1)
}

func TestDispatchTimeoutWithMonotonicClock(t *testing.T) {
	reg := MakeRegistry()
	d := MakeDispatcher(reg, nil, 50*time.Millisecond, logging.TestingLog(t), nil)
	t.Cleanup(d.Stop)
	alice := register(t, reg, "alice", "10.0.0.1")
	register(t, reg, "bob", "10.0.0.2")

	d.Dispatch("alice", alice, []string{"bob"}, "x")
	require.Eventually(t, func() bool { return len(alice.messages()) == 1 }, waitFor, 10*time.Millisecond)
	require.Equal(t, []string{"bob: ERROR: timed out"}, aggregates(alice))
}

func TestHandleResultIgnoresStrayResults(t *testing.T) {
	a := require.New(t)
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	register(t, reg, "carol", "10.0.0.3")

	d.Dispatch("alice", alice, []string{"bob", "carol"}, "x")
	id := forwarded(t, bob)

	d.HandleResult("bob", id, "first")
	d.HandleResult("bob", id, "second")   // duplicate
	d.HandleResult("dave", id, "spoofed") // not a receiver
	d.HandleResult("bob", "999", "nope")  // unknown command
	d.HandleResult("bob", "abc", "nope")  // not a command id
	a.Empty(alice.messages())

	d.HandleResult("carol", id, "third")
	a.Equal([]string{"first\nthird"}, aggregates(alice))
}

func TestReceiverDisconnectResolvesAsFailure(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	register(t, reg, "carol", "10.0.0.3")

	d.Dispatch("alice", alice, []string{"bob", "carol"}, "x")
	d.HandleResult("bob", forwarded(t, bob), "from bob")

	reg.Unregister("carol")
	d.PeerDisconnected("carol")
	require.Equal(t, []string{"from bob\ncarol: ERROR: disconnected before responding"}, aggregates(alice))
	require.Zero(t, d.InFlight())
}

func TestOriginatorDisconnectAbandonsCommand(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")

	d.Dispatch("alice", alice, []string{"bob"}, "x")
	id := forwarded(t, bob)
	require.Equal(t, 1, d.InFlight())

	d.PeerDisconnected("alice")
	require.Zero(t, d.InFlight())
	d.HandleResult("bob", id, "late")
	require.Empty(t, alice.messages())
	require.Zero(t, d.metrics.commandsInFlight.GetValue())
}

func TestDispatcherStopCompletesInFlight(t *testing.T) {
	a := require.New(t)
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	register(t, reg, "bob", "10.0.0.2")

	d.Dispatch("alice", alice, []string{"bob"}, "x")
	d.Stop()
	a.Equal([]string{"bob: ERROR: coordinator shutting down"}, aggregates(alice))

	d.Dispatch("alice", alice, []string{"bob"}, "y")
	a.Equal("bob: ERROR: coordinator shutting down", aggregates(alice)[1])
	a.Zero(d.InFlight())
}

func TestDispatchRacingStop(t *testing.T) {
	d, reg, _ := makeTestDispatcher(t)
	register(t, reg, "bob", "10.0.0.2")

	origins := make([]*fakeConn, 32)
	for i := range origins {
		origins[i] = newFakeConn("alice" + strconv.Itoa(i))
	}

	var wg sync.WaitGroup
	for _, origin := range origins {
		wg.Add(1)
		go func(origin *fakeConn) {
			defer wg.Done()
			d.Dispatch(origin.id, origin, []string{"bob"}, "x")
		}(origin)
	}
	d.Stop()
	wg.Wait()

	// every command is answered exactly once, either by Stop or at dispatch time
	for _, origin := range origins {
		require.Len(t, aggregates(origin), 1, origin.id)
	}
	require.Zero(t, d.InFlight())
}

func TestDispatcherSnapshot(t *testing.T) {
	a := require.New(t)
	d, reg, _ := makeTestDispatcher(t)
	alice := register(t, reg, "alice", "10.0.0.1")
	bob := register(t, reg, "bob", "10.0.0.2")
	register(t, reg, "carol", "10.0.0.3")

	first := d.Dispatch("alice", alice, []string{"bob", "carol"}, "x")
	second := d.Dispatch("alice", alice, []string{"carol"}, "y")
	d.HandleResult("bob", strconv.FormatUint(first, 10), "r")

	snap := d.Snapshot()
	a.Len(snap, 2)
	a.Equal(first, snap[0].ID)
	a.Equal(second, snap[1].ID)
	a.Equal("alice", snap[0].Originator)
	a.Equal([]string{"bob", "carol"}, snap[0].Expected)
	a.Equal(1, snap[0].Collected)
	a.Equal("awaiting-results", snap[0].State)
	a.Zero(snap[0].Age)
	a.Len(bob.requests(), 1)
}

func TestDispatcherSnapshotAge(t *testing.T) {
	reg := MakeRegistry()
	d := MakeDispatcher(reg, nil, time.Minute, logging.TestingLog(t), nil)
	t.Cleanup(d.Stop)
	alice := register(t, reg, "alice", "10.0.0.1")
	register(t, reg, "bob", "10.0.0.2")

	d.Dispatch("alice", alice, []string{"bob"}, "x")
	time.Sleep(20 * time.Millisecond)
	snap := d.Snapshot()
	require.Len(t, snap, 1)
	require.GreaterOrEqual(t, snap[0].Age, 20*time.Millisecond)
}
