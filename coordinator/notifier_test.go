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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
)

func TestNotifyIsBestEffort(t *testing.T) {
	a := require.New(t)
	r := MakeRegistry()
	alice := register(t, r, "alice", "10.0.0.1")
	bob := register(t, r, "bob", "10.0.0.2")
	carol := register(t, r, "carol", "10.0.0.3")
	bob.setFail(true)

	n := MakeNotifier(r, logging.TestingLog(t), nil)
	delivered := n.Notify(connectedText("dave", "10.0.0.4"), "alice")

	a.Equal(1, delivered)
	a.Empty(alice.messages())
	a.Empty(bob.messages())
	a.Equal([]protocol.Message{protocol.OK("Hey, see that dave has connected from 10.0.0.4. Type 'add dave' to add them to your list.")}, carol.messages())
	a.Equal(1.0, n.metrics.broadcastFailures.GetValue())
}

func TestNotifyWithoutExclusion(t *testing.T) {
	r := MakeRegistry()
	alice := register(t, r, "alice", "10.0.0.1")

	n := MakeNotifier(r, logging.TestingLog(t), nil)
	require.Equal(t, 1, n.Notify(disconnectedText("bob"), ""))
	require.Equal(t, []protocol.Message{
		protocol.OK("bob has disconnected. If you had them in your list, they are now removed."),
	}, alice.messages())
}
