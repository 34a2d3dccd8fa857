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
)

func TestAddContact(t *testing.T) {
	a := require.New(t)
	r := MakeRegistry()
	register(t, r, "alice", "10.0.0.1")
	register(t, r, "bob", "10.0.0.2")

	c, err := r.AddContact("alice", "bob")
	a.NoError(err)
	a.Equal(Contact{Identity: "bob", Address: "10.0.0.2"}, c)
	a.Equal("bob added to your list (10.0.0.2).", contactAddedText(c))

	// idempotent
	_, err = r.AddContact("alice", "bob")
	a.NoError(err)
	contacts, err := r.ListContacts("alice")
	a.NoError(err)
	a.Len(contacts, 1)

	_, err = r.AddContact("alice", "zed")
	a.ErrorIs(err, ErrUnknownTarget)
	_, err = r.AddContact("alice", "alice")
	a.ErrorIs(err, ErrSelfContact)
	_, err = r.AddContact("zed", "alice")
	a.ErrorIs(err, ErrNotConnected)
	_, err = r.ListContacts("zed")
	a.ErrorIs(err, ErrNotConnected)
}

func TestContactOrderIsInsertionOrder(t *testing.T) {
	r := MakeRegistry()
	register(t, r, "alice", "10.0.0.1")
	register(t, r, "bob", "10.0.0.2")
	register(t, r, "carol", "10.0.0.3")

	_, err := r.AddContact("alice", "carol")
	require.NoError(t, err)
	_, err = r.AddContact("alice", "bob")
	require.NoError(t, err)

	contacts, err := r.ListContacts("alice")
	require.NoError(t, err)
	require.Equal(t, "Clients you are connected to:\n1. carol -> IP: 10.0.0.3\n2. bob -> IP: 10.0.0.2", contactListText(contacts))
}

func TestContactTexts(t *testing.T) {
	require.Equal(t, noContactsText, contactListText(nil))
	require.Equal(t, "You are the only client connected.", peerListText(nil))
	require.Equal(t,
		"Current clients:\n1. bob --> IP: 10.0.0.2\n2. carol --> IP: 10.0.0.3\nType 'add client_name' to add them to your list.",
		peerListText([]Contact{{Identity: "bob", Address: "10.0.0.2"}, {Identity: "carol", Address: "10.0.0.3"}}))
}
