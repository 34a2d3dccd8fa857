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
	"fmt"
	"strings"
)

// Contact is an entry in a peer's private contact list.
type Contact struct {
	Identity string `json:"identity"`
	Address  string `json:"address"`
}

// AddContact appends target to owner's contacts and returns the entry.
// Adding a contact that is already listed is a no-op.
func (r *Registry) AddContact(owner, target string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIdentity[owner]
	if !ok {
		return Contact{}, ErrNotConnected
	}
	if owner == target {
		return Contact{}, ErrSelfContact
	}
	t, ok := r.byIdentity[target]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	c := Contact{Identity: t.Identity, Address: t.Address}
	for _, existing := range s.Contacts {
		if existing.Identity == target {
			return existing, nil
		}
	}
	s.Contacts = append(s.Contacts, c)
	return c, nil
}

// ListContacts returns owner's contacts in the order they were added.
func (r *Registry) ListContacts(owner string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byIdentity[owner]
	if !ok {
		return nil, ErrNotConnected
	}
	return append([]Contact(nil), s.Contacts...), nil
}

func removeContact(contacts []Contact, identity string) []Contact {
	out := contacts[:0]
	for _, c := range contacts {
		if c.Identity != identity {
			out = append(out, c)
		}
	}
	return out
}

func contactAddedText(c Contact) string {
	return fmt.Sprintf("%s added to your list (%s).", c.Identity, c.Address)
}

const noContactsText = "You have no connected clients in your list."

func contactListText(contacts []Contact) string {
	if len(contacts) == 0 {
		return noContactsText
	}
	var b strings.Builder
	b.WriteString("Clients you are connected to:")
	for i, c := range contacts {
		fmt.Fprintf(&b, "\n%d. %s -> IP: %s", i+1, c.Identity, c.Address)
	}
	return b.String()
}

const onlyClientText = "You are the only client connected."

func peerListText(others []Contact) string {
	if len(others) == 0 {
		return onlyClientText
	}
	var b strings.Builder
	b.WriteString("Current clients:")
	for i, c := range others {
		fmt.Fprintf(&b, "\n%d. %s --> IP: %s", i+1, c.Identity, c.Address)
	}
	b.WriteString("\nType 'add client_name' to add them to your list.")
	return b.String()
}
