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
	"sort"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-relay/protocol"
)

// Connection is the write side of a peer's transport. Implementations serialize
// concurrent Sends.
type Connection interface {
	ID() string
	RemoteAddr() string
	Send(m protocol.Message) error
	Close() error
}

// PeerSession is a registered peer.
type PeerSession struct {
	Identity    string
	Address     string
	Conn        Connection
	ConnectedAt time.Time
	Contacts    []Contact

	seq uint64
}

// SessionSnapshot is the admin view of a session.
type SessionSnapshot struct {
	Identity     string    `json:"identity"`
	Address      string    `json:"address"`
	ConnectionID string    `json:"connection"`
	Remote       string    `json:"remote"`
	ConnectedAt  time.Time `json:"connectedAt"`
	Contacts     int       `json:"contacts"`
}

// Registry maps identities to live sessions. One lock serializes every
// operation, including the contact lists owned by the sessions.
type Registry struct {
	mu         deadlock.Mutex
	byIdentity map[string]*PeerSession
	byConn     map[string]*PeerSession
	nextSeq    uint64
	now        func() time.Time
}

// MakeRegistry creates an empty Registry.
func MakeRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]*PeerSession),
		byConn:     make(map[string]*PeerSession),
		now:        time.Now,
	}
}

// Register adds a session. A taken identity is rejected with ErrDuplicateIdentity;
// a connection that already carries a session is rejected with ErrAlreadyConnected.
func (r *Registry) Register(identity, address string, conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byConn[conn.ID()]; ok {
		return fmt.Errorf("%w as %s", ErrAlreadyConnected, s.Identity)
	}
	if _, ok := r.byIdentity[identity]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity)
	}
	r.nextSeq++
	s := &PeerSession{
		Identity:    identity,
		Address:     address,
		Conn:        conn,
		ConnectedAt: r.now(),
		seq:         r.nextSeq,
	}
	r.byIdentity[identity] = s
	r.byConn[conn.ID()] = s
	return nil
}

// Unregister removes identity and drops it from every other session's contacts.
func (r *Registry) Unregister(identity string) (PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIdentity[identity]
	if !ok {
		return PeerSession{}, false
	}
	delete(r.byIdentity, identity)
	delete(r.byConn, s.Conn.ID())
	for _, other := range r.byIdentity {
		other.Contacts = removeContact(other.Contacts, identity)
	}
	return s.copy(), true
}

// LookupByIdentity returns a copy of the session registered as identity.
func (r *Registry) LookupByIdentity(identity string) (PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byIdentity[identity]
	if !ok {
		return PeerSession{}, false
	}
	return s.copy(), true
}

// LookupByConnection returns a copy of the session carried by the connection with connID.
func (r *Registry) LookupByConnection(connID string) (PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[connID]
	if !ok {
		return PeerSession{}, false
	}
	return s.copy(), true
}

// ListOthers returns every registered peer except excluding, in registration order.
func (r *Registry) ListOthers(excluding string) []Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.sortedLocked()
	out := make([]Contact, 0, len(sessions))
	for _, s := range sessions {
		if s.Identity == excluding {
			continue
		}
		out = append(out, Contact{Identity: s.Identity, Address: s.Address})
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity)
}

// Snapshot describes every session, in registration order.
func (r *Registry) Snapshot() []SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.sortedLocked()
	out := make([]SessionSnapshot, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSnapshot{
			Identity:     s.Identity,
			Address:      s.Address,
			ConnectionID: s.Conn.ID(),
			Remote:       s.Conn.RemoteAddr(),
			ConnectedAt:  s.ConnectedAt,
			Contacts:     len(s.Contacts),
		}
	}
	return out
}

type recipient struct {
	identity string
	conn     Connection
}

// recipients snapshots the connections of every session except excluding.
func (r *Registry) recipients(excluding string) []recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.sortedLocked()
	out := make([]recipient, 0, len(sessions))
	for _, s := range sessions {
		if s.Identity == excluding {
			continue
		}
		out = append(out, recipient{identity: s.Identity, conn: s.Conn})
	}
	return out
}

func (r *Registry) sortedLocked() []*PeerSession {
	sessions := make([]*PeerSession, 0, len(r.byIdentity))
	for _, s := range r.byIdentity {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq < sessions[j].seq })
	return sessions
}

func (s *PeerSession) copy() PeerSession {
	out := *s
	out.Contacts = append([]Contact(nil), s.Contacts...)
	return out
}
