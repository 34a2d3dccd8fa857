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
)

var (
	// ErrDuplicateIdentity is returned when CONNECT names an identity that is already registered.
	ErrDuplicateIdentity = errors.New("identity already connected")

	// ErrUnknownTarget is returned when a request names an identity that is not registered.
	ErrUnknownTarget = errors.New("client not found")

	// ErrCommandTimeout marks receivers that did not answer before the command deadline.
	ErrCommandTimeout = errors.New("timed out")

	// ErrNotConnected is returned for requests sent before a successful CONNECT.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned for a second CONNECT on a registered connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrSelfContact is returned when a peer tries to add itself as a contact.
	ErrSelfContact = errors.New("cannot add yourself")

	// ErrServiceStopped is returned by Serve and ServeConn once Stop was called.
	ErrServiceStopped = errors.New("coordinator stopped")

	errForwardFailed = errors.New("failed to send command")
	errReceiverGone  = errors.New("disconnected before responding")
	errShuttingDown  = errors.New("coordinator shutting down")
)
