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
	"net"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/google/uuid"

	"github.com/algorand/go-relay/protocol"
)

// peerConn owns an accepted transport. Writes are serialized; the single reader
// is the connection's handler.
type peerConn struct {
	id           string
	conn         net.Conn
	remote       string
	writeTimeout time.Duration

	writeMu deadlock.Mutex

	closeOnce sync.Once
	closeErr  error
}

func makePeerConn(c net.Conn, writeTimeout time.Duration) *peerConn {
	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &peerConn{
		id:           uuid.NewString(),
		conn:         c,
		remote:       remote,
		writeTimeout: writeTimeout,
	}
}

func (pc *peerConn) ID() string {
	return pc.id
}

func (pc *peerConn) RemoteAddr() string {
	return pc.remote
}

// Send writes m as a single frame.
func (pc *peerConn) Send(m protocol.Message) error {
	frame, err := protocol.EncodeFrame(m)
	if err != nil {
		return err
	}

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if pc.writeTimeout > 0 {
		if err := pc.conn.SetWriteDeadline(time.Now().Add(pc.writeTimeout)); err != nil {
			return err
		}
	}
	_, err = pc.conn.Write(frame)
	return err
}

func (pc *peerConn) Close() error {
	pc.closeOnce.Do(func() {
		pc.closeErr = pc.conn.Close()
	})
	return pc.closeErr
}
