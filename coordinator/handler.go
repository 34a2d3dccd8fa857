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
	"fmt"
	"io"
	"strings"

	"golang.org/x/time/rate"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
)

// handler runs the read loop of one connection.
type handler struct {
	svc      *Service
	conn     *peerConn
	log      logging.Logger
	limiter  *rate.Limiter
	identity string
}

func (h *handler) run() {
	defer h.teardown()

	reader := protocol.NewReader(h.conn.conn, int(h.svc.cfg.MaxFrameSize))
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedMessage) {
				h.svc.metrics.malformedFrames.Inc()
				h.log.Warnf("dropping frame: %v", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				h.log.Debug("connection closed by peer")
			} else {
				h.log.Infof("connection lost: %v", err)
			}
			return
		}

		switch m := msg.(type) {
		case protocol.Request:
			if h.limited(m) {
				h.svc.metrics.rateLimited.Inc()
				h.reply(protocol.ErrorResponse("rate limit exceeded"))
				continue
			}
			h.svc.metrics.messagesReceived.Add(m.Type.String(), 1)
			if !h.handleRequest(m) {
				return
			}
		case protocol.Response:
			h.log.Debugf("ignoring response from peer: %v", m)
		}
	}
}

// limited charges req against the connection's token bucket. Results and
// DISCONNECT answer the coordinator and are never limited.
func (h *handler) limited(req protocol.Request) bool {
	if h.limiter == nil {
		return false
	}
	switch req.Type {
	case protocol.SendResult, protocol.Disconnect:
		return false
	}
	return !h.limiter.Allow()
}

// handleRequest returns false once the connection should be torn down.
func (h *handler) handleRequest(req protocol.Request) bool {
	switch req.Type {
	case protocol.Connect:
		h.connect(req.Param(0), req.Param(1))
		return true
	case protocol.Disconnect:
		h.log.Debug("peer requested disconnect")
		return false
	}

	if h.identity == "" {
		h.reply(protocol.ErrorResponse(ErrNotConnected.Error()))
		return true
	}

	switch req.Type {
	case protocol.AddClient:
		contact, err := h.svc.registry.AddContact(h.identity, req.Param(0))
		if err != nil {
			h.reply(protocol.ErrorResponse(err.Error()))
			return true
		}
		h.reply(protocol.OK(contactAddedText(contact)))
	case protocol.ViewContacts:
		contacts, err := h.svc.registry.ListContacts(h.identity)
		if err != nil {
			h.reply(protocol.ErrorResponse(err.Error()))
			return true
		}
		h.reply(protocol.OK(contactListText(contacts)))
	case protocol.SendCommand:
		if req.IsForwarded() {
			h.reply(protocol.ErrorResponse("forwarded commands are only sent by the coordinator"))
			return true
		}
		targets := protocol.SplitTargets(req.Param(0))
		id := h.svc.dispatcher.Dispatch(h.identity, h.conn, targets, req.Param(1))
		h.log.Debugf("command %d dispatched to %v", id, targets)
	case protocol.SendResult:
		h.svc.dispatcher.HandleResult(h.identity, req.Param(0), req.Param(1))
	default:
		h.reply(protocol.Errorf("unsupported request %v", req.Type))
	}
	return true
}

func (h *handler) connect(identity, address string) {
	if h.identity != "" {
		h.reply(protocol.ErrorResponse(fmt.Sprintf("%v as %s", ErrAlreadyConnected, h.identity)))
		return
	}
	if !validIdentity(identity) {
		h.reply(protocol.Errorf("invalid identity %q", identity))
		return
	}
	if err := h.svc.registry.Register(identity, address, h.conn); err != nil {
		h.log.Infof("CONNECT as %s rejected: %v", identity, err)
		h.reply(protocol.ErrorResponse(err.Error()))
		return
	}
	h.identity = identity
	h.log = h.log.With("peer", identity)
	h.svc.metrics.sessions.Set(float64(h.svc.registry.Len()))
	h.log.Infof("registered from %s", address)

	h.reply(protocol.OK(fmt.Sprintf("Welcome %s from %s!", identity, address)))
	h.reply(protocol.OK(peerListText(h.svc.registry.ListOthers(identity))))
	h.svc.notifier.Notify(connectedText(identity, address), identity)
}

// validIdentity accepts names that survive target list parsing unchanged.
func validIdentity(identity string) bool {
	return identity != "" &&
		identity == strings.TrimSpace(identity) &&
		!strings.Contains(identity, protocol.TargetSeparator)
}

func (h *handler) reply(m protocol.Message) {
	if err := h.conn.Send(m); err != nil {
		h.log.Infof("reply not delivered: %v", err)
	}
}

// teardown unregisters the session, closes the transport and tells everyone else.
func (h *handler) teardown() {
	if h.identity == "" {
		h.conn.Close()
		return
	}
	if _, ok := h.svc.registry.Unregister(h.identity); !ok {
		h.log.Warn("session was already unregistered")
	}
	h.conn.Close()
	h.svc.metrics.sessions.Set(float64(h.svc.registry.Len()))
	h.svc.dispatcher.PeerDisconnected(h.identity)
	h.svc.notifier.Notify(disconnectedText(h.identity), h.identity)
	h.log.Info("disconnected")
}
