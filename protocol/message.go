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

package protocol

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two message shapes carried on the wire.
type Kind string

// Kinds, as they appear at the head of every frame.
const (
	KindRequest  Kind = "REQ"
	KindResponse Kind = "RES"
)

// RequestType identifies the operation a Request carries.
type RequestType uint8

// Request types. The numeric values are part of the wire format and must not change.
const (
	Connect      RequestType = 1
	SendCommand  RequestType = 2
	AddClient    RequestType = 3
	ViewContacts RequestType = 4
	Disconnect   RequestType = 5
	SendResult   RequestType = 6
)

// RequestTypeList lists every known request type, in wire order.
var RequestTypeList = []RequestType{Connect, SendCommand, AddClient, ViewContacts, Disconnect, SendResult}

func (t RequestType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case SendCommand:
		return "SEND_COMMAND"
	case AddClient:
		return "ADD_CLIENT"
	case ViewContacts:
		return "VIEW_CONTACTS"
	case Disconnect:
		return "DISCONNECT"
	case SendResult:
		return "SEND_RESULT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Valid returns true if t is one of the known request types.
func (t RequestType) Valid() bool {
	return t >= Connect && t <= SendResult
}

// ResponseStatus is the outcome reported by a Response.
type ResponseStatus uint8

// Response statuses. The numeric values are part of the wire format.
const (
	StatusOK    ResponseStatus = 1
	StatusError ResponseStatus = 2
)

func (s ResponseStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Valid returns true if s is one of the known statuses.
func (s ResponseStatus) Valid() bool {
	return s == StatusOK || s == StatusError
}

// Message is implemented by Request and Response only.
type Message interface {
	Kind() Kind
	Validate() error
	isMessage()
}

// Request is a peer (or coordinator) asking for an operation to be performed.
type Request struct {
	Type   RequestType
	Params []string
}

// Response carries the outcome of a request, or an unsolicited notification.
type Response struct {
	Status  ResponseStatus
	Payload string
}

// Kind implements Message.
func (Request) Kind() Kind { return KindRequest }

// Kind implements Message.
func (Response) Kind() Kind { return KindResponse }

func (Request) isMessage()  {}
func (Response) isMessage() {}

// Param returns the i-th parameter, or the empty string if there is none.
func (r Request) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return r.Params[i]
}

// paramCounts lists the accepted parameter counts for each request type.
// SEND_COMMAND has two shapes: [targets, payload] from a peer and
// [commandId, originator, payload] when forwarded by the coordinator.
var paramCounts = map[RequestType][]int{
	Connect:      {2},
	SendCommand:  {2, 3},
	AddClient:    {1},
	ViewContacts: {0},
	Disconnect:   {0},
	SendResult:   {2},
}

// Validate checks the request type and its parameter count.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return malformedf("unknown request type %d", uint8(r.Type))
	}
	for _, n := range paramCounts[r.Type] {
		if len(r.Params) == n {
			return nil
		}
	}
	return malformedf("%v takes %v parameters, got %d", r.Type, paramCounts[r.Type], len(r.Params))
}

// Validate checks the response status.
func (r Response) Validate() error {
	if !r.Status.Valid() {
		return malformedf("unknown response status %d", uint8(r.Status))
	}
	return nil
}

// IsForwarded returns true for a SEND_COMMAND in its coordinator-to-target shape.
func (r Request) IsForwarded() bool {
	return r.Type == SendCommand && len(r.Params) == 3
}

func (r Request) String() string {
	return fmt.Sprintf("%s %v %q", KindRequest, r.Type, r.Params)
}

func (r Response) String() string {
	return fmt.Sprintf("%s %v %q", KindResponse, r.Status, r.Payload)
}

// MakeConnect registers the sender under identity.
func MakeConnect(identity, address string) Request {
	return Request{Type: Connect, Params: []string{identity, address}}
}

// MakeAddClient asks to add target to the sender's contacts.
func MakeAddClient(target string) Request {
	return Request{Type: AddClient, Params: []string{target}}
}

// MakeViewContacts asks for the sender's contact list.
func MakeViewContacts() Request {
	return Request{Type: ViewContacts}
}

// MakeDisconnect ends the sender's session.
func MakeDisconnect() Request {
	return Request{Type: Disconnect}
}

// TargetSeparator separates identities in the target list of a SEND_COMMAND.
const TargetSeparator = ","

// MakeSendCommand asks the coordinator to fan payload out to targets.
func MakeSendCommand(targets []string, payload string) Request {
	return Request{Type: SendCommand, Params: []string{strings.Join(targets, TargetSeparator), payload}}
}

// MakeForwardedCommand is the coordinator's delivery of a command to one target.
func MakeForwardedCommand(commandID, originator, payload string) Request {
	return Request{Type: SendCommand, Params: []string{commandID, originator, payload}}
}

// MakeSendResult reports a target's result for commandID.
func MakeSendResult(commandID, result string) Request {
	return Request{Type: SendResult, Params: []string{commandID, result}}
}

// SplitTargets parses the target list of a SEND_COMMAND. Blank entries are
// dropped and duplicates are removed, keeping the first occurrence.
func SplitTargets(list string) []string {
	seen := make(map[string]bool)
	var targets []string
	for _, t := range strings.Split(list, TargetSeparator) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}
	return targets
}

// OK builds a successful Response.
func OK(payload string) Response {
	return Response{Status: StatusOK, Payload: payload}
}

// Errorf builds an ERROR Response.
func Errorf(format string, args ...interface{}) Response {
	return Response{Status: StatusError, Payload: fmt.Sprintf(format, args...)}
}

// ErrorResponse builds an ERROR Response with a literal payload.
func ErrorResponse(payload string) Response {
	return Response{Status: StatusError, Payload: payload}
}
