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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout. Every frame on a stream is
//
//	uvarint(len(body)) body
//
// and body is
//
//	"REQ" code uvarint(nparams) { uvarint(len(param)) param }*
//	"RES" code uvarint(len(payload)) payload
//
// where code is a single byte holding the RequestType or ResponseStatus.
// Fields are length-prefixed, so params and payloads may contain any byte.

// DefaultMaxFrameSize is the largest frame body accepted unless configured otherwise.
const DefaultMaxFrameSize = 1 << 20

const kindLen = 3

var (
	// ErrMalformedMessage is returned when a frame body decodes to neither a
	// Request nor a Response. The stream is still aligned on the next frame.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrFrameTooLarge is returned when a frame header announces a body larger
	// than the reader accepts. The stream cannot be resynchronized after it.
	ErrFrameTooLarge = errors.New("frame too large")
)

// MalformedMessageError describes why a frame body was rejected.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedMessage.
func (e *MalformedMessageError) Unwrap() error {
	return ErrMalformedMessage
}

func malformedf(format string, args ...interface{}) error {
	return &MalformedMessageError{Reason: fmt.Sprintf(format, args...)}
}

// Encode serializes m into a frame body.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, malformedf("nil message")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch msg := m.(type) {
	case Request:
		buf.WriteString(string(KindRequest))
		buf.WriteByte(byte(msg.Type))
		putUvarint(&buf, uint64(len(msg.Params)))
		for _, p := range msg.Params {
			putString(&buf, p)
		}
	case Response:
		buf.WriteString(string(KindResponse))
		buf.WriteByte(byte(msg.Status))
		putString(&buf, msg.Payload)
	default:
		return nil, malformedf("unsupported message type %T", m)
	}
	return buf.Bytes(), nil
}

// Decode parses a frame body produced by Encode.
func Decode(b []byte) (Message, error) {
	if len(b) < kindLen+1 {
		return nil, malformedf("short body (%d bytes)", len(b))
	}
	kind := Kind(b[:kindLen])
	code := b[kindLen]
	r := bytes.NewReader(b[kindLen+1:])

	var m Message
	switch kind {
	case KindRequest:
		count, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, malformedf("bad parameter count: %v", err)
		}
		// every parameter needs at least its length byte
		if count > uint64(r.Len()) {
			return nil, malformedf("parameter count %d exceeds body", count)
		}
		req := Request{Type: RequestType(code)}
		if count > 0 {
			req.Params = make([]string, count)
		}
		for i := range req.Params {
			req.Params[i], err = readString(r)
			if err != nil {
				return nil, malformedf("parameter %d: %v", i, err)
			}
		}
		m = req
	case KindResponse:
		payload, err := readString(r)
		if err != nil {
			return nil, malformedf("payload: %v", err)
		}
		m = Response{Status: ResponseStatus(code), Payload: payload}
	default:
		return nil, malformedf("unknown kind %q", string(kind))
	}
	if r.Len() != 0 {
		return nil, malformedf("%d trailing bytes", r.Len())
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeFrame serializes m and prepends the frame length.
func EncodeFrame(m Message) ([]byte, error) {
	body, err := Encode(m)
	if err != nil {
		return nil, err
	}
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(body)))
	frame := make([]byte, 0, n+len(body))
	frame = append(frame, hdr[:n]...)
	return append(frame, body...), nil
}

// WriteMessage writes m to w as a single frame.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Reader reads frames from a stream.
type Reader struct {
	br           *bufio.Reader
	maxFrameSize uint64
}

// NewReader wraps r. A non-positive maxFrameSize selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reader{br: bufio.NewReader(r), maxFrameSize: uint64(maxFrameSize)}
}

// ReadMessage blocks until a full frame has been read. It returns io.EOF if the
// stream ended cleanly between frames, an error wrapping ErrMalformedMessage if
// the frame body was rejected (the next call reads the following frame), and
// any other error if the stream is no longer usable.
func (r *Reader) ReadMessage() (Message, error) {
	size, err := binary.ReadUvarint(r.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	if size > r.maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, r.maxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r.br, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return Decode(body)
}

func putUvarint(buf *bytes.Buffer, x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > uint64(r.Len()) {
		return "", fmt.Errorf("length %d exceeds remaining %d bytes", n, r.Len())
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return "", err
	}
	return string(s), nil
}
