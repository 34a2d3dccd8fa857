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

// Package peer is the client side of the relay protocol: it registers with a
// coordinator, manages contacts, sends commands and answers forwarded ones.
package peer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/network"
	"github.com/algorand/go-relay/protocol"
)

const (
	defaultExecTimeout = 20 * time.Second
	dialTimeout        = 30 * time.Second
	responseBacklog    = 64
)

// ErrClosed is returned when using a Client whose connection has ended.
var ErrClosed = errors.New("peer connection closed")

// Config describes the local peer.
type Config struct {
	Identity string
	Address  string
	// Executor answers forwarded commands; nil answers with Echo.
	Executor Executor
	// ExecTimeout bounds a single execution.
	ExecTimeout  time.Duration
	MaxFrameSize int
}

// Client is a connection to a coordinator.
type Client struct {
	cfg  Config
	log  logging.Logger
	conn net.Conn

	writeMu deadlock.Mutex

	responses chan protocol.Response
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	readErr   error

	executions sync.WaitGroup
}

// NewClient starts serving conn. The caller still needs to call Connect.
func NewClient(conn net.Conn, cfg Config, log logging.Logger) *Client {
	if cfg.Executor == nil {
		cfg.Executor = Echo
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		log:       log.With("peer", cfg.Identity),
		conn:      conn,
		responses: make(chan protocol.Response, responseBacklog),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to coordinator. With useWebsocket, coordinator may be a full
// wss:// URL or a host:port.
func Dial(ctx context.Context, coordinator string, tlsConf *tls.Config, useWebsocket bool, cfg Config, log logging.Logger) (*Client, error) {
	var conn net.Conn
	var err error
	if useWebsocket {
		url := coordinator
		if !strings.Contains(url, "://") {
			url = "wss://" + url + network.WebsocketPath
		}
		conn, err = network.DialWebsocket(ctx, url, tlsConf, int64(cfg.MaxFrameSize))
	} else {
		timeout := dialTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		conn, err = network.DialTLS(coordinator, tlsConf, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", coordinator, err)
	}
	return NewClient(conn, cfg, log), nil
}

// Responses delivers every response sent by the coordinator, in order. It is
// closed once the connection ends.
func (c *Client) Responses() <-chan protocol.Response {
	return c.responses
}

// Done is closed once the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open or after a clean close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Connect registers the configured identity and address.
func (c *Client) Connect() error {
	return c.send(protocol.MakeConnect(c.cfg.Identity, c.cfg.Address))
}

// AddContact asks the coordinator to add name to this peer's contacts.
func (c *Client) AddContact(name string) error {
	return c.send(protocol.MakeAddClient(name))
}

// ViewContacts asks for this peer's contact list.
func (c *Client) ViewContacts() error {
	return c.send(protocol.MakeViewContacts())
}

// SendCommand sends payload to every target. The aggregated reply arrives on Responses.
func (c *Client) SendCommand(targets []string, payload string) error {
	return c.send(protocol.MakeSendCommand(targets, payload))
}

// Disconnect tells the coordinator this peer is leaving and closes the connection.
func (c *Client) Disconnect() error {
	err := c.send(protocol.MakeDisconnect())
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close drops the connection and waits for running executions to finish.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	<-c.done
	c.executions.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		err = nil
	}
	return err
}

func (c *Client) send(m protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.conn, m)
}

func (c *Client) readLoop() {
	defer func() {
		close(c.responses)
		close(c.done)
	}()

	reader := protocol.NewReader(c.conn, c.cfg.MaxFrameSize)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedMessage) {
				c.log.Warnf("dropping frame from coordinator: %v", err)
				continue
			}
			if !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
				c.readErr = err
			}
			return
		}

		switch m := msg.(type) {
		case protocol.Response:
			select {
			case c.responses <- m:
			case <-c.ctx.Done():
				return
			}
		case protocol.Request:
			if m.Type != protocol.SendCommand || !m.IsForwarded() {
				c.log.Warnf("unexpected request from coordinator: %v", m)
				continue
			}
			c.executions.Add(1)
			go c.execute(m.Param(0), m.Param(1), m.Param(2))
		}
	}
}

func (c *Client) execute(commandID, originator, payload string) {
	defer c.executions.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ExecTimeout)
	defer cancel()

	c.log.Debugf("executing command %s from %s", commandID, originator)
	result, err := c.cfg.Executor.Execute(ctx, originator, payload)
	if err != nil {
		result = "ERROR: " + err.Error()
	}
	if err := c.send(protocol.MakeSendResult(commandID, result)); err != nil {
		c.log.Infof("result for command %s not delivered: %v", commandID, err)
	}
}
