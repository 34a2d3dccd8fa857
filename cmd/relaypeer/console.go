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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/algorand/go-deadlock"
	"github.com/fatih/color"

	"github.com/algorand/go-relay/protocol"
)

const prompt = "> "

var errExit = errors.New("exit")

// session is the part of peer.Client the prompt drives.
type session interface {
	AddContact(name string) error
	ViewContacts() error
	SendCommand(targets []string, payload string) error
	Disconnect() error
}

type console struct {
	mu  deadlock.Mutex
	out io.Writer

	ok     *color.Color
	failed *color.Color
	notice *color.Color
}

func makeConsole(out io.Writer) *console {
	return &console{
		out:    out,
		ok:     color.New(color.FgGreen),
		failed: color.New(color.FgRed),
		notice: color.New(color.FgYellow),
	}
}

func (c *console) usage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "Commands:\n",
		" - 'add <name>' to add a connected peer to your contacts\n",
		" - 'list' to see your contacts\n",
		" - 'send <name[,name...]> <command>' to run a command on other peers\n",
		" - 'exit' to disconnect\n",
		prompt)
}

func (c *console) printf(col *color.Color, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col != nil {
		col.Fprintf(c.out, format, args...)
	} else {
		fmt.Fprintf(c.out, format, args...)
	}
	fmt.Fprint(c.out, "\n", prompt)
}

// printResponses prints every response until the channel is closed.
func (c *console) printResponses(responses <-chan protocol.Response) {
	for r := range responses {
		c.printResponse(r)
	}
}

func (c *console) printResponse(r protocol.Response) {
	switch {
	case r.Status != protocol.StatusOK:
		c.printf(c.failed, "Error from the coordinator:\n%s", r.Payload)
	case isNotice(r.Payload):
		c.printf(c.notice, "%s", r.Payload)
	default:
		c.printf(c.ok, "Message from the coordinator:\n%s", r.Payload)
	}
}

// isNotice reports whether payload is a peer joining or leaving.
func isNotice(payload string) bool {
	return !strings.Contains(payload, "\n") &&
		(strings.HasPrefix(payload, "Hey, see that ") || strings.Contains(payload, " has disconnected."))
}

// run reads commands from in until exit, end of input or a send failure.
func (c *console) run(in io.Reader, s session) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := c.execute(scanner.Text(), s)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return s.Disconnect()
}

func (c *console) execute(line string, s session) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.mu.Lock()
		fmt.Fprint(c.out, prompt)
		c.mu.Unlock()
		return nil
	}

	switch fields[0] {
	case "exit", "quit":
		if err := s.Disconnect(); err != nil {
			return err
		}
		return errExit
	case "add":
		if len(fields) != 2 {
			c.printf(c.failed, "usage: add <name>")
			return nil
		}
		return s.AddContact(fields[1])
	case "list":
		if len(fields) != 1 {
			c.printf(c.failed, "usage: list")
			return nil
		}
		return s.ViewContacts()
	case "send":
		if len(fields) < 3 {
			c.printf(c.failed, "usage: send <name[,name...]> <command>")
			return nil
		}
		targets := protocol.SplitTargets(fields[1])
		if len(targets) == 0 {
			c.printf(c.failed, "no targets given")
			return nil
		}
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		payload := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		return s.SendCommand(targets, payload)
	case "help":
		c.usage()
		return nil
	}
	c.printf(c.failed, "Unknown command %q. Type 'help' for the list of commands.", fields[0])
	return nil
}
