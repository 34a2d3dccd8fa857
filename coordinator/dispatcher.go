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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
	"github.com/algorand/go-relay/util/timers"
)

// DefaultCommandTimeout bounds how long a command waits for its receivers.
const DefaultCommandTimeout = 30 * time.Second

type commandState int

const (
	commandCreated commandState = iota
	commandAwaitingResults
	commandComplete
)

func (s commandState) String() string {
	switch s {
	case commandCreated:
		return "created"
	case commandAwaitingResults:
		return "awaiting-results"
	case commandComplete:
		return "complete"
	}
	return fmt.Sprintf("commandState(%d)", int(s))
}

type failure struct {
	identity string
	reason   error
}

func (f failure) String() string {
	return fmt.Sprintf("%s: ERROR: %v", f.identity, f.reason)
}

// commandInstance tracks one fanned-out command until its aggregate is sent.
type commandInstance struct {
	mu deadlock.Mutex

	id         uint64
	originator string
	origin     Connection

	// started is zeroed when the command is created; it drives the deadline and Age.
	started timers.Clock

	state    commandState
	expected []string
	pending  map[string]bool
	results  []string
	// immediate failures are known while forwarding; late ones come from
	// disconnects and the deadline
	immediate []failure
	late      []failure

	done chan struct{}
}

// CommandSnapshot is the admin view of an in-flight command.
type CommandSnapshot struct {
	ID         uint64        `json:"id"`
	Originator string        `json:"originator"`
	State      string        `json:"state"`
	Expected   []string      `json:"expected"`
	Collected  int           `json:"collected"`
	Age        time.Duration `json:"age"`
}

// aggregateLocked renders the reply: results in arrival order, then failure markers.
func (c *commandInstance) aggregateLocked() string {
	lines := make([]string, 0, len(c.results)+len(c.immediate)+len(c.late))
	lines = append(lines, c.results...)
	for _, f := range c.immediate {
		lines = append(lines, f.String())
	}
	for _, f := range c.late {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}

// failPendingLocked records reason for every receiver still owing a result, in forwarding order.
func (c *commandInstance) failPendingLocked(reason error) {
	for _, identity := range c.expected {
		if c.pending[identity] {
			delete(c.pending, identity)
			c.late = append(c.late, failure{identity: identity, reason: reason})
		}
	}
}

func (c *commandInstance) isComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == commandComplete
}

// terminalLocked reports whether every receiver has been accounted for.
func (c *commandInstance) terminalLocked() bool {
	return c.state == commandAwaitingResults && len(c.pending) == 0
}

// Dispatcher forwards commands to their receivers and collects the results.
type Dispatcher struct {
	log      logging.Logger
	registry *Registry
	clock    timers.Clock
	timeout  time.Duration
	metrics  *serviceMetrics

	mu       deadlock.Mutex
	nextID   uint64
	commands map[uint64]*commandInstance
	stopped  bool

	timers sync.WaitGroup
}

// MakeDispatcher creates a Dispatcher. A nil clock uses the monotonic clock; a
// non-positive timeout uses DefaultCommandTimeout.
func MakeDispatcher(registry *Registry, clock timers.Clock, timeout time.Duration, log logging.Logger, m *serviceMetrics) *Dispatcher {
	if clock == nil {
		clock = &timers.Monotonic{}
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if m == nil {
		m = makeServiceMetrics(nil)
	}
	return &Dispatcher{
		log:      log,
		registry: registry,
		clock:    clock,
		timeout:  timeout,
		metrics:  m,
		commands: make(map[uint64]*commandInstance),
	}
}

// Dispatch forwards payload to every registered target and returns the command id.
// Targets that are not registered, or whose forward fails, are reported in the
// aggregate. When no target was reached the aggregate is sent before Dispatch returns.
func (d *Dispatcher) Dispatch(originator string, origin Connection, targets []string, payload string) uint64 {
	cmd := &commandInstance{
		originator: originator,
		origin:     origin,
		started:    d.clock.Zero(),
		state:      commandCreated,
		pending:    make(map[string]bool),
		done:       make(chan struct{}),
	}

	d.mu.Lock()
	d.nextID++
	cmd.id = d.nextID
	stopped := d.stopped
	if !stopped {
		d.commands[cmd.id] = cmd
		d.metrics.commandsInFlight.Add(1)
	}
	d.mu.Unlock()

	log := d.log.With("command", cmd.id)
	d.metrics.commandsTotal.Inc()

	if stopped {
		cmd.mu.Lock()
		for _, target := range targets {
			cmd.immediate = append(cmd.immediate, failure{identity: target, reason: errShuttingDown})
		}
		cmd.state = commandAwaitingResults
		d.completeLocked(cmd)
		return cmd.id
	}

	forward := protocol.MakeForwardedCommand(strconv.FormatUint(cmd.id, 10), originator, payload)
	for _, target := range targets {
		if cmd.isComplete() {
			break
		}
		session, ok := d.registry.LookupByIdentity(target)
		if !ok {
			cmd.mu.Lock()
			cmd.immediate = append(cmd.immediate, failure{identity: target, reason: ErrUnknownTarget})
			cmd.mu.Unlock()
			continue
		}

		// receivers are expected before the forward so an early result is not dropped
		cmd.mu.Lock()
		cmd.expected = append(cmd.expected, target)
		cmd.pending[target] = true
		cmd.mu.Unlock()

		if err := session.Conn.Send(forward); err != nil {
			log.Infof("forward to %s failed: %v", target, err)
			cmd.mu.Lock()
			if cmd.pending[target] {
				delete(cmd.pending, target)
				cmd.expected = removeString(cmd.expected, target)
				cmd.immediate = append(cmd.immediate, failure{identity: target, reason: errForwardFailed})
			}
			cmd.mu.Unlock()
		}
	}

	cmd.mu.Lock()
	if cmd.state == commandComplete {
		// the originator left or the dispatcher stopped while forwarding
		cmd.mu.Unlock()
		return cmd.id
	}
	cmd.state = commandAwaitingResults
	if cmd.terminalLocked() {
		d.completeLocked(cmd)
		return cmd.id
	}
	expected := len(cmd.expected)
	cmd.mu.Unlock()

	log.Debugf("forwarded to %d receivers", expected)
	d.mu.Lock()
	if d.stopped {
		// Stop completes every registered command
		d.mu.Unlock()
		return cmd.id
	}
	d.timers.Add(1)
	d.mu.Unlock()
	go d.watch(cmd, cmd.started)
	return cmd.id
}

func (d *Dispatcher) watch(cmd *commandInstance, clock timers.Clock) {
	defer d.timers.Done()
	select {
	case <-clock.TimeoutAt(d.timeout):
		d.expire(cmd)
	case <-cmd.done:
	}
}

func (d *Dispatcher) expire(cmd *commandInstance) {
	cmd.mu.Lock()
	if cmd.state == commandComplete {
		cmd.mu.Unlock()
		return
	}
	d.log.With("command", cmd.id).Infof("%v after %v waiting on %d receivers", ErrCommandTimeout, d.timeout, len(cmd.pending))
	d.metrics.commandTimeouts.Inc()
	cmd.failPendingLocked(ErrCommandTimeout)
	d.completeLocked(cmd)
}

// HandleResult records a SEND_RESULT from identity. Results for unknown or finished
// commands, from peers the command was not forwarded to, and repeated results are ignored.
func (d *Dispatcher) HandleResult(identity, commandID, result string) {
	id, err := strconv.ParseUint(commandID, 10, 64)
	if err != nil {
		d.log.Debugf("result from %s names invalid command id %q", identity, commandID)
		return
	}
	d.mu.Lock()
	cmd, ok := d.commands[id]
	d.mu.Unlock()
	if !ok {
		d.log.Debugf("result from %s for unknown command %d", identity, id)
		return
	}

	cmd.mu.Lock()
	if cmd.state == commandComplete || !cmd.pending[identity] {
		cmd.mu.Unlock()
		d.log.Debugf("ignoring result from %s for command %d", identity, id)
		return
	}
	delete(cmd.pending, identity)
	cmd.results = append(cmd.results, result)
	if cmd.terminalLocked() {
		d.completeLocked(cmd)
		return
	}
	cmd.mu.Unlock()
}

// PeerDisconnected resolves identity's outstanding results as failures and
// abandons the commands identity originated.
func (d *Dispatcher) PeerDisconnected(identity string) {
	d.mu.Lock()
	cmds := make([]*commandInstance, 0, len(d.commands))
	for _, cmd := range d.commands {
		cmds = append(cmds, cmd)
	}
	d.mu.Unlock()

	for _, cmd := range cmds {
		cmd.mu.Lock()
		switch {
		case cmd.state == commandComplete:
			cmd.mu.Unlock()
		case cmd.originator == identity:
			d.abandonLocked(cmd)
		case cmd.pending[identity]:
			delete(cmd.pending, identity)
			cmd.late = append(cmd.late, failure{identity: identity, reason: errReceiverGone})
			if cmd.terminalLocked() {
				d.completeLocked(cmd)
			} else {
				cmd.mu.Unlock()
			}
		default:
			cmd.mu.Unlock()
		}
	}
}

// Stop force-completes every in-flight command and waits for the timer goroutines.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	cmds := make([]*commandInstance, 0, len(d.commands))
	for _, cmd := range d.commands {
		cmds = append(cmds, cmd)
	}
	d.mu.Unlock()

	for _, cmd := range cmds {
		cmd.mu.Lock()
		if cmd.state == commandComplete {
			cmd.mu.Unlock()
			continue
		}
		cmd.failPendingLocked(errShuttingDown)
		cmd.state = commandAwaitingResults
		d.completeLocked(cmd)
	}
	d.timers.Wait()
}

// InFlight returns the number of commands still waiting for results.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commands)
}

// Snapshot describes every in-flight command, oldest first.
func (d *Dispatcher) Snapshot() []CommandSnapshot {
	d.mu.Lock()
	cmds := make([]*commandInstance, 0, len(d.commands))
	for _, cmd := range d.commands {
		cmds = append(cmds, cmd)
	}
	d.mu.Unlock()

	out := make([]CommandSnapshot, 0, len(cmds))
	for _, cmd := range cmds {
		cmd.mu.Lock()
		out = append(out, CommandSnapshot{
			ID:         cmd.id,
			Originator: cmd.originator,
			State:      cmd.state.String(),
			Expected:   append([]string(nil), cmd.expected...),
			Collected:  len(cmd.results),
			Age:        cmd.started.Since(),
		})
		cmd.mu.Unlock()
	}
	sortCommandSnapshots(out)
	return out
}

// completeLocked sends the aggregate. It is called with cmd.mu held and releases it.
func (d *Dispatcher) completeLocked(cmd *commandInstance) {
	payload := cmd.aggregateLocked()
	wasTracked := d.finishLocked(cmd)
	origin := cmd.origin
	cmd.mu.Unlock()

	if wasTracked {
		d.metrics.commandsInFlight.Add(-1)
	}
	if err := origin.Send(protocol.OK(payload)); err != nil {
		d.log.With("command", cmd.id).Infof("could not deliver aggregate to %s: %v", cmd.originator, err)
	}
}

// abandonLocked finishes cmd without a reply. It is called with cmd.mu held and releases it.
func (d *Dispatcher) abandonLocked(cmd *commandInstance) {
	wasTracked := d.finishLocked(cmd)
	cmd.mu.Unlock()
	if wasTracked {
		d.metrics.commandsInFlight.Add(-1)
	}
	d.log.With("command", cmd.id).Debugf("originator %s left, dropping command", cmd.originator)
}

func (d *Dispatcher) finishLocked(cmd *commandInstance) bool {
	cmd.state = commandComplete
	close(cmd.done)

	d.mu.Lock()
	_, tracked := d.commands[cmd.id]
	delete(d.commands, cmd.id)
	d.mu.Unlock()
	return tracked
}

func sortCommandSnapshots(cmds []CommandSnapshot) {
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].ID < cmds[j].ID })
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
