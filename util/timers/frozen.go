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

package timers

import (
	"sync"
	"time"
)

// Frozen is a clock that never fires on its own. Fire releases every
// channel handed out by TimeoutAt, including those of clocks returned by Zero.
type Frozen struct {
	once      *sync.Once
	timeoutCh chan time.Time
}

// MakeFrozenClock creates a new frozen clock.
func MakeFrozenClock() *Frozen {
	return &Frozen{
		once:      &sync.Once{},
		timeoutCh: make(chan time.Time),
	}
}

// Zero returns a clock sharing this clock's trigger.
func (m *Frozen) Zero() Clock {
	return m
}

// TimeoutAt returns the shared trigger channel regardless of delta.
func (m *Frozen) TimeoutAt(delta time.Duration) <-chan time.Time {
	return m.timeoutCh
}

// Since always reports zero elapsed time.
func (m *Frozen) Since() time.Duration {
	return 0
}

// Fire closes the trigger channel. Calling it again has no effect.
func (m *Frozen) Fire() {
	m.once.Do(func() { close(m.timeoutCh) })
}

func (m *Frozen) String() string {
	return ""
}
