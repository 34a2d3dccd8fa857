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

package logging

import (
	"testing"
)

// TestingLog returns a Logger at Debug level whose output goes to tb.Log.
func TestingLog(tb testing.TB) Logger {
	l := NewLogger()
	l.SetLevel(Debug)
	l.SetOutput(&tbWriter{tb: tb})
	return l
}

// TestingLogWithoutFatalExit is TestingLog, but Fatal runs the exit handlers
// without terminating the test binary.
func TestingLogWithoutFatalExit(tb testing.TB) Logger {
	l := TestingLog(tb).(logger)
	l.entry.Logger.ExitFunc = func(code int) {
		tb.Logf("fatal exit suppressed (code %d)", code)
	}
	return l
}

type tbWriter struct {
	tb testing.TB
}

func (w *tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(string(p))
	return len(p), nil
}
