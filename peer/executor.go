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

package peer

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

// Executor runs a command forwarded by the coordinator and returns its result.
type Executor interface {
	Execute(ctx context.Context, originator, payload string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, originator, payload string) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, originator, payload string) (string, error) {
	return f(ctx, originator, payload)
}

// Echo returns the payload unchanged.
var Echo Executor = ExecutorFunc(func(_ context.Context, _, payload string) (string, error) {
	return payload, nil
})

// SystemInfo reports the host this peer runs on. The payload is ignored.
var SystemInfo Executor = ExecutorFunc(func(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("host=%s os=%s arch=%s cpus=%d", host, runtime.GOOS, runtime.GOARCH, runtime.NumCPU()), nil
})

// ExecutorByName maps a CLI name to a built-in executor.
func ExecutorByName(name string) (Executor, error) {
	switch name {
	case "echo":
		return Echo, nil
	case "sysinfo":
		return SystemInfo, nil
	}
	return nil, fmt.Errorf("unknown executor %q (want echo or sysinfo)", name)
}
