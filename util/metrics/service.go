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

// Package metrics provides a metric logging wrappers for Prometheus server.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/algorand/go-deadlock"
)

var (
	// ErrMetricServiceAlreadyRunning Generated when we call Start and the metric service is already running
	ErrMetricServiceAlreadyRunning = errors.New("MetricService is already running")
	// ErrMetricServiceNotRunning is not currently running
	ErrMetricServiceNotRunning = errors.New("MetricService not running")
)

const shutdownGracePeriod = 5 * time.Second

// ServiceConfig would contain all the information we need in order to create a listening server endpoint.
type ServiceConfig struct {
	ListenAddress string
	// Handler serves every request; nil serves the default registry.
	Handler http.Handler
}

// MetricService represent a single running HTTP endpoint exporting metrics and admin routes
type MetricService struct {
	config    ServiceConfig
	runningMu deadlock.Mutex
	running   bool
	server    *http.Server
	addr      net.Addr
	done      chan error
}

// MakeMetricService creates a new metrics server at the given endpoint.
func MakeMetricService(config *ServiceConfig) *MetricService {
	server := &MetricService{
		config: *config,
	}
	if server.config.Handler == nil {
		server.config.Handler = DefaultRegistry().Handler()
	}
	return server
}

// Start binds the listen address and serves in the background until Shutdown or ctx is done.
func (server *MetricService) Start(ctx context.Context) error {
	server.runningMu.Lock()
	defer server.runningMu.Unlock()
	if server.running {
		return ErrMetricServiceAlreadyRunning
	}

	ln, err := net.Listen("tcp", server.config.ListenAddress)
	if err != nil {
		return err
	}
	server.addr = ln.Addr()
	server.server = &http.Server{
		Handler:           server.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server.done = make(chan error, 1)
	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}(server.server, server.done)
	server.running = true
	return nil
}

// Addr returns the bound address while the service is running.
func (server *MetricService) Addr() net.Addr {
	server.runningMu.Lock()
	defer server.runningMu.Unlock()
	return server.addr
}

// Shutdown the running server
func (server *MetricService) Shutdown() error {
	server.runningMu.Lock()
	defer server.runningMu.Unlock()
	if !server.running {
		return ErrMetricServiceNotRunning
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	err := server.server.Shutdown(ctx)
	if serveErr := <-server.done; err == nil {
		err = serveErr
	}
	server.running = false
	server.server = nil
	server.addr = nil
	return err
}
