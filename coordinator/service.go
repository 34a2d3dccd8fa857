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

// Package coordinator implements the relay's central service: the session
// registry, the contact lists, command fan-out and result aggregation.
package coordinator

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	"golang.org/x/time/rate"

	"github.com/algorand/go-relay/config"
	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
	"github.com/algorand/go-relay/util/metrics"
	"github.com/algorand/go-relay/util/timers"
)

const defaultWriteTimeout = 10 * time.Second

// Config holds the settings of a Service.
type Config struct {
	CommandTimeout       time.Duration
	MaxFrameSize         uint64
	PeerMessageRateLimit float64
	PeerMessageRateBurst int
	WriteTimeout         time.Duration

	// Clock drives command timeouts; nil uses the monotonic clock.
	Clock timers.Clock
	// Metrics receives the coordinator collectors; nil uses a private registry.
	Metrics *metrics.Registry
}

// ConfigFromLocal maps the on-disk configuration to a service Config.
func ConfigFromLocal(cfg config.Local) Config {
	return Config{
		CommandTimeout:       cfg.CommandTimeout,
		MaxFrameSize:         cfg.MaxFrameSize,
		PeerMessageRateLimit: cfg.PeerMessageRateLimit,
		PeerMessageRateBurst: cfg.PeerMessageRateBurst,
	}
}

// Service accepts peer connections and runs one handler per connection.
type Service struct {
	cfg Config
	log logging.Logger

	registry   *Registry
	dispatcher *Dispatcher
	notifier   *Notifier
	metrics    *serviceMetrics

	mu        deadlock.Mutex
	listeners map[net.Listener]struct{}
	conns     map[string]*peerConn
	stopped   bool

	handlers sync.WaitGroup
}

// MakeService creates a Service. Nothing is accepted until Serve or ServeConn is called.
func MakeService(cfg Config, log logging.Logger) *Service {
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	m := makeServiceMetrics(cfg.Metrics)
	registry := MakeRegistry()
	return &Service{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		dispatcher: MakeDispatcher(registry, cfg.Clock, cfg.CommandTimeout, log, m),
		notifier:   MakeNotifier(registry, log, m),
		metrics:    m,
		listeners:  make(map[net.Listener]struct{}),
		conns:      make(map[string]*peerConn),
	}
}

// Registry exposes the session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Dispatcher exposes the command dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Serve accepts connections from ln until Stop is called, which makes it return nil.
// Any other accept error is returned.
func (s *Service) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return ErrServiceStopped
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	s.log.Infof("accepting peers on %s", ln.Addr())
	var tempDelay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isStopped() {
				return nil
			}
			var te interface{ Temporary() bool }
			if errors.As(err, &te) && te.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.Warnf("accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		go s.ServeConn(c)
	}
}

// ServeConn runs the handler for c and returns when the connection is done.
func (s *Service) ServeConn(c net.Conn) error {
	pc := makePeerConn(c, s.cfg.WriteTimeout)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		c.Close()
		return ErrServiceStopped
	}
	s.conns[pc.id] = pc
	s.handlers.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, pc.id)
		s.mu.Unlock()
		s.handlers.Done()
	}()

	s.metrics.connections.Inc()
	h := &handler{
		svc:  s,
		conn: pc,
		log:  s.log.WithFields(logging.Fields{"conn": pc.id, "remote": pc.remote}),
	}
	if s.cfg.PeerMessageRateLimit > 0 {
		burst := s.cfg.PeerMessageRateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(s.cfg.PeerMessageRateLimit), burst)
	}
	h.log.Debug("connection accepted")
	h.run()
	return nil
}

// Stop closes the listeners, completes every in-flight command, closes every
// connection and waits for the handlers to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	conns := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	s.dispatcher.Stop()
	for _, pc := range conns {
		pc.Close()
	}
	s.handlers.Wait()
	s.log.Info("coordinator stopped")
}

func (s *Service) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
