// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package limitlistener provides a net.Listener that caps the number of
// simultaneously open connections.
package limitlistener

import (
	"net"
	"sync"

	"github.com/algorand/go-relay/logging"
)

// RejectingLimitListener returns a Listener that accepts at most n simultaneous
// connections from the provided Listener. Connections that exceed the
// limit are closed immediately after they are accepted instead of being queued.
func RejectingLimitListener(l net.Listener, n uint64, log logging.Logger) net.Listener {
	return &rejectingLimitListener{
		Listener: l,
		sem:      make(chan struct{}, n),
		done:     make(chan struct{}),
		log:      log,
	}
}

type rejectingLimitListener struct {
	net.Listener
	sem       chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	log       logging.Logger
}

func (l *rejectingLimitListener) release() {
	<-l.sem
}

// Accept blocks until a connection within the limit is available.
func (l *rejectingLimitListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		select {
		case <-l.done:
			c.Close()
			return nil, net.ErrClosed
		case l.sem <- struct{}{}:
			return &rejectingLimitListenerConn{Conn: c, release: l.release}, nil
		default:
			if l.log != nil {
				l.log.Debugf("rejected incoming connection from %v, limit %d reached", c.RemoteAddr(), cap(l.sem))
			}
			c.Close()
		}
	}
}

func (l *rejectingLimitListener) Close() error {
	err := l.Listener.Close()
	l.closeOnce.Do(func() { close(l.done) })
	return err
}

type rejectingLimitListenerConn struct {
	net.Conn
	releaseOnce sync.Once
	release     func()
}

func (l *rejectingLimitListenerConn) Close() error {
	err := l.Conn.Close()
	l.releaseOnce.Do(l.release)
	return err
}
