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

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/protocol"
)

// Notifier delivers informational messages to registered peers.
type Notifier struct {
	log      logging.Logger
	registry *Registry
	metrics  *serviceMetrics
}

// MakeNotifier creates a Notifier over registry.
func MakeNotifier(registry *Registry, log logging.Logger, m *serviceMetrics) *Notifier {
	if m == nil {
		m = makeServiceMetrics(nil)
	}
	return &Notifier{log: log, registry: registry, metrics: m}
}

// Notify sends message as an OK response to every session except excluding.
// Delivery is best effort: a failed send is logged and the rest still go out.
// It returns the number of peers reached.
func (n *Notifier) Notify(message string, excluding string) int {
	resp := protocol.OK(message)
	delivered := 0
	for _, r := range n.registry.recipients(excluding) {
		if err := r.conn.Send(resp); err != nil {
			n.metrics.broadcastFailures.Inc()
			n.log.With("peer", r.identity).Infof("notification not delivered: %v", err)
			continue
		}
		delivered++
	}
	return delivered
}

func connectedText(identity, address string) string {
	return fmt.Sprintf("Hey, see that %s has connected from %s. Type 'add %s' to add them to your list.", identity, address, identity)
}

func disconnectedText(identity string) string {
	return identity + " has disconnected. If you had them in your list, they are now removed."
}
