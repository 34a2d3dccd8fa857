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
	"github.com/algorand/go-relay/util/metrics"
)

type serviceMetrics struct {
	sessions          *metrics.Gauge
	connections       *metrics.Counter
	commandsInFlight  *metrics.Gauge
	commandsTotal     *metrics.Counter
	commandTimeouts   *metrics.Counter
	messagesReceived  *metrics.TagCounter
	malformedFrames   *metrics.Counter
	rateLimited       *metrics.Counter
	broadcastFailures *metrics.Counter
}

// makeServiceMetrics registers the coordinator collectors with reg. A nil reg
// gets a private registry so independent services never collide.
func makeServiceMetrics(reg *metrics.Registry) *serviceMetrics {
	if reg == nil {
		reg = metrics.MakeRegistry()
	}
	return &serviceMetrics{
		sessions:          metrics.MakeGauge(reg, metrics.RelaySessions),
		connections:       metrics.MakeCounter(reg, metrics.RelayConnectionsTotal),
		commandsInFlight:  metrics.MakeGauge(reg, metrics.RelayCommandsInFlight),
		commandsTotal:     metrics.MakeCounter(reg, metrics.RelayCommandsTotal),
		commandTimeouts:   metrics.MakeCounter(reg, metrics.RelayCommandTimeoutsTotal),
		messagesReceived:  metrics.MakeTagCounter(reg, metrics.RelayMessagesReceivedTotal),
		malformedFrames:   metrics.MakeCounter(reg, metrics.RelayMalformedFramesTotal),
		rateLimited:       metrics.MakeCounter(reg, metrics.RelayRateLimitedTotal),
		broadcastFailures: metrics.MakeCounter(reg, metrics.RelayBroadcastFailuresTotal),
	}
}
