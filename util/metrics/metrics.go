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

package metrics

// MetricName describes the name and description of a single metric
type MetricName struct {
	Name        string
	Description string
}

var (
	// RelaySessions Number of registered peer sessions
	RelaySessions = MetricName{Name: "relay_sessions", Description: "Number of registered peer sessions"}
	// RelayConnectionsTotal Total number of accepted peer connections
	RelayConnectionsTotal = MetricName{Name: "relay_connections_total", Description: "Total number of accepted peer connections"}
	// RelayCommandsInFlight Number of commands waiting for results
	RelayCommandsInFlight = MetricName{Name: "relay_commands_in_flight", Description: "Number of commands waiting for results"}
	// RelayCommandsTotal Total number of commands dispatched
	RelayCommandsTotal = MetricName{Name: "relay_commands_total", Description: "Total number of commands dispatched"}
	// RelayCommandTimeoutsTotal Total number of commands force-completed by timeout
	RelayCommandTimeoutsTotal = MetricName{Name: "relay_command_timeouts_total", Description: "Total number of commands force-completed by timeout"}
	// RelayMessagesReceivedTotal Total number of requests received, by request type
	RelayMessagesReceivedTotal = MetricName{Name: "relay_messages_received_total", Description: "Total number of requests received, by request type"}
	// RelayMalformedFramesTotal Total number of frames that failed to decode
	RelayMalformedFramesTotal = MetricName{Name: "relay_malformed_frames_total", Description: "Total number of frames that failed to decode"}
	// RelayRateLimitedTotal Total number of requests dropped by the per-connection rate limit
	RelayRateLimitedTotal = MetricName{Name: "relay_rate_limited_total", Description: "Total number of requests dropped by the per-connection rate limit"}
	// RelayBroadcastFailuresTotal Total number of notifications that could not be delivered
	RelayBroadcastFailuresTotal = MetricName{Name: "relay_broadcast_failures_total", Description: "Total number of notifications that could not be delivered"}
)
