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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/algorand/go-relay/protocol"
	"github.com/algorand/go-relay/util/metrics"
)

// HealthStatus is returned by GET /health.
type HealthStatus struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Commands int    `json:"commands"`
}

// AdminRouter returns the read-only HTTP API of s. reg is served on /metrics when non-nil.
func (s *Service) AdminRouter(reg *metrics.Registry) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.serveHealth).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions", s.serveSessions).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{identity}", s.serveSession).Methods(http.MethodGet)
	router.HandleFunc("/v1/commands", s.serveCommands).Methods(http.MethodGet)
	if reg != nil {
		router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	}
	return router
}

func (s *Service) serveHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:   "ok",
		Sessions: s.registry.Len(),
		Commands: s.dispatcher.InFlight(),
	}
	code := http.StatusOK
	if s.isStopped() {
		status.Status = "stopping"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Service) serveSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Service) serveSession(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	session, ok := s.registry.LookupByIdentity(identity)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrUnknownTarget.Error()})
		return
	}
	contacts := session.Contacts
	if contacts == nil {
		contacts = []Contact{}
	}
	writeJSON(w, http.StatusOK, struct {
		Identity string    `json:"identity"`
		Address  string    `json:"address"`
		Contacts []Contact `json:"contacts"`
	}{session.Identity, session.Address, contacts})
}

func (s *Service) serveCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(protocol.EncodeJSON(v))
}
