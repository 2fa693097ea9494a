// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"encoding/json"
	"net/http"
)

// Sidecar endpoint paths, always mounted on the main listener.
const (
	HealthPath  = "/_archimedes/health"
	ReadyPath   = "/_archimedes/ready"
	VersionPath = "/_archimedes/version"
	MetricsPath = "/_archimedes/metrics"
)

// healthResponse is the /_archimedes/health and /_archimedes/ready body.
type healthResponse struct {
	Status string          `json:"status"`
	Gates  map[string]bool `json:"gates,omitempty"`
}

// versionResponse is the /_archimedes/version body.
type versionResponse struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	Archimedes string `json:"archimedes"`
	Contract   string `json:"contract,omitempty"`
}

// mountSidecar attaches the operational endpoints. They sit in front of
// the pipeline, carry no authorization, and never touch the contract.
func (a *App) mountSidecar(mux *http.ServeMux) {
	mux.HandleFunc(HealthPath, a.handleHealth)
	mux.HandleFunc(ReadyPath, a.handleReady)
	mux.HandleFunc(VersionPath, a.handleVersion)

	// The scrape endpoint is proxied onto the main listener when the
	// recorder has no dedicated listener of its own.
	if a.metrics != nil {
		if h, err := a.metrics.Handler(); err == nil {
			mux.Handle(MetricsPath, h)
		}
	}
}

// handleHealth reports liveness: the process is up and serving.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSidecarJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReady reports readiness: startup completed and every registered
// gate passes. Not ready returns 503 with the per-gate status so operators
// can see which dependency is holding the service back.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		writeSidecarJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "starting"})

		return
	}

	ok, gates := a.readiness.Check()
	if !ok {
		writeSidecarJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not_ready", Gates: gates})

		return
	}

	writeSidecarJSON(w, http.StatusOK, healthResponse{Status: "ready", Gates: gates})
}

// handleVersion reports the service and framework versions plus the
// contract version being served.
func (a *App) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeSidecarJSON(w, http.StatusOK, versionResponse{
		Service:    a.cfg.ServiceName,
		Version:    a.cfg.ServiceVersion,
		Archimedes: a.version,
		Contract:   a.artifact.Version,
	})
}

func writeSidecarJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
