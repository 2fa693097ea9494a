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

// Package app assembles an Archimedes service: it loads the contract
// artifact, wires the request pipeline with validation, authorization, and
// telemetry, and runs the HTTP server with lifecycle hooks and graceful
// shutdown.
//
//	a, err := app.New(
//		app.WithServiceName("orders"),
//		app.WithContractPath("contract.json"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	a.MustRegister("getUser", handler.Path(getUser))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//
//	if err := a.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The context passed to Run controls the server lifecycle: cancellation
// closes the listener, drains in-flight requests up to the shutdown
// timeout, and runs the shutdown hooks. Signal handling belongs to the
// caller via signal.NotifyContext.
//
// Reserved sidecar paths are always mounted on the main listener:
// /_archimedes/health, /_archimedes/ready, /_archimedes/version, and
// /_archimedes/metrics when a Prometheus scrape handler is available.
// Contract operations under /_archimedes/ are shadowed by them.
package app
