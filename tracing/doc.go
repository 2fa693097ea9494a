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

// Package tracing owns the OpenTelemetry trace pipeline for an Archimedes
// service: exporter selection, sampling, resource attributes, and W3C
// Trace Context propagation.
//
// A Tracer is handed to the request pipeline, which opens one server span
// per request named after the resolved operation id. Handlers can start
// child spans from the request context in the usual OpenTelemetry way.
//
//	tr, err := tracing.New(
//		tracing.WithServiceName("orders"),
//		tracing.WithOTLPGRPC("collector:4317"),
//		tracing.WithSampleRate(0.25),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tr.Shutdown(context.Background())
//
// Without an exporter option the tracer is a no-op: spans cost nothing and
// export nowhere, so instrumented code needs no enabled/disabled branches.
package tracing
