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

// Package metrics exports the framework's request measurements through the
// OpenTelemetry metric SDK.
//
// A [Recorder] owns the instrument set the request pipeline feeds: request
// counts and durations by operation, request and response body sizes, the
// in-flight gauge, validation failures by direction, and authorization
// decisions by result. It satisfies the pipeline's Recorder interface, so
// wiring is one option:
//
//	rec, err := metrics.New(
//	    metrics.WithServiceName("orders"),
//	    metrics.WithPrometheus(":9090", "/metrics"),
//	)
//	if err != nil {
//	    return err
//	}
//	p, err := pipeline.New(resolver, pipeline.WithRecorder(rec))
//
// Three exporters are supported: Prometheus (pull, with a dedicated scrape
// listener), OTLP over HTTP (push), and stdout (development). By default the
// meter provider is instance-scoped; nothing touches the process-global
// OpenTelemetry state unless [WithGlobalMeterProvider] asks for it, so
// several recorders can coexist in one binary.
//
// Beyond the built-in instruments, applications can record their own
// counters, histograms, and gauges by name through [Recorder.AddCounter],
// [Recorder.RecordHistogram], and [Recorder.SetGauge]. Names are validated
// and capped to keep a misbehaving caller from creating unbounded series.
package metrics
