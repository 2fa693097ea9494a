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

// Package logging provides structured logging for Archimedes services,
// built on log/slog.
//
// Three output formats are supported: JSON for production log aggregation,
// key=value text, and a colored console format for development. Sensitive
// attribute keys (password, token, secret, api_key, authorization) are
// redacted in every format.
//
// # Basic Usage
//
//	logger := logging.MustNew(
//	    logging.WithServiceName("billing"),
//	    logging.WithJSONHandler(),
//	)
//	defer logger.Shutdown(context.Background())
//	logger.Info("contract loaded", "operations", 12)
//
// # Request-Scoped Logging
//
// The pipeline attaches a logger pre-populated with request_id, trace_id
// and operation_id to every request context. Handlers retrieve it with
// [FromContext]:
//
//	log := logging.FromContext(ctx)
//	log.Info("order created", "order_id", id)
//
// # Log Sampling
//
// Reduce volume in high-traffic scenarios:
//
//	logger := logging.MustNew(
//	    logging.WithJSONHandler(),
//	    logging.WithSampling(logging.SamplingConfig{
//	        Initial:    100,         // Log first 100 entries
//	        Thereafter: 100,         // Then log 1 in 100
//	        Tick:       time.Minute, // Reset every minute
//	    }),
//	)
//
// Entries at error level always bypass sampling.
//
// # Dynamic Log Levels
//
//	logger.SetLevel(logging.LevelDebug) // Enable debug logging
//	logger.SetLevel(logging.LevelWarn)  // Reduce to warnings only
//
// By default loggers are not registered as the process-global slog
// default; use [WithGlobalLogger] to opt in.
package logging
