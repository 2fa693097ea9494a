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

// Package config defines the runtime configuration of an Archimedes
// service and its loading rules.
//
// Configuration is assembled in four layers with fixed precedence, later
// layers overriding earlier ones:
//
//  1. built-in defaults
//  2. a configuration file (YAML, TOML or JSON, chosen by extension)
//  3. environment variables with the ARCHIMEDES_ prefix
//  4. explicit option setters
//
// The precedence is independent of the order options are passed to
// [Load]. Every invalid value is rejected at load time; a service never
// starts with a configuration it cannot honor.
//
// Example:
//
//	cfg, err := config.Load(
//	    config.WithFile("archimedes.yaml"),
//	    config.WithServiceName("billing"),
//	)
//
// Environment variables map section and field names with underscores:
// ARCHIMEDES_PORT, ARCHIMEDES_AUTHZ_BUNDLE_PATH,
// ARCHIMEDES_CACHE_TTL, ARCHIMEDES_LOG_LEVEL.
package config
