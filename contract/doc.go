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

// Package contract loads and indexes the API contract artifact that drives
// an Archimedes service.
//
// An artifact is a checksum-sealed document (JSON or YAML) enumerating the
// service's operations and the JSON schemas their bodies must satisfy:
//
//	artifact, err := contract.Load("contract.json")
//	resolver, err := contract.NewResolver(artifact)
//
//	res, err := resolver.Resolve("GET", "/users/42")
//	// res.Operation.ID == "getUser", res.Params["userId"] == "42"
//
// Artifacts can be read from a local file ([Load]), from memory
// ([LoadBytes]), or from a remote registry ([LoadRemote], with exponential
// retry on transient failures). Loading verifies the embedded checksum over
// the canonical serialization of operations and schemas; a service without
// a valid artifact cannot start, so every loader failure is terminal.
package contract
