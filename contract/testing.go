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

package contract

import (
	"encoding/json"
	"fmt"
	"time"
)

// TestArtifact builds a sealed in-memory artifact for tests. It panics on
// invalid input so test setup stays terse; production code goes through the
// loaders.
//
//	a := contract.TestArtifact("user-service",
//	    contract.Operation{ID: "getUser", Method: "GET", Path: "/users/{userId}"},
//	)
func TestArtifact(service string, ops ...Operation) *Artifact {
	return TestArtifactWithSchemas(service, nil, ops...)
}

// TestArtifactWithSchemas is TestArtifact with a schema catalog. Schema
// values may be any JSON-marshalable document.
func TestArtifactWithSchemas(service string, schemas map[string]any, ops ...Operation) *Artifact {
	a := &Artifact{
		Service:    service,
		Version:    "0.0.0-test",
		Format:     "archimedes/v1",
		Metadata:   Metadata{CreatedAt: time.Unix(0, 0).UTC()},
		Operations: ops,
	}

	if len(schemas) > 0 {
		a.Schemas = make(map[string]json.RawMessage, len(schemas))
		for name, doc := range schemas {
			raw, err := json.Marshal(doc)
			if err != nil {
				panic(fmt.Sprintf("contract.TestArtifactWithSchemas: schema %q: %v", name, err))
			}
			a.Schemas[name] = raw
		}
	}

	if err := a.Seal(); err != nil {
		panic(fmt.Sprintf("contract.TestArtifactWithSchemas: seal: %v", err))
	}
	if err := a.finalize(); err != nil {
		panic(fmt.Sprintf("contract.TestArtifactWithSchemas: %v", err))
	}

	return a
}
