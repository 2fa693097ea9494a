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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"archimedes.dev/archimedes/errors"
)

// ChecksumAlgorithm is the only supported artifact checksum algorithm.
const ChecksumAlgorithm = "sha256"

// Operation describes one contract operation: a named (method, path
// template) pair with its request/response schema references.
type Operation struct {
	// ID is the unique operation identifier, e.g. "getUser".
	ID string `json:"id"`

	// Method is the HTTP method, stored uppercase.
	Method string `json:"method"`

	// Path is the path template with {name} parameter segments.
	Path string `json:"path"`

	// Summary is the optional human-readable description.
	Summary string `json:"summary,omitempty"`

	// Deprecated marks operations that remain routable but should be
	// flagged in logs and documentation.
	Deprecated bool `json:"deprecated,omitempty"`

	// Security lists the operation's security requirement names.
	Security []string `json:"security,omitempty"`

	// RequestSchema references the schema the request body must satisfy;
	// empty when the operation takes no validated body.
	RequestSchema string `json:"request_schema,omitempty"`

	// ResponseSchemas references response body schemas keyed by status code.
	ResponseSchemas map[int]string `json:"response_schemas,omitempty"`

	// Tags are free-form grouping labels.
	Tags []string `json:"tags,omitempty"`
}

// Metadata carries artifact provenance.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
}

// Checksum seals the artifact's operations and schemas.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// Artifact is a loaded, verified contract document. Immutable after load;
// safe for concurrent use.
type Artifact struct {
	// Service is the logical service name the contract belongs to.
	Service string `json:"service"`

	// Version is the contract version string.
	Version string `json:"version"`

	// Format tags the document format revision.
	Format string `json:"format"`

	// Metadata carries provenance fields.
	Metadata Metadata `json:"metadata"`

	// Checksum seals Operations and Schemas.
	Checksum Checksum `json:"checksum"`

	// Operations is the ordered operation catalog.
	Operations []Operation `json:"operations"`

	// Schemas maps schema names to their JSON Schema documents.
	Schemas map[string]json.RawMessage `json:"schemas"`

	byID map[string]*Operation
}

// canonicalDocument is the checksum input shape: operations in artifact
// order and schemas under their sorted names, everything compacted.
type canonicalDocument struct {
	Operations []Operation                `json:"operations"`
	Schemas    map[string]json.RawMessage `json:"schemas"`
}

// CanonicalBytes returns the canonical serialization of the artifact's
// operations and schemas, the exact byte sequence the checksum covers.
// Methods are uppercased and schema documents compacted, so presentational
// differences between equal documents do not change the checksum.
func (a *Artifact) CanonicalBytes() ([]byte, error) {
	ops := make([]Operation, len(a.Operations))
	copy(ops, a.Operations)
	for i := range ops {
		ops[i].Method = strings.ToUpper(ops[i].Method)
	}

	schemas := make(map[string]json.RawMessage, len(a.Schemas))
	for name, doc := range a.Schemas {
		var buf bytes.Buffer
		if err := json.Compact(&buf, doc); err != nil {
			return nil, fmt.Errorf("schema %q: %w", name, err)
		}
		schemas[name] = json.RawMessage(buf.Bytes())
	}

	return json.Marshal(canonicalDocument{Operations: ops, Schemas: schemas})
}

// ComputeChecksum calculates the sha256 checksum of the artifact's canonical
// serialization. Authoring tools use it to seal artifacts; the loader uses
// it to verify them.
func (a *Artifact) ComputeChecksum() (Checksum, error) {
	canonical, err := a.CanonicalBytes()
	if err != nil {
		return Checksum{}, err
	}
	sum := sha256.Sum256(canonical)

	return Checksum{Algorithm: ChecksumAlgorithm, Value: hex.EncodeToString(sum[:])}, nil
}

// Seal recomputes and stores the artifact's checksum.
func (a *Artifact) Seal() error {
	sum, err := a.ComputeChecksum()
	if err != nil {
		return err
	}
	a.Checksum = sum

	return nil
}

// verify checks the embedded checksum against the canonical serialization.
func (a *Artifact) verify() error {
	if a.Checksum.Algorithm != ChecksumAlgorithm {
		return errors.Newf(errors.KindArtifactLoad,
			"unsupported checksum algorithm %q (want %s)", a.Checksum.Algorithm, ChecksumAlgorithm)
	}

	want, err := a.ComputeChecksum()
	if err != nil {
		return errors.Wrap(errors.KindArtifactLoad, err, "canonicalize artifact")
	}
	if !strings.EqualFold(want.Value, a.Checksum.Value) {
		return errors.Newf(errors.KindArtifactLoad,
			"checksum mismatch: artifact declares %s, canonical content hashes to %s",
			a.Checksum.Value, want.Value)
	}

	return nil
}

// finalize normalizes, validates, and indexes a parsed artifact.
func (a *Artifact) finalize() error {
	if a.Service == "" {
		return errors.New(errors.KindArtifactLoad, "artifact has no service name")
	}
	if len(a.Operations) == 0 {
		return errors.Newf(errors.KindArtifactLoad, "artifact %s declares no operations", a.Service)
	}

	a.byID = make(map[string]*Operation, len(a.Operations))
	seenRoute := make(map[string]string, len(a.Operations))

	for i := range a.Operations {
		op := &a.Operations[i]
		if op.ID == "" {
			return errors.Newf(errors.KindArtifactLoad, "operation %d has no id", i)
		}
		if op.Method == "" {
			return errors.Newf(errors.KindArtifactLoad, "operation %s has no method", op.ID)
		}
		op.Method = strings.ToUpper(op.Method)
		if !strings.HasPrefix(op.Path, "/") {
			return errors.Newf(errors.KindArtifactLoad, "operation %s path %q must start with /", op.ID, op.Path)
		}

		if _, dup := a.byID[op.ID]; dup {
			return errors.Newf(errors.KindArtifactLoad, "duplicate operation id %s", op.ID)
		}
		a.byID[op.ID] = op

		route := op.Method + " " + op.Path
		if prev, dup := seenRoute[route]; dup {
			return errors.Newf(errors.KindArtifactLoad,
				"operations %s and %s both claim %s", prev, op.ID, route)
		}
		seenRoute[route] = op.ID

		if op.RequestSchema != "" {
			if _, ok := a.Schemas[op.RequestSchema]; !ok {
				return errors.Newf(errors.KindArtifactLoad,
					"operation %s references unknown request schema %q", op.ID, op.RequestSchema)
			}
		}
		for status, ref := range op.ResponseSchemas {
			if _, ok := a.Schemas[ref]; !ok {
				return errors.Newf(errors.KindArtifactLoad,
					"operation %s references unknown response schema %q for status %d", op.ID, ref, status)
			}
		}
	}

	return a.verify()
}

// OperationByID returns the operation with the given id, or nil.
func (a *Artifact) OperationByID(id string) *Operation {
	return a.byID[id]
}

// Schema returns the raw schema document registered under name.
func (a *Artifact) Schema(name string) (json.RawMessage, bool) {
	doc, ok := a.Schemas[name]

	return doc, ok
}

// Marshal serializes the artifact back to its JSON document form. A parsed
// artifact round-trips through Marshal with its checksum intact.
func (a *Artifact) Marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}
