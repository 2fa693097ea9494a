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

package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
)

// schemaBaseURL roots the in-memory schema resources. A $ref of the bare
// form "Other" inside a schema resolves against this base to the artifact
// schema named Other.
const schemaBaseURL = "archimedes:///schemas/"

// defaultMaxErrors caps the failures reported per payload.
const defaultMaxErrors = 32

// SchemaValidator validates payloads against the schemas of one contract
// artifact. All schemas are compiled at construction; validation is
// read-only and safe for concurrent use.
type SchemaValidator struct {
	schemas   map[string]*jsonschema.Schema
	maxErrors int
}

// SchemaOption configures a [SchemaValidator].
type SchemaOption func(*SchemaValidator)

// WithMaxErrors caps the number of failures reported per payload.
// Zero means no cap.
func WithMaxErrors(n int) SchemaOption {
	return func(v *SchemaValidator) { v.maxErrors = n }
}

// NewSchemaValidator compiles every schema in the artifact.
//
// Construction fails when a schema uses a construct outside the
// supported set or does not compile; a contract whose schemas cannot be
// fully honored must not serve traffic.
func NewSchemaValidator(art *contract.Artifact, opts ...SchemaOption) (*SchemaValidator, error) {
	v := &SchemaValidator{
		schemas:   make(map[string]*jsonschema.Schema, len(art.Schemas)),
		maxErrors: defaultMaxErrors,
	}
	for _, opt := range opts {
		opt(v)
	}

	docs := make(map[string]any, len(art.Schemas))
	for name, raw := range art.Schemas {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(errors.KindArtifactLoad, err, "schema %q: invalid JSON", name)
		}
		if err := checkSupportedConstructs(doc, name, "$"); err != nil {
			return nil, err
		}
		docs[name] = doc
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	compiler.AssertContent()

	for name, doc := range docs {
		if err := compiler.AddResource(schemaBaseURL+name, doc); err != nil {
			return nil, errors.Wrapf(errors.KindArtifactLoad, err, "schema %q: register", name)
		}
	}
	for name := range docs {
		schema, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, errors.Wrapf(errors.KindArtifactLoad, err, "schema %q: compile", name)
		}
		v.schemas[name] = schema
	}

	return v, nil
}

// Result is the outcome of validating one payload.
type Result struct {
	Valid     bool
	Errors    []FieldError
	Truncated bool
}

// validResult is shared by all passing validations.
var validResult = &Result{Valid: true}

// Err returns nil for valid results and an [*Error] otherwise.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}

	return &Error{Fields: r.Errors, Truncated: r.Truncated}
}

// Reason returns the code of the first failure, or "".
func (r *Result) Reason() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}

	return r.Errors[0].Code
}

// ValidateRequest validates a request body against the operation's
// declared request schema. Operations without a request schema accept
// any body.
//
// An empty body where a schema is declared is a validation failure, not
// a parse error.
func (v *SchemaValidator) ValidateRequest(op *contract.Operation, body []byte) *Result {
	if op == nil || op.RequestSchema == "" {
		return validResult
	}

	return v.validate(op.RequestSchema, body)
}

// ValidateResponse validates a response body against the schema the
// operation declares for the given status code. Statuses without a
// declared schema pass.
func (v *SchemaValidator) ValidateResponse(op *contract.Operation, status int, body []byte) *Result {
	if op == nil {
		return validResult
	}
	name, ok := op.ResponseSchemas[status]
	if !ok {
		return validResult
	}

	return v.validate(name, body)
}

// HasRequestSchema reports whether the operation declares a request
// schema.
func (v *SchemaValidator) HasRequestSchema(op *contract.Operation) bool {
	return op != nil && op.RequestSchema != ""
}

// validate runs one schema against one payload.
func (v *SchemaValidator) validate(name string, body []byte) *Result {
	schema, ok := v.schemas[name]
	if !ok {
		// The contract loader verifies references; reaching this means a
		// validator built from a different artifact generation.
		return &Result{Errors: []FieldError{{
			Code:    "schema.unknown",
			Message: fmt.Sprintf("no compiled schema %q", name),
		}}}
	}

	if len(body) == 0 {
		return &Result{Errors: []FieldError{{
			Code:    "body.missing",
			Message: fmt.Sprintf("body required by schema %q is empty", name),
		}}}
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return &Result{Errors: []FieldError{{
			Code:    "body.malformed",
			Message: "body is not valid JSON: " + err.Error(),
		}}}
	}

	if err := schema.Validate(data); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return &Result{Errors: []FieldError{{
				Code:    "schema.error",
				Message: err.Error(),
			}}}
		}

		var agg Error
		v.collect(verr, &agg)
		agg.Sort()

		return &Result{Errors: agg.Fields, Truncated: agg.Truncated}
	}

	return validResult
}

// kindPrinter renders error-kind messages in English.
var kindPrinter = message.NewPrinter(language.English)

// collect flattens the structured ValidationError tree into FieldError
// values with stable codes derived from the failing keyword.
func (v *SchemaValidator) collect(verr *jsonschema.ValidationError, out *Error) {
	if verr == nil {
		return
	}

	path := strings.TrimPrefix(strings.Join(verr.InstanceLocation, "."), ".")

	keyword := strings.Join(verr.ErrorKind.KeywordPath(), ".")
	if keyword == "" {
		keyword = "invalid"
	}

	if len(verr.Causes) == 0 {
		out.Add(path, "schema."+keyword, verr.ErrorKind.LocalizedString(kindPrinter), map[string]any{
			"keyword":    keyword,
			"schema_url": verr.SchemaURL,
		})
		if v.maxErrors > 0 && len(out.Fields) >= v.maxErrors {
			out.Truncated = true

			return
		}
	}

	for _, cause := range verr.Causes {
		if v.maxErrors > 0 && len(out.Fields) >= v.maxErrors {
			out.Truncated = true

			return
		}
		v.collect(cause, out)
	}
}
