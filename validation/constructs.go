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
	"fmt"
	"sort"

	"archimedes.dev/archimedes/errors"
)

// The supported construct set. Contracts are authored against this list;
// anything outside it is rejected at load time rather than silently
// ignored, so a schema never passes payloads its author meant to
// constrain.
var (
	// Keywords whose value is a single subschema.
	subschemaKeywords = map[string]bool{
		"items":                true,
		"additionalProperties": true, // boolean or schema
		"not":                  true,
	}

	// Keywords whose value is a list of subschemas.
	schemaListKeywords = map[string]bool{
		"oneOf": true,
		"anyOf": true,
		"allOf": true,
	}

	// Keywords whose value maps names to subschemas.
	schemaMapKeywords = map[string]bool{
		"properties":  true,
		"$defs":       true,
		"definitions": true,
	}

	// Keywords with scalar or list values that need no recursion.
	scalarKeywords = map[string]bool{
		"$schema":          true,
		"$id":              true,
		"$ref":             true,
		"$comment":         true,
		"type":             true,
		"required":         true,
		"enum":             true,
		"const":            true,
		"format":           true,
		"title":            true,
		"description":      true,
		"default":          true,
		"examples":         true,
		"deprecated":       true,
		"minimum":          true,
		"maximum":          true,
		"exclusiveMinimum": true,
		"exclusiveMaximum": true,
		"multipleOf":       true,
		"minLength":        true,
		"maxLength":        true,
		"pattern":          true,
		"minItems":         true,
		"maxItems":         true,
		"uniqueItems":      true,
		"minProperties":    true,
		"maxProperties":    true,
	}
)

// checkSupportedConstructs walks a schema document and rejects keywords
// outside the supported set. path is a JSON-path-like location for error
// messages, starting at "$".
func checkSupportedConstructs(doc any, schemaName, path string) error {
	switch node := doc.(type) {
	case bool:
		// Boolean schemas (true/false) are valid everywhere.
		return nil

	case map[string]any:
		// Deterministic walk order for stable error messages.
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := node[key]
			keyPath := path + "." + key

			switch {
			case scalarKeywords[key]:
				// No recursion needed.

			case subschemaKeywords[key]:
				if err := checkSupportedConstructs(value, schemaName, keyPath); err != nil {
					return err
				}

			case schemaListKeywords[key]:
				list, ok := value.([]any)
				if !ok {
					return errors.Newf(errors.KindArtifactLoad,
						"schema %q: %s must be an array", schemaName, keyPath)
				}
				for i, sub := range list {
					if err := checkSupportedConstructs(sub, schemaName, fmt.Sprintf("%s[%d]", keyPath, i)); err != nil {
						return err
					}
				}

			case schemaMapKeywords[key]:
				m, ok := value.(map[string]any)
				if !ok {
					return errors.Newf(errors.KindArtifactLoad,
						"schema %q: %s must be an object", schemaName, keyPath)
				}
				names := make([]string, 0, len(m))
				for name := range m {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					if err := checkSupportedConstructs(m[name], schemaName, keyPath+"."+name); err != nil {
						return err
					}
				}

			default:
				return errors.Newf(errors.KindArtifactLoad,
					"schema %q: unsupported construct %q at %s", schemaName, key, path)
			}
		}

		return nil

	default:
		return errors.Newf(errors.KindArtifactLoad,
			"schema %q: %s must be an object or boolean", schemaName, path)
	}
}
