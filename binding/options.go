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

package binding

import (
	"reflect"
	"time"
)

// Extraction limits. They guard against hostile payloads; raise them per call
// when a handler genuinely needs more.
const (
	// DefaultMaxBodyBytes caps the body size extractors will decode (1 MiB).
	DefaultMaxBodyBytes int64 = 1 << 20

	// DefaultMaxDepth caps struct and map nesting during tag-driven binding.
	DefaultMaxDepth = 16

	// DefaultMaxSliceLen caps the number of elements bound into one slice.
	DefaultMaxSliceLen = 10_000

	// DefaultMaxMapEntries caps the number of entries bound into one map.
	DefaultMaxMapEntries = 1_000
)

// Validator checks a decoded value after binding. A failing validator turns
// the extraction into a validation-kind failure (HTTP 422).
type Validator interface {
	Validate(v any) error
}

// ValidatorFunc adapts a plain function to [Validator]:
//
//	binding.WithValidator(binding.ValidatorFunc(validation.Struct))
type ValidatorFunc func(v any) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(v any) error { return f(v) }

// converterFunc converts one string value into a registered target type.
type converterFunc func(value string) (any, error)

type config struct {
	maxBody     int64
	maxDepth    int
	maxSliceLen int
	maxMapLen   int
	csvSlices   bool
	strictJSON  bool
	useNumber   bool
	timeLayouts []string
	validator   Validator
	converters  map[reflect.Type]converterFunc
}

// Option configures a single extraction call.
type Option func(*config)

// WithMaxBody overrides the body-size cap for this extraction. The request
// pipeline enforces its own cap when it snapshots the body; this option can
// only tighten, not recover bytes the pipeline already refused.
func WithMaxBody(n int64) Option {
	return func(c *config) {
		c.maxBody = n
	}
}

// WithMaxDepth overrides the struct/map nesting cap.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// WithMaxSliceLen overrides the per-field slice element cap. Zero disables
// the limit.
func WithMaxSliceLen(n int) Option {
	return func(c *config) {
		c.maxSliceLen = n
	}
}

// WithMaxMapEntries overrides the per-field map entry cap. Zero disables the
// limit.
func WithMaxMapEntries(n int) Option {
	return func(c *config) {
		c.maxMapLen = n
	}
}

// WithCSVSlices parses a single value as a comma-separated list when binding
// slice fields, in addition to repeated keys.
func WithCSVSlices() Option {
	return func(c *config) {
		c.csvSlices = true
	}
}

// WithStrictJSON rejects JSON bodies that carry fields the target struct does
// not declare.
func WithStrictJSON() Option {
	return func(c *config) {
		c.strictJSON = true
	}
}

// WithJSONNumber decodes JSON numbers as json.Number instead of float64,
// preserving precision for large integers.
func WithJSONNumber() Option {
	return func(c *config) {
		c.useNumber = true
	}
}

// WithTimeLayouts appends custom layouts tried when parsing time.Time fields,
// after the built-in RFC 3339 and date forms.
func WithTimeLayouts(layouts ...string) Option {
	return func(c *config) {
		c.timeLayouts = append(c.timeLayouts, layouts...)
	}
}

// WithValidator runs v over the decoded value; a failure maps to HTTP 422.
func WithValidator(v Validator) Option {
	return func(c *config) {
		c.validator = v
	}
}

// WithConverter registers a parser for a custom field type, checked before
// the built-in conversions. It applies to both T and *T fields:
//
//	binding.WithConverter(func(s string) (uuid.UUID, error) {
//	    return uuid.Parse(s)
//	})
func WithConverter[T any](fn func(value string) (T, error)) Option {
	return func(c *config) {
		if c.converters == nil {
			c.converters = make(map[reflect.Type]converterFunc)
		}
		c.converters[reflect.TypeFor[T]()] = func(value string) (any, error) {
			return fn(value)
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		maxBody:     DefaultMaxBodyBytes,
		maxDepth:    DefaultMaxDepth,
		maxSliceLen: DefaultMaxSliceLen,
		maxMapLen:   DefaultMaxMapEntries,
		timeLayouts: defaultTimeLayouts,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// defaultTimeLayouts are tried in order when parsing time.Time values.
var defaultTimeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}
