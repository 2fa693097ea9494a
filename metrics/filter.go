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

package metrics

import (
	"regexp"
	"strings"
)

// operationFilter drops selected operations from request measurements.
// Exact ids, id prefixes, and regex patterns are supported.
type operationFilter struct {
	ids      map[string]bool
	prefixes []string
	patterns []*regexp.Regexp
}

func newOperationFilter() *operationFilter {
	return &operationFilter{
		ids: make(map[string]bool),
	}
}

func (f *operationFilter) addIDs(ids ...string) {
	for _, id := range ids {
		f.ids[id] = true
	}
}

func (f *operationFilter) addPrefixes(prefixes ...string) {
	f.prefixes = append(f.prefixes, prefixes...)
}

func (f *operationFilter) addPatterns(patterns ...*regexp.Regexp) {
	f.patterns = append(f.patterns, patterns...)
}

func (f *operationFilter) shouldExclude(operation string) bool {
	if f == nil {
		return false
	}

	if f.ids[operation] {
		return true
	}

	for _, prefix := range f.prefixes {
		if strings.HasPrefix(operation, prefix) {
			return true
		}
	}

	for _, pattern := range f.patterns {
		if pattern.MatchString(operation) {
			return true
		}
	}

	return false
}

// ShouldExcludeOperation reports whether request measurements for the given
// operation id are dropped.
func (r *Recorder) ShouldExcludeOperation(operation string) bool {
	return r.filter.shouldExclude(operation)
}
