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
	"fmt"
	"strings"
	"time"
)

// EnumConverter builds a converter that accepts only the listed values,
// case-insensitively, for any string-based type:
//
//	type Status string
//	binding.WithConverter(binding.EnumConverter[Status]("active", "pending", "disabled"))
func EnumConverter[T ~string](allowed ...T) func(string) (T, error) {
	byLower := make(map[string]T, len(allowed))
	names := make([]string, 0, len(allowed))
	for _, v := range allowed {
		byLower[strings.ToLower(string(v))] = v
		names = append(names, string(v))
	}

	return func(raw string) (T, error) {
		if v, ok := byLower[strings.ToLower(strings.TrimSpace(raw))]; ok {
			return v, nil
		}
		var zero T

		return zero, fmt.Errorf("invalid value %q, must be one of: %s",
			raw, strings.Join(names, ", "))
	}
}

// DurationConverter builds a time.Duration converter that resolves named
// aliases before falling back to time.ParseDuration:
//
//	binding.WithConverter(binding.DurationConverter(map[string]time.Duration{
//	    "short": 5 * time.Second,
//	    "long":  5 * time.Minute,
//	}))
func DurationConverter(aliases map[string]time.Duration) func(string) (time.Duration, error) {
	byLower := make(map[string]time.Duration, len(aliases))
	for name, d := range aliases {
		byLower[strings.ToLower(name)] = d
	}

	return func(raw string) (time.Duration, error) {
		raw = strings.TrimSpace(raw)
		if d, ok := byLower[strings.ToLower(raw)]; ok {
			return d, nil
		}

		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}

		return d, nil
	}
}
