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

// Optional converts an extraction failure into absence. It wraps a call
// directly:
//
//	limit, ok := binding.Optional(binding.Header[int](view, "X-Limit"))
//	if !ok {
//	    limit = defaultLimit
//	}
func Optional[T any](value T, err error) (T, bool) {
	if err != nil {
		var zero T

		return zero, false
	}

	return value, true
}

// Result carries an extraction outcome for handlers that inspect failures
// themselves instead of aborting.
type Result[T any] struct {
	Value T
	Err   *ExtractionError
}

// Ok reports whether the extraction succeeded.
func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Try captures an extraction outcome in a [Result]:
//
//	res := binding.Try(binding.JSON[Patch](view))
//	if !res.Ok() {
//	    // res.Err.Kind, res.Err.Field
//	}
func Try[T any](value T, err error) Result[T] {
	if err != nil {
		return Result[T]{Err: AsExtractionError(err)}
	}

	return Result[T]{Value: value}
}
