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
	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/pipeline"
)

// Inject resolves a shared dependency of type T from the container attached
// to the request. A missing container or unregistered type is a custom-kind
// failure (HTTP 500): dependencies are wired at startup, so absence is a
// server bug, not a client error.
//
//	store, err := binding.Inject[*UserStore](view)
func Inject[T any](view *pipeline.RequestView) (T, error) {
	var zero T
	c := view.Container()
	if c == nil {
		return zero, wrapError(SourceOther, KindCustom, "", ErrNoContainer)
	}

	value, err := container.Resolve[T](c)
	if err != nil {
		return zero, wrapError(SourceOther, KindCustom, "", err)
	}

	return value, nil
}
