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

package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *Response
		wantErr string
	}{
		{
			name: "minimal response passes",
			resp: &Response{Status: 204},
		},
		{
			name: "full response passes",
			resp: &Response{
				Status:       200,
				Body:         []byte(`{"ok":true}`),
				ContentType:  "application/json",
				HeaderNames:  []string{"X-Custom", "X-Custom"},
				HeaderValues: []string{"a", "b"},
			},
		},
		{
			name:    "nil response",
			resp:    nil,
			wantErr: "no response",
		},
		{
			name:    "status below range",
			resp:    &Response{Status: 99},
			wantErr: "status 99",
		},
		{
			name:    "status above range",
			resp:    &Response{Status: 600},
			wantErr: "status 600",
		},
		{
			name:    "zero status",
			resp:    &Response{},
			wantErr: "status 0",
		},
		{
			name: "mismatched header slices",
			resp: &Response{
				Status:      200,
				HeaderNames: []string{"X-One", "X-Two"},
				HeaderValues: []string{
					"only",
				},
			},
			wantErr: "2 header names but 1 values",
		},
		{
			name: "empty header name",
			resp: &Response{
				Status:       200,
				HeaderNames:  []string{"X-One", ""},
				HeaderValues: []string{"a", "b"},
			},
			wantErr: "empty header name at index 1",
		},
		{
			name: "invalid utf-8 content type",
			resp: &Response{
				Status:      200,
				ContentType: "text/\xff",
			},
			wantErr: "not valid UTF-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.resp.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
