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

package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LogEntry is a parsed JSON log line used in tests.
type LogEntry struct {
	Level   string
	Message string
	Attrs   map[string]any
}

// NewTestLogger returns a JSON logger writing into the returned buffer.
// Tests parse the buffer with [ParseJSONLogEntries].
func NewTestLogger(opts ...Option) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	all := append([]Option{
		WithJSONHandler(),
		WithOutput(buf),
		WithLevel(LevelDebug),
	}, opts...)

	return MustNew(all...), buf
}

// ParseJSONLogEntries parses each line of buf as a JSON log record.
func ParseJSONLogEntries(buf *bytes.Buffer) ([]LogEntry, error) {
	var entries []LogEntry

	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("parse log line %q: %w", line, err)
		}

		entry := LogEntry{Attrs: make(map[string]any)}
		for k, v := range raw {
			switch k {
			case "level":
				entry.Level, _ = v.(string)
			case "msg":
				entry.Message, _ = v.(string)
			case "time":
				// Timestamps are not asserted in tests.
			default:
				entry.Attrs[k] = v
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// ContainsLog reports whether any entry has the given message.
func ContainsLog(entries []LogEntry, msg string) bool {
	for _, e := range entries {
		if e.Message == msg {
			return true
		}
	}

	return false
}

// FindLog returns the first entry with the given message, or nil.
func FindLog(entries []LogEntry, msg string) *LogEntry {
	for i := range entries {
		if entries[i].Message == msg {
			return &entries[i]
		}
	}

	return nil
}
