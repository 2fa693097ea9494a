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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"

	"archimedes.dev/archimedes/errors"
)

// maxArtifactSize caps how much of a contract document the loaders will
// read. Contracts are authored documents, not user uploads; 16 MiB is far
// beyond any real catalog.
const maxArtifactSize = 16 << 20

// Load reads and verifies a contract artifact from a local file. The format
// is chosen by extension: .yaml/.yml parse as YAML, everything else as JSON.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.KindArtifactLoad, err, "read artifact %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseJSON(data)
	}
}

// LoadBytes parses and verifies an in-memory artifact document. YAML input
// is detected by its first non-space byte: JSON documents open with '{'.
func LoadBytes(data []byte) (*Artifact, error) {
	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if strings.HasPrefix(trimmed, "{") {
		return parseJSON(data)
	}

	return parseYAML(data)
}

// RemoteOption configures LoadRemote.
type RemoteOption func(*remoteConfig)

type remoteConfig struct {
	client     *http.Client
	maxElapsed time.Duration
}

// WithHTTPClient overrides the HTTP client used for registry fetches.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(rc *remoteConfig) { rc.client = c }
}

// WithRetryWindow bounds how long LoadRemote keeps retrying transient
// failures (default 30s).
func WithRetryWindow(d time.Duration) RemoteOption {
	return func(rc *remoteConfig) { rc.maxElapsed = d }
}

// LoadRemote fetches an artifact from a registry URL. Transport errors and
// retryable statuses (5xx, 429) back off exponentially until the retry
// window closes; other non-200 statuses fail immediately. The response
// format follows the Content-Type, defaulting to JSON.
func LoadRemote(ctx context.Context, url string, opts ...RemoteOption) (*Artifact, error) {
	rc := remoteConfig{
		client:     &http.Client{Timeout: 10 * time.Second},
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&rc)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = rc.maxElapsed

	var (
		body []byte
		yml  bool
	)
	fetch := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json, application/yaml")

		resp, err := rc.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("registry %s returned %s", url, resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("registry %s returned %s", url, resp.Status))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
		if err != nil {
			return fmt.Errorf("read registry response: %w", err)
		}
		ct := resp.Header.Get("Content-Type")
		yml = strings.Contains(ct, "yaml") || strings.Contains(ct, "yml")

		return nil
	}

	if err := backoff.Retry(fetch, backoff.WithContext(bo, ctx)); err != nil {
		return nil, errors.Wrapf(errors.KindArtifactLoad, err, "registry unreachable")
	}

	if yml {
		return parseYAML(body)
	}

	return parseJSON(body)
}

// parseJSON decodes, validates, and verifies a JSON artifact document.
func parseJSON(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(errors.KindArtifactLoad, err, "parse artifact")
	}
	if err := a.finalize(); err != nil {
		return nil, err
	}

	return &a, nil
}

// parseYAML decodes a YAML artifact document. The document is converted to
// JSON first so schema bodies land as json.RawMessage exactly as they would
// from a JSON artifact.
func parseYAML(data []byte) (*Artifact, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.KindArtifactLoad, err, "parse artifact")
	}

	jsonBytes, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, errors.Wrap(errors.KindArtifactLoad, err, "convert artifact to JSON")
	}

	return parseJSON(jsonBytes)
}

// normalizeYAML rewrites yaml.v3's map[string]any/[]any trees into
// JSON-marshalable values. yaml.v3 already produces string keys for maps;
// nested any values only need recursive normalization.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}

		return out
	default:
		return t
	}
}
