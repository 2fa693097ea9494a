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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
)

// ErrUnsupportedFormat is returned for configuration files whose
// extension is not .yaml, .yml, .toml or .json.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// loadState collects loading directives before the layers run.
type loadState struct {
	files   []string
	env     bool
	setters []func(*Config)
}

// Option configures a [Load] call.
type Option func(*loadState)

// WithFile adds a configuration file layer. The format is chosen by
// extension. When given multiple times, later files override earlier
// ones key by key.
func WithFile(path string) Option {
	return func(s *loadState) { s.files = append(s.files, path) }
}

// WithoutEnv disables the ARCHIMEDES_* environment layer.
func WithoutEnv() Option {
	return func(s *loadState) { s.env = false }
}

// With applies fn to the configuration after all other layers. Explicit
// setters always win.
func With(fn func(*Config)) Option {
	return func(s *loadState) { s.setters = append(s.setters, fn) }
}

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return With(func(c *Config) { c.ServiceName = name })
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return With(func(c *Config) { c.ServiceVersion = version })
}

// WithPort sets the HTTP listener port.
func WithPort(port int) Option {
	return With(func(c *Config) { c.Server.Port = port })
}

// WithContractPath points the service at a contract artifact on disk.
func WithContractPath(path string) Option {
	return With(func(c *Config) { c.Contract.Path = path })
}

// WithContractURL points the service at a remote contract artifact.
func WithContractURL(url string) Option {
	return With(func(c *Config) { c.Contract.URL = url })
}

// WithPolicyBundle points the authorizer at a policy bundle on disk.
func WithPolicyBundle(path string) Option {
	return With(func(c *Config) { c.Authorization.BundlePath = path })
}

// Load assembles the configuration from its layers: defaults, then
// files, then environment, then explicit setters. Option order does not
// change the precedence. The result is validated before it is returned.
func Load(opts ...Option) (*Config, error) {
	state := loadState{env: true}
	for _, opt := range opts {
		opt(&state)
	}

	cfg := Default()

	if len(state.files) > 0 {
		merged := map[string]any{}
		for _, path := range state.files {
			layer, err := parseFile(path)
			if err != nil {
				return nil, err
			}
			if err := mergo.Merge(&merged, layer, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("config: merge %s: %w", path, err)
			}
		}
		if err := decodeMap(merged, cfg); err != nil {
			return nil, err
		}
	}

	if state.env {
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
	}

	for _, fn := range state.setters {
		fn(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like [Load] but panics on error.
func MustLoad(opts ...Option) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	return cfg
}

// parseFile reads path and decodes it into a nested key map.
func parseFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	out := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	return out, nil
}

// decodeMap overlays a key map onto cfg. Only keys present in the map
// are touched, so explicit false and zero values override defaults.
// Unknown keys are rejected; a typo in a config file must not be
// silently ignored.
func decodeMap(m map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}

	return nil
}
