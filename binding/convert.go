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
	"encoding"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Type references for special-cased conversions.
var (
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	urlType             = reflect.TypeFor[url.URL]()
	ipType              = reflect.TypeFor[net.IP]()
)

// assign converts raw into field, allocating through pointers as needed.
// An empty raw value leaves a pointer field nil.
func assign(field reflect.Value, raw string, cfg *config) error {
	if field.Kind() == reflect.Pointer {
		if raw == "" {
			return nil
		}
		ptr := reflect.New(field.Type().Elem())
		if err := assignValue(ptr.Elem(), raw, cfg); err != nil {
			return err
		}
		field.Set(ptr)

		return nil
	}

	return assignValue(field, raw, cfg)
}

// assignValue converts raw into a non-pointer field. Resolution order:
// registered converters, special types, TextUnmarshaler, primitives.
func assignValue(field reflect.Value, raw string, cfg *config) error {
	t := field.Type()

	if conv := cfg.converterFor(t); conv != nil {
		v, err := conv(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(v))

		return nil
	}

	// time.Time implements TextUnmarshaler but accepts only RFC 3339; the
	// layout list must win.
	switch t {
	case timeType:
		parsed, err := parseTime(raw, cfg.timeLayouts)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(parsed))

		return nil

	case durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.Set(reflect.ValueOf(d))

		return nil

	case urlType:
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		field.Set(reflect.ValueOf(*u))

		return nil

	case ipType:
		ip := net.ParseIP(raw)
		if ip == nil {
			return fmt.Errorf("invalid IP address %q", raw)
		}
		field.Set(reflect.ValueOf(ip))

		return nil
	}

	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		u := field.Addr().Interface().(encoding.TextUnmarshaler)

		return u.UnmarshalText([]byte(raw))
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, field.Kind())
	}

	return nil
}

// assignSlice fills a slice field from repeated values. With CSV mode a lone
// value splits on commas first.
func assignSlice(field reflect.Value, values []string, cfg *config) error {
	if len(values) == 0 {
		return nil
	}

	if cfg.csvSlices && len(values) == 1 {
		parts := strings.Split(values[0], ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		values = parts
	}

	if cfg.maxSliceLen > 0 && len(values) > cfg.maxSliceLen {
		return fmt.Errorf("%w: %d > %d", ErrSliceLimit, len(values), cfg.maxSliceLen)
	}

	slice := reflect.MakeSlice(field.Type(), len(values), len(values))
	for i, raw := range values {
		if err := assign(slice.Index(i), raw, cfg); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	field.Set(slice)

	return nil
}

// assignMap fills a string-keyed map field from dot-notation entries
// (?labels.env=prod&labels.tier=web).
func assignMap(field reflect.Value, getter valueGetter, name string, cfg *config) error {
	mapType := field.Type()
	if mapType.Key().Kind() != reflect.String {
		return fmt.Errorf("%w, got %s", ErrMapKeyNotString, mapType)
	}

	lister, ok := getter.(keyLister)
	if !ok {
		return nil
	}

	prefix := name + "."
	elemType := mapType.Elem()
	entries := 0
	for _, key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entries++
		if cfg.maxMapLen > 0 && entries > cfg.maxMapLen {
			return fmt.Errorf("%w: %d > %d", ErrMapLimit, entries, cfg.maxMapLen)
		}

		if field.IsNil() {
			field.Set(reflect.MakeMap(mapType))
		}
		mapKey := strings.TrimPrefix(key, prefix)
		value, err := parseValue(getter.Get(key), elemType, cfg)
		if err != nil {
			return fmt.Errorf("key %q: %w", mapKey, err)
		}
		field.SetMapIndex(reflect.ValueOf(mapKey), value)
	}

	return nil
}

// parseValue converts raw into a fresh value of type t. Interface targets
// receive the raw string unchanged.
func parseValue(raw string, t reflect.Type, cfg *config) (reflect.Value, error) {
	if t.Kind() == reflect.Interface {
		return reflect.ValueOf(raw), nil
	}

	out := reflect.New(t).Elem()
	if err := assign(out, raw, cfg); err != nil {
		return reflect.Value{}, err
	}

	return out, nil
}

// parseBool accepts the usual spellings: true/false, 1/0, yes/no, on/off.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on", "t", "y":
		return true, nil
	case "false", "0", "no", "off", "f", "n", "":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidBoolean, raw)
	}
}

// parseTime tries each layout in order.
func parseTime(raw string, layouts []string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparseableTime)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, raw)
}

// converterFor finds a registered converter for t. Pointer fields resolve
// through their element type before reaching here.
func (c *config) converterFor(t reflect.Type) converterFunc {
	if c.converters == nil {
		return nil
	}

	return c.converters[t]
}
