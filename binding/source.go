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
	"net/http"
	"net/url"
	"strings"
)

// Struct tags recognised by the tag-driven extractors.
const (
	TagPath   = "path"
	TagQuery  = "query"
	TagForm   = "form"
	TagHeader = "header"
	TagCookie = "cookie"
)

// sourceForTag maps a struct tag to its extraction source.
func sourceForTag(tag string) Source {
	switch tag {
	case TagPath:
		return SourcePath
	case TagQuery:
		return SourceQuery
	case TagForm:
		return SourceBody
	case TagHeader:
		return SourceHeader
	case TagCookie:
		return SourceCookie
	default:
		return SourceOther
	}
}

// kindForTag maps a struct tag to the failure kind its conversion errors
// carry. Path and header values are single typed values (invalid-type);
// query and form walk a serialised document (deserialization).
func kindForTag(tag string) Kind {
	switch tag {
	case TagPath, TagHeader, TagCookie:
		return KindInvalidType
	default:
		return KindDeserialization
	}
}

// valueGetter abstracts a key-value extraction source.
//
// Implementations must distinguish "key present with empty value" from "key
// absent": Has reports presence even when Get would return "". The
// distinction drives default application and missing-parameter errors.
type valueGetter interface {
	// Get returns the first value for the key, or "" when absent.
	Get(key string) string

	// GetAll returns every value for the key, or nil when absent.
	GetAll(key string) []string

	// Has reports whether the key is present at all.
	Has(key string) bool
}

// keyLister is implemented by getters that can enumerate their keys. Map
// binding uses it to find dot-prefixed entries.
type keyLister interface {
	Keys() []string
}

// valuesGetter serves both query strings and form bodies; both are
// url.Values underneath. Slice fields accept the bracket convention
// ("ids[]=1&ids[]=2") alongside repeated keys.
type valuesGetter struct {
	values url.Values
}

func newValuesGetter(v url.Values) *valuesGetter {
	return &valuesGetter{values: v}
}

func (g *valuesGetter) Get(key string) string {
	return g.values.Get(key)
}

func (g *valuesGetter) GetAll(key string) []string {
	if vals := g.values[key]; len(vals) > 0 {
		return vals
	}

	return g.values[key+"[]"]
}

func (g *valuesGetter) Has(key string) bool {
	return g.values.Has(key) || g.values.Has(key+"[]")
}

func (g *valuesGetter) Keys() []string {
	keys := make([]string, 0, len(g.values))
	for key := range g.values {
		keys = append(keys, key)
	}

	return keys
}

// pathGetter reads resolved path parameters. Parameters are single-valued.
type pathGetter struct {
	params map[string]string
}

func newPathGetter(params map[string]string) *pathGetter {
	return &pathGetter{params: params}
}

func (g *pathGetter) Get(key string) string {
	return g.params[key]
}

func (g *pathGetter) GetAll(key string) []string {
	if val, ok := g.params[key]; ok {
		return []string{val}
	}

	return nil
}

func (g *pathGetter) Has(key string) bool {
	_, ok := g.params[key]

	return ok
}

// headerGetter reads HTTP headers with case-insensitive, canonicalised keys.
type headerGetter struct {
	header http.Header
}

func newHeaderGetter(h http.Header) *headerGetter {
	return &headerGetter{header: h}
}

func (g *headerGetter) Get(key string) string {
	return g.header.Get(key)
}

func (g *headerGetter) GetAll(key string) []string {
	return g.header.Values(key)
}

func (g *headerGetter) Has(key string) bool {
	_, ok := g.header[http.CanonicalHeaderKey(key)]

	return ok
}

// cookieGetter reads cookies by exact name. Values are URL-unescaped when
// possible; a value that fails unescaping is returned raw.
type cookieGetter struct {
	cookies []*http.Cookie
}

func newCookieGetter(cookies []*http.Cookie) *cookieGetter {
	return &cookieGetter{cookies: cookies}
}

func (g *cookieGetter) Get(key string) string {
	for _, c := range g.cookies {
		if c.Name == key {
			return unescapeCookie(c.Value)
		}
	}

	return ""
}

func (g *cookieGetter) GetAll(key string) []string {
	var values []string
	for _, c := range g.cookies {
		if c.Name == key {
			values = append(values, unescapeCookie(c.Value))
		}
	}

	return values
}

func (g *cookieGetter) Has(key string) bool {
	for _, c := range g.cookies {
		if c.Name == key {
			return true
		}
	}

	return false
}

func unescapeCookie(value string) string {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		return unescaped
	}

	return value
}

// prefixGetter narrows a getter to keys under "<prefix>.", which is how
// nested struct fields address their values (?address.city=Berlin).
type prefixGetter struct {
	inner  valueGetter
	prefix string
}

func (g *prefixGetter) Get(key string) string {
	return g.inner.Get(g.prefix + key)
}

func (g *prefixGetter) GetAll(key string) []string {
	return g.inner.GetAll(g.prefix + key)
}

func (g *prefixGetter) Has(key string) bool {
	full := g.prefix + key
	if g.inner.Has(full) {
		return true
	}

	// A nested struct below this one makes the key "present" even though no
	// value carries its exact name.
	lister, ok := g.inner.(keyLister)
	if !ok {
		return false
	}
	for _, k := range lister.Keys() {
		if strings.HasPrefix(k, full+".") {
			return true
		}
	}

	return false
}

func (g *prefixGetter) Keys() []string {
	lister, ok := g.inner.(keyLister)
	if !ok {
		return nil
	}

	var keys []string
	for _, k := range lister.Keys() {
		if strings.HasPrefix(k, g.prefix) {
			keys = append(keys, strings.TrimPrefix(k, g.prefix))
		}
	}

	return keys
}
