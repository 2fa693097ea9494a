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
	"maps"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// fieldInfo is the parsed binding metadata for one struct field.
type fieldInfo struct {
	index        []int  // field index path, supports embedded structs
	wireName     string // lookup key from the tag (or field name for form)
	defaultValue string // raw value of the `default` tag
	isSlice      bool
	isMap        bool
	isStruct     bool // nested struct bound via dot notation
}

// structInfo lists the bindable fields of a struct type for one tag.
type structInfo struct {
	fields []fieldInfo
}

type cacheKey struct {
	typ reflect.Type
	tag string
}

// Parsed struct metadata is immutable, so reads go through an atomic pointer
// to a copy-on-write map; only writers take the lock.
var (
	structCache   atomic.Pointer[map[cacheKey]*structInfo]
	structCacheMu sync.Mutex
)

func init() {
	m := make(map[cacheKey]*structInfo)
	structCache.Store(&m)
}

// structInfoFor returns cached metadata for typ under tag, parsing once per
// (type, tag) pair.
func structInfoFor(typ reflect.Type, tag string) *structInfo {
	key := cacheKey{typ: typ, tag: tag}

	m := structCache.Load()
	if info, ok := (*m)[key]; ok {
		return info
	}

	structCacheMu.Lock()
	defer structCacheMu.Unlock()

	m = structCache.Load()
	if info, ok := (*m)[key]; ok {
		return info
	}

	info := parseFields(typ, tag, nil)

	next := make(map[cacheKey]*structInfo, len(*m)+1)
	maps.Copy(next, *m)
	next[key] = info
	structCache.Store(&next)

	return info
}

// parseFields walks typ and collects bindable fields. Embedded structs
// flatten into the parent; fields without the tag are skipped except for
// form, where uploads commonly rely on field names.
func parseFields(typ reflect.Type, tag string, indexPrefix []int) *structInfo {
	info := &structInfo{fields: make([]fieldInfo, 0, typ.NumField())}

	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		index := make([]int, 0, len(indexPrefix)+1)
		index = append(index, indexPrefix...)
		index = append(index, i)

		fieldType := field.Type
		if fieldType.Kind() == reflect.Pointer {
			fieldType = fieldType.Elem()
		}

		if field.Anonymous && fieldType.Kind() == reflect.Struct {
			embedded := parseFields(fieldType, tag, index)
			info.fields = append(info.fields, embedded.fields...)

			continue
		}

		raw := field.Tag.Get(tag)
		if raw == "-" {
			continue
		}
		wireName, _, _ := strings.Cut(raw, ",")
		wireName = strings.TrimSpace(wireName)
		if wireName == "" {
			if tag != TagForm {
				continue
			}
			wireName = field.Name
		}

		kind := fieldType.Kind()
		info.fields = append(info.fields, fieldInfo{
			index:        index,
			wireName:     wireName,
			defaultValue: field.Tag.Get("default"),
			isSlice:      kind == reflect.Slice && fieldType != ipType,
			isMap:        kind == reflect.Map,
			isStruct: kind == reflect.Struct &&
				fieldType != timeType && fieldType != urlType,
		})
	}

	return info
}
