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
	"reflect"

	"archimedes.dev/archimedes/pipeline"
)

// Path extracts the resolved path parameters into T by `path` tags. Every
// tagged field must have a matching parameter; absence is a missing-parameter
// failure, since the route template fixes which parameters exist.
//
//	type GetUserParams struct {
//	    UserID string `path:"userId"`
//	}
//	params, err := binding.Path[GetUserParams](view)
func Path[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	return extractTagged[T](newPathGetter(view.PathParams()), TagPath, newConfig(opts))
}

// Query extracts the URL query string into T by `query` tags. Absent
// parameters leave their fields zero (or apply the `default` tag); use a
// validator to enforce required parameters.
//
//	type ListParams struct {
//	    Limit int      `query:"limit" default:"20"`
//	    Tags  []string `query:"tags"`
//	}
//	params, err := binding.Query[ListParams](view)
func Query[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	return extractTagged[T](newValuesGetter(view.Query()), TagQuery, newConfig(opts))
}

// Headers extracts HTTP headers into T by `header` tags. Lookups are
// case-insensitive; absent headers leave their fields zero.
func Headers[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	return extractTagged[T](newHeaderGetter(view.Header()), TagHeader, newConfig(opts))
}

// Header extracts a single header value into T. A missing header or an
// unparseable value fails the extraction.
//
//	version, err := binding.Header[int](view, "X-API-Version")
func Header[T any](view *pipeline.RequestView, name string, opts ...Option) (T, error) {
	var zero T
	getter := newHeaderGetter(view.Header())
	if !getter.Has(name) {
		return zero, newError(SourceHeader, KindMissing, name, "missing header")
	}

	out := reflect.New(reflect.TypeFor[T]()).Elem()
	if err := assign(out, getter.Get(name), newConfig(opts)); err != nil {
		return zero, wrapError(SourceHeader, KindInvalidType, name, err)
	}

	return out.Interface().(T), nil
}

// Cookie extracts cookies into T by `cookie` tags. Absent cookies leave
// their fields zero.
func Cookie[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	return extractTagged[T](newCookieGetter(view.Cookies()), TagCookie, newConfig(opts))
}

// Cookies returns every request cookie as a name → value map. Repeated names
// keep the first value, matching net/http precedence.
func Cookies(view *pipeline.RequestView) map[string]string {
	cookies := view.Cookies()
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if _, ok := out[c.Name]; ok {
			continue
		}
		out[c.Name] = unescapeCookie(c.Value)
	}

	return out
}

// extractTagged runs the tag-driven struct walk and the configured validator.
func extractTagged[T any](getter valueGetter, tag string, cfg *config) (T, error) {
	var out T
	if err := bindStruct(&out, getter, tag, cfg); err != nil {
		return out, err
	}
	if err := runValidator(cfg, &out, sourceForTag(tag)); err != nil {
		return out, err
	}

	return out, nil
}

// runValidator maps a post-bind validation failure to a 422 extraction error.
func runValidator(cfg *config, target any, source Source) error {
	if cfg.validator == nil {
		return nil
	}
	if err := cfg.validator.Validate(target); err != nil {
		return wrapError(source, KindValidation, "", err)
	}

	return nil
}

// bindStruct fills the struct behind out from the getter.
func bindStruct(out any, getter valueGetter, tag string, cfg *config) error {
	elem := reflect.ValueOf(out).Elem()
	if elem.Kind() != reflect.Struct {
		return wrapError(sourceForTag(tag), KindCustom, "", ErrTargetNotStruct)
	}

	return bindFields(elem, getter, tag, structInfoFor(elem.Type(), tag), cfg, 0)
}

// bindFields walks the cached field list, converting values in place. The
// first failing field aborts the walk.
func bindFields(elem reflect.Value, getter valueGetter, tag string,
	info *structInfo, cfg *config, depth int,
) error {
	source := sourceForTag(tag)
	kind := kindForTag(tag)

	if depth > cfg.maxDepth {
		return wrapError(source, kind, "", ErrMaxDepth)
	}

	for _, field := range info.fields {
		value := fieldByIndexAlloc(elem, field.index)
		if !value.CanSet() {
			continue
		}

		switch {
		case field.isMap:
			if err := assignMap(value, getter, field.wireName, cfg); err != nil {
				return wrapError(source, kind, field.wireName, err)
			}

		case field.isStruct:
			nested := &prefixGetter{inner: getter, prefix: field.wireName + "."}
			// A pointer to a nested struct stays nil unless some key under
			// its prefix is present.
			if value.Kind() == reflect.Pointer && len(nested.Keys()) == 0 {
				continue
			}
			nestedInfo := structInfoFor(fieldType(value), tag)
			if err := bindNested(value, nested, tag, nestedInfo, cfg, depth+1); err != nil {
				return err
			}

		case field.isSlice:
			if !getter.Has(field.wireName) {
				continue
			}
			if err := assignSlice(value, getter.GetAll(field.wireName), cfg); err != nil {
				return wrapError(source, kind, field.wireName, err)
			}

		default:
			raw, ok := getter.Get(field.wireName), getter.Has(field.wireName)
			if !ok && field.defaultValue != "" {
				raw, ok = field.defaultValue, true
			}
			if !ok {
				if tag == TagPath {
					return newError(SourcePath, KindMissing, field.wireName,
						"missing path parameter")
				}

				continue
			}
			if err := assign(value, raw, cfg); err != nil {
				return wrapError(source, kind, field.wireName, err)
			}
		}
	}

	return nil
}

// bindNested recurses into a nested struct field, allocating pointers.
func bindNested(value reflect.Value, getter valueGetter, tag string,
	info *structInfo, cfg *config, depth int,
) error {
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			value.Set(reflect.New(value.Type().Elem()))
		}
		value = value.Elem()
	}

	return bindFields(value, getter, tag, info, cfg, depth)
}

// fieldByIndexAlloc walks an index path like reflect.Value.FieldByIndex but
// allocates nil embedded pointers instead of panicking on them.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for n, i := range index {
		if n > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}

	return v
}

// fieldType unwraps a pointer field to its element type.
func fieldType(v reflect.Value) reflect.Type {
	t := v.Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t
}
