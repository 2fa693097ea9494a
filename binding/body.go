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
	"bytes"
	"encoding/json"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"

	"archimedes.dev/archimedes/pipeline"
)

// JSON decodes the request body as JSON into T. A Content-Type other than
// application/json (or a +json suffix type) is rejected; a missing
// Content-Type is accepted. The body must be non-empty and within the size
// cap.
//
//	req, err := binding.JSON[CreateUserRequest](view)
func JSON[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	var out T
	cfg := newConfig(opts)
	body, err := decodableBody(view, cfg, "application/json", "+json")
	if err != nil {
		return out, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if cfg.strictJSON {
		dec.DisallowUnknownFields()
	}
	if cfg.useNumber {
		dec.UseNumber()
	}
	if err := dec.Decode(&out); err != nil {
		return out, wrapError(SourceBody, KindDeserialization, "", err)
	}
	if err := runValidator(cfg, &out, SourceBody); err != nil {
		return out, err
	}

	return out, nil
}

// Form decodes an application/x-www-form-urlencoded body into T by `form`
// tags. Fields without a tag bind by their Go name.
//
//	data, err := binding.Form[LoginForm](view)
func Form[T any](view *pipeline.RequestView, opts ...Option) (T, error) {
	var out T
	cfg := newConfig(opts)
	body, err := decodableBody(view, cfg, "application/x-www-form-urlencoded")
	if err != nil {
		return out, err
	}

	values, parseErr := url.ParseQuery(string(body))
	if parseErr != nil {
		return out, wrapError(SourceBody, KindDeserialization, "", parseErr)
	}
	if err := bindStruct(&out, newValuesGetter(values), TagForm, cfg); err != nil {
		return out, err
	}
	if err := runValidator(cfg, &out, SourceBody); err != nil {
		return out, err
	}

	return out, nil
}

// RawBody returns the collected body bytes. The returned slice is the view's
// snapshot and must not be mutated.
func RawBody(view *pipeline.RequestView, opts ...Option) ([]byte, error) {
	body, err := cappedBody(view, newConfig(opts))
	if err != nil {
		return nil, err
	}

	return body, nil
}

// BodyString returns the body as text, rejecting invalid UTF-8.
func BodyString(view *pipeline.RequestView, opts ...Option) (string, error) {
	body, err := cappedBody(view, newConfig(opts))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", wrapError(SourceBody, KindDeserialization, "", ErrInvalidUTF8Body)
	}

	return string(body), nil
}

// decodableBody asserts the media type and returns a non-empty body within
// the cap. Shared by every body codec.
func decodableBody(view *pipeline.RequestView, cfg *config, accepted ...string) ([]byte, error) {
	if err := checkMediaType(view, accepted...); err != nil {
		return nil, err
	}
	body, err := cappedBody(view, cfg)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, wrapError(SourceBody, KindDeserialization, "", ErrEmptyBody)
	}

	return body, nil
}

// cappedBody returns the body snapshot, surfacing collection failures and
// enforcing this call's size cap.
func cappedBody(view *pipeline.RequestView, cfg *config) ([]byte, error) {
	if view.BodyTooLarge() {
		return nil, newError(SourceBody, KindPayloadTooLarge, "",
			"request body exceeds the configured limit")
	}
	if err := view.BodyError(); err != nil {
		return nil, wrapError(SourceBody, KindDeserialization, "", err)
	}

	body := view.Body()
	if cfg.maxBody > 0 && int64(len(body)) > cfg.maxBody {
		return nil, newError(SourceBody, KindPayloadTooLarge, "",
			"request body exceeds %d bytes", cfg.maxBody)
	}

	return body, nil
}

// checkMediaType rejects bodies whose Content-Type matches none of the
// accepted types. A missing Content-Type passes; entries starting with "+"
// match media-type suffixes (application/hal+json under "+json").
func checkMediaType(view *pipeline.RequestView, accepted ...string) error {
	header := view.ContentType()
	if header == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return newError(SourceContentType, KindUnsupportedMediaType, "",
			"malformed content type %q", header)
	}

	for _, want := range accepted {
		if mediaType == want {
			return nil
		}
		if strings.HasPrefix(want, "+") && strings.HasSuffix(mediaType, want) {
			return nil
		}
	}

	return newError(SourceContentType, KindUnsupportedMediaType, "",
		"unsupported content type %q, expected %s", mediaType, accepted[0])
}
