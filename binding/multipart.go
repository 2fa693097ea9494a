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
	"io"
	"mime"
	"mime/multipart"

	"archimedes.dev/archimedes/pipeline"
)

// Part is one field of a multipart/form-data body. File parts carry a
// Filename; plain form fields leave it empty.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// IsFile reports whether the part was submitted as a file upload.
func (p *Part) IsFile() bool {
	return p.Filename != ""
}

// PartReader walks the parts of a multipart body in order. The body bytes
// are already collected by the request view, so iteration never blocks on
// the network.
type PartReader struct {
	reader *multipart.Reader
}

// Multipart opens the request body as multipart/form-data. The Content-Type
// must name the multipart boundary; a body of any other type is an
// unsupported-media-type failure.
//
//	parts, err := binding.Multipart(view)
//	for {
//	    part, err := parts.Next()
//	    if err != nil || part == nil {
//	        break
//	    }
//	    // use part
//	}
func Multipart(view *pipeline.RequestView, opts ...Option) (*PartReader, error) {
	header := view.ContentType()
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return nil, newError(SourceContentType, KindUnsupportedMediaType, "",
			"malformed content type %q", header)
	}
	if mediaType != "multipart/form-data" {
		return nil, newError(SourceContentType, KindUnsupportedMediaType, "",
			"unsupported content type %q, expected multipart/form-data", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, wrapError(SourceContentType, KindDeserialization, "", ErrMissingBoundary)
	}

	body, bodyErr := cappedBody(view, newConfig(opts))
	if bodyErr != nil {
		return nil, bodyErr
	}

	return &PartReader{
		reader: multipart.NewReader(bytes.NewReader(body), boundary),
	}, nil
}

// Next returns the next part with its content collected, or (nil, nil) once
// the body is exhausted. A malformed part fails the extraction.
func (r *PartReader) Next() (*Part, error) {
	part, err := r.reader.NextPart()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(SourceBody, KindDeserialization, "", err)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, wrapError(SourceBody, KindDeserialization, part.FormName(), err)
	}

	return &Part{
		Name:        part.FormName(),
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Collect drains the remaining parts into a slice.
func (r *PartReader) Collect() ([]*Part, error) {
	var parts []*Part
	for {
		part, err := r.Next()
		if err != nil {
			return nil, err
		}
		if part == nil {
			return parts, nil
		}
		parts = append(parts, part)
	}
}
