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

package router

import (
	"fmt"
	"sort"
	"strings"
)

// Router matches (method, path) pairs against registered templates. H is the
// handler payload attached to each route; the router never invokes it.
//
// Register, Nest, and Merge belong to the single-threaded configuration
// phase. Resolve is safe for unlimited concurrent use once registration is
// done.
type Router[H any] struct {
	trees map[string]*node[H]
	infos []Route[H]
	tags  []string
}

// Route describes one registered route for introspection.
type Route[H any] struct {
	// Method is the uppercase HTTP method.
	Method string

	// Template is the path template as registered, e.g. "/users/{userId}".
	Template string

	// OperationID is the contract operation bound to the route.
	OperationID string

	// Handler is the payload supplied at registration.
	Handler H

	// Tags are the route's propagated tags.
	Tags []string
}

// Match is the outcome of a successful resolution.
type Match[H any] struct {
	// OperationID is the operation bound to the matched route.
	OperationID string

	// Template is the matched path template.
	Template string

	// Params maps template parameter names to the concrete path segments
	// they captured. Nil when the template has no parameters.
	Params map[string]string

	// Handler is the payload supplied at registration.
	Handler H

	// Tags are the matched route's tags.
	Tags []string
}

// Option configures a Router.
type Option func(*routerOptions)

type routerOptions struct {
	tags []string
}

// WithTags attaches tags to every route registered on this router. Tags
// survive Nest and Merge, accumulating the parent router's tags.
func WithTags(tags ...string) Option {
	return func(o *routerOptions) { o.tags = append(o.tags, tags...) }
}

// New creates an empty router.
func New[H any](opts ...Option) *Router[H] {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &Router[H]{trees: make(map[string]*node[H]), tags: o.tags}
}

// Register adds a route. The method is uppercased; the template must use
// /literal/{name} segments with an optional trailing {name...} wildcard.
// Registering the same (method, template) twice, or a template whose
// parameter position collides with a differently named parameter, is an
// error.
func (r *Router[H]) Register(method, template, operationID string, handler H) error {
	return r.register(method, template, operationID, handler, r.tags)
}

func (r *Router[H]) register(method, template, operationID string, handler H, tags []string) error {
	if method == "" {
		return fmt.Errorf("%w: empty method (template %s)", ErrInvalidTemplate, template)
	}
	method = strings.ToUpper(method)

	segs, slashed, err := parseTemplate(template)
	if err != nil {
		return err
	}

	root := r.trees[method]
	if root == nil {
		root = &node[H]{}
		r.trees[method] = root
	}

	rec := &record[H]{
		operationID: operationID,
		template:    template,
		handler:     handler,
		tags:        tags,
	}

	if err := r.checkShadowedParams(method, segs, template); err != nil {
		return err
	}

	if err := root.insert(segs, slashed, rec); err != nil {
		return err
	}

	r.infos = append(r.infos, Route[H]{
		Method:      method,
		Template:    template,
		OperationID: operationID,
		Handler:     handler,
		Tags:        rec.tags,
	})

	return nil
}

// checkShadowedParams rejects templates that differ from an existing one
// only by renamed parameters, e.g. /users/{id} after /users/{name}/posts is
// fine (shared prefix, same name required) but /a/{x} after /a/{y} is not.
// The tree insert catches collisions on shared nodes; this pre-check exists
// only to produce template-level context in the error.
func (r *Router[H]) checkShadowedParams(method string, segs []segment, template string) error {
	for _, info := range r.infos {
		if info.Method != method {
			continue
		}
		other, _, err := parseTemplate(info.Template)
		if err != nil {
			continue
		}
		if sameShapeDifferentNames(segs, other) {
			return fmt.Errorf("%w: %s matches the same paths as %s", ErrAmbiguousRoute, template, info.Template)
		}
	}

	return nil
}

// sameShapeDifferentNames reports whether two templates match identical
// concrete paths while disagreeing on at least one parameter name.
func sameShapeDifferentNames(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}

	renamed := false
	for i := range a {
		if a[i].kind != b[i].kind {
			return false
		}
		switch a[i].kind {
		case segLiteral:
			if a[i].value != b[i].value {
				return false
			}
		case segParam, segWildcard:
			if a[i].value != b[i].value {
				renamed = true
			}
		}
	}

	return renamed
}

// Resolve matches a concrete request path. It returns ErrNotFound when no
// template matches on any method, and a *MethodNotAllowedError when the path
// is routable only under other methods.
func (r *Router[H]) Resolve(method, path string) (Match[H], error) {
	method = strings.ToUpper(method)

	if rec, params, ok := r.resolveOn(method, path); ok {
		m := Match[H]{
			OperationID: rec.operationID,
			Template:    rec.template,
			Handler:     rec.handler,
			Tags:        rec.tags,
		}
		if len(params) > 0 {
			m.Params = make(map[string]string, len(params))
			for _, p := range params {
				m.Params[p.key] = p.value
			}
		}

		return m, nil
	}

	if allow := r.allowedMethods(method, path); len(allow) > 0 {
		return Match[H]{}, &MethodNotAllowedError{Method: method, Allow: allow}
	}

	return Match[H]{}, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
}

// resolveOn walks a single method tree.
func (r *Router[H]) resolveOn(method, path string) (*record[H], []boundParam, bool) {
	root := r.trees[method]
	if root == nil {
		return nil, nil, false
	}

	slashed := len(path) > 1 && strings.HasSuffix(path, "/")
	walk := strings.Trim(path, "/")

	var params []boundParam
	rec := root.match(walk, 0, slashed, &params)
	if rec == nil {
		return nil, nil, false
	}

	return rec, params, true
}

// allowedMethods collects the methods under which the path would resolve.
func (r *Router[H]) allowedMethods(requested, path string) []string {
	var allow []string
	for method := range r.trees {
		if method == requested {
			continue
		}
		if _, _, ok := r.resolveOn(method, path); ok {
			allow = append(allow, method)
		}
	}
	sort.Strings(allow)

	return allow
}

// Nest mounts every route of sub under prefix. The prefix may itself carry
// {name} segments; "" and "/" mount at the root. Tags accumulate: nested
// routes carry the parent's tags followed by their own.
func (r *Router[H]) Nest(prefix string, sub *Router[H]) error {
	if sub == nil {
		return nil
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" {
		if _, _, err := parseTemplate(prefix); err != nil {
			return err
		}
	}

	for _, info := range sub.infos {
		combined := prefix + info.Template
		tags := append(append([]string(nil), r.tags...), info.Tags...)
		if err := r.register(info.Method, combined, info.OperationID, info.Handler, tags); err != nil {
			return fmt.Errorf("nest %q: %w", prefix, err)
		}
	}

	return nil
}

// Merge unions the routes of sub into r without a prefix change.
func (r *Router[H]) Merge(sub *Router[H]) error {
	return r.Nest("", sub)
}

// Routes lists the registered routes sorted by method then template.
func (r *Router[H]) Routes() []Route[H] {
	out := make([]Route[H], len(r.infos))
	copy(out, r.infos)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}

		return out[i].Template < out[j].Template
	})

	return out
}

// Len reports the number of registered routes.
func (r *Router[H]) Len() int { return len(r.infos) }
