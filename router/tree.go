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

// segKind classifies one template segment.
type segKind int

const (
	segLiteral segKind = iota
	segParam
	segWildcard
)

// segment is one parsed template segment.
type segment struct {
	kind segKind
	// value is the literal text for segLiteral, the parameter name for
	// segParam and segWildcard.
	value string
}

// parseTemplate splits a path template into segments and reports whether the
// template carries an explicit trailing slash. Parameter segments are
// {name}; a trailing {name...} segment captures the rest of the path.
func parseTemplate(template string) (segs []segment, slashed bool, err error) {
	if template == "" || template[0] != '/' {
		return nil, false, fmt.Errorf("%w: %q must start with /", ErrInvalidTemplate, template)
	}

	slashed = len(template) > 1 && strings.HasSuffix(template, "/")
	trimmed := strings.Trim(template, "/")
	if trimmed == "" {
		return nil, slashed, nil
	}

	parts := strings.Split(trimmed, "/")
	segs = make([]segment, 0, len(parts))

	for i, part := range parts {
		if part == "" {
			return nil, false, fmt.Errorf("%w: %q has an empty segment", ErrInvalidTemplate, template)
		}

		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if rest, ok := strings.CutSuffix(name, "..."); ok {
				if i != len(parts)-1 || slashed {
					return nil, false, fmt.Errorf("%w: wildcard {%s} must be the final segment", ErrInvalidTemplate, name)
				}
				if err := checkParamName(template, rest); err != nil {
					return nil, false, err
				}
				segs = append(segs, segment{kind: segWildcard, value: rest})

				continue
			}

			if err := checkParamName(template, name); err != nil {
				return nil, false, err
			}
			segs = append(segs, segment{kind: segParam, value: name})

			continue
		}

		if strings.ContainsAny(part, "{}") {
			return nil, false, fmt.Errorf("%w: %q mixes literal and parameter text in one segment", ErrInvalidTemplate, template)
		}
		segs = append(segs, segment{kind: segLiteral, value: part})
	}

	return segs, slashed, nil
}

// checkParamName rejects empty or non-identifier parameter names.
func checkParamName(template, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidTemplate, template)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: parameter name %q contains %q", ErrInvalidTemplate, name, r)
		}
	}

	return nil
}

// record is a terminal route entry. Each tree node holds up to two records,
// one per trailing-slash form, so /foo and /foo/ can be registered as
// distinct routes while a single registration serves both forms.
type record[H any] struct {
	operationID string
	template    string
	handler     H
	tags        []string
}

// edge is a literal child, kept sorted by label for deterministic iteration.
type edge[H any] struct {
	label string
	node  *node[H]
}

// paramEdge is the single parameter child a node may carry. The radix
// property of one parameter per node is what makes ambiguity detectable at
// registration: a second parameter name at the same position has no literal
// preference over the first and is rejected.
type paramEdge[H any] struct {
	name string
	node *node[H]
}

// wildcardEdge is a terminal rest-capture child.
type wildcardEdge[H any] struct {
	name string
	recs [2]*record[H]
}

// node is one radix-tree node. Registration happens in the single-threaded
// configuration phase; afterwards the tree is read-only.
type node[H any] struct {
	edges    []edge[H]
	param    *paramEdge[H]
	wildcard *wildcardEdge[H]
	recs     [2]*record[H]
}

// findEdge binary-searches the sorted literal edges.
func (n *node[H]) findEdge(label string) *node[H] {
	i := sort.Search(len(n.edges), func(i int) bool { return n.edges[i].label >= label })
	if i < len(n.edges) && n.edges[i].label == label {
		return n.edges[i].node
	}

	return nil
}

// addEdge inserts a literal child keeping the slice sorted.
func (n *node[H]) addEdge(label string) *node[H] {
	i := sort.Search(len(n.edges), func(i int) bool { return n.edges[i].label >= label })
	if i < len(n.edges) && n.edges[i].label == label {
		return n.edges[i].node
	}

	child := &node[H]{}
	n.edges = append(n.edges, edge[H]{})
	copy(n.edges[i+1:], n.edges[i:])
	n.edges[i] = edge[H]{label: label, node: child}

	return child
}

// slashIndex maps the trailing-slash form to a record slot.
func slashIndex(slashed bool) int {
	if slashed {
		return 1
	}

	return 0
}

// insert places a record for the parsed template, rejecting duplicates and
// ambiguous parameter names.
func (n *node[H]) insert(segs []segment, slashed bool, rec *record[H]) error {
	current := n
	for _, seg := range segs {
		switch seg.kind {
		case segLiteral:
			current = current.addEdge(seg.value)

		case segParam:
			if current.param == nil {
				current.param = &paramEdge[H]{name: seg.value, node: &node[H]{}}
			} else if current.param.name != seg.value {
				return fmt.Errorf("%w: {%s} and {%s} occupy the same position (template %s)",
					ErrAmbiguousRoute, current.param.name, seg.value, rec.template)
			}
			current = current.param.node

		case segWildcard:
			if current.wildcard == nil {
				current.wildcard = &wildcardEdge[H]{name: seg.value}
			} else if current.wildcard.name != seg.value {
				return fmt.Errorf("%w: {%s...} and {%s...} occupy the same position (template %s)",
					ErrAmbiguousRoute, current.wildcard.name, seg.value, rec.template)
			}
			if current.wildcard.recs[slashIndex(slashed)] != nil {
				return fmt.Errorf("%w: %s", ErrDuplicateRoute, rec.template)
			}
			current.wildcard.recs[slashIndex(slashed)] = rec

			return nil
		}
	}

	if current.recs[slashIndex(slashed)] != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, rec.template)
	}
	current.recs[slashIndex(slashed)] = rec

	return nil
}

// boundParam is one captured path parameter. Bindings accumulate in a slice
// during traversal so backtracking can truncate them without map churn.
type boundParam struct {
	key   string
	value string
}

// pick returns the record for the requested slash form, falling back to the
// other form when only one is registered (trailing-slash equivalence).
func pick[H any](recs [2]*record[H], slashed bool) *record[H] {
	if rec := recs[slashIndex(slashed)]; rec != nil {
		return rec
	}

	return recs[slashIndex(!slashed)]
}

// match walks the tree with backtracking. Literal edges are tried first,
// then the parameter child, then the wildcard, which gives the
// literal > parameter > wildcard precedence for every prefix of the path,
// not only the first divergence.
func (n *node[H]) match(path string, start int, slashed bool, params *[]boundParam) *record[H] {
	if start >= len(path) {
		return pick(n.recs, slashed)
	}

	end := start
	for end < len(path) && path[end] != '/' {
		end++
	}
	seg := path[start:end]
	next := end + 1 // past the slash

	if seg != "" {
		if child := n.findEdge(seg); child != nil {
			if rec := child.match(path, next, slashed, params); rec != nil {
				return rec
			}
		}

		if n.param != nil {
			mark := len(*params)
			*params = append(*params, boundParam{key: n.param.name, value: seg})
			if rec := n.param.node.match(path, next, slashed, params); rec != nil {
				return rec
			}
			*params = (*params)[:mark]
		}
	}

	if n.wildcard != nil {
		if rec := pick(n.wildcard.recs, slashed); rec != nil {
			*params = append(*params, boundParam{key: n.wildcard.name, value: path[start:]})

			return rec
		}
	}

	return nil
}
