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

package authz

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-policy-agent/opa/v1/bundle"
	"github.com/open-policy-agent/opa/v1/rego"
	"golang.org/x/sync/singleflight"

	"archimedes.dev/archimedes/errors"
)

// DefaultQuery evaluates the whole authorization package document, so a
// single evaluation yields both the allow verdict and an optional reason.
const DefaultQuery = "data.archimedes.authz"

// policyState is one immutable generation of compiled policy. Reload swaps
// the whole state; in-flight evaluations keep the generation they started
// with.
type policyState struct {
	query    rego.PreparedEvalQuery
	policyID string
	revision string
	loadedAt time.Time
}

// Engine evaluates authorization policy. The zero engine denies everything;
// LoadBundle arms it. All methods are safe for concurrent use.
type Engine struct {
	queryPath string
	cache     *DecisionCache
	logger    *slog.Logger

	state atomic.Pointer[policyState]

	// flight coalesces concurrent lookups of the same fingerprint: a burst
	// of identical cache misses costs one policy evaluation.
	flight singleflight.Group

	// evalFn is e.evaluate; tests swap it to observe evaluation calls.
	evalFn func(ctx context.Context, in Input) Decision

	// reloadMu serialises LoadBundle/Reload so two concurrent reloads
	// cannot interleave their swap-and-clear sequences.
	reloadMu   sync.Mutex
	bundlePath string
}

// Option configures an Engine.
type Option func(*Engine)

// WithQuery sets the Rego query evaluated per request. The query may point
// at a package document (read as {allow, reason}) or directly at a boolean
// rule. Defaults to DefaultQuery.
func WithQuery(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.queryPath = path
		}
	}
}

// WithCache sizes the decision cache. Capacity zero disables it.
func WithCache(capacity int, ttl time.Duration, cacheDenies bool) Option {
	return func(e *Engine) {
		e.cache = NewDecisionCache(capacity, ttl, cacheDenies)
	}
}

// WithLogger sets the logger for reloads and evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an engine. Without a loaded bundle every decision is a deny.
func New(opts ...Option) *Engine {
	e := &Engine{
		queryPath: DefaultQuery,
		cache:     NewDecisionCache(0, 0, false),
		logger:    slog.Default(),
	}

	e.evalFn = e.evaluate

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// LoadBundle reads a tar+gzip policy bundle from path, compiles the
// configured query against it, and atomically installs the result. On
// success the decision cache is cleared; on failure the previous policy
// generation keeps serving.
func (e *Engine) LoadBundle(ctx context.Context, path string) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(errors.KindPolicyLoad, err, "open policy bundle %s", path)
	}
	defer f.Close()

	b, err := bundle.NewReader(f).Read()
	if err != nil {
		return errors.Wrapf(errors.KindPolicyLoad, err, "read policy bundle %s", path)
	}

	if err := e.install(ctx, &b, path); err != nil {
		return err
	}

	e.bundlePath = path

	return nil
}

// LoadBundleBytes installs a policy bundle from an in-memory tar+gzip
// archive. The name labels decisions in place of a file path. Bundles
// loaded this way have no backing file, so Reload is unavailable until a
// later LoadBundle.
func (e *Engine) LoadBundleBytes(ctx context.Context, data []byte, name string) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	b, err := bundle.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return errors.Wrapf(errors.KindPolicyLoad, err, "read policy bundle %s", name)
	}

	if err := e.install(ctx, &b, name); err != nil {
		return err
	}

	e.bundlePath = ""

	return nil
}

// Reload re-reads the bundle last loaded with LoadBundle.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	path := e.bundlePath
	e.reloadMu.Unlock()

	if path == "" {
		if e.Ready() {
			return errors.New(errors.KindPolicyLoad, "active bundle was loaded from memory and has no file to re-read")
		}

		return errors.New(errors.KindPolicyLoad, "no policy bundle has been loaded")
	}

	return e.LoadBundle(ctx, path)
}

func (e *Engine) install(ctx context.Context, b *bundle.Bundle, policyID string) error {
	pq, err := rego.New(
		rego.Query(e.queryPath),
		rego.ParsedBundle(policyID, b),
	).PrepareForEval(ctx)
	if err != nil {
		return errors.Wrapf(errors.KindPolicyLoad, err, "prepare policy query %q", e.queryPath)
	}

	st := &policyState{
		query:    pq,
		policyID: policyID,
		revision: b.Manifest.Revision,
		loadedAt: time.Now(),
	}

	prev := e.state.Swap(st)
	e.cache.Clear()

	if prev == nil {
		e.logger.Info("authorization policy loaded",
			"bundle", policyID,
			"revision", st.revision,
			"query", e.queryPath,
		)
	} else {
		e.logger.Info("authorization policy reloaded",
			"bundle", policyID,
			"revision", st.revision,
			"previous_revision", prev.revision,
		)
	}

	return nil
}

// Ready reports whether a policy bundle has been loaded.
func (e *Engine) Ready() bool {
	return e.state.Load() != nil
}

// Revision returns the manifest revision of the active bundle, or "" when
// none is loaded.
func (e *Engine) Revision() string {
	st := e.state.Load()
	if st == nil {
		return ""
	}

	return st.revision
}

// CacheStats snapshots the decision cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Authorize produces an allow/deny decision for the input. It never returns
// an error: a missing bundle, an undefined decision, and an evaluation
// failure all deny, with the cause carried in Decision.Reason (fail-closed).
//
// Concurrent callers that miss the cache on the same fingerprint are
// coalesced: the evaluator runs at most once per key in flight and every
// waiter shares its decision.
func (e *Engine) Authorize(ctx context.Context, in Input) Decision {
	key := in.fingerprint()

	v, _, _ := e.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if d, ok := e.cache.Get(key); ok {
			d.Cached = true

			return d, nil
		}

		d := e.evalFn(ctx, in)
		e.cache.Put(key, d)

		return d, nil
	})

	return v.(Decision)
}

func (e *Engine) evaluate(ctx context.Context, in Input) Decision {
	st := e.state.Load()
	if st == nil {
		return Decision{Reason: "no policy bundle loaded"}
	}

	d := Decision{
		PolicyID:      st.policyID,
		PolicyVersion: st.revision,
	}

	start := time.Now()
	rs, err := st.query.Eval(ctx, rego.EvalInput(in.Document()))
	d.EvalTime = time.Since(start)

	if err != nil {
		d.Reason = "policy evaluation failed: " + err.Error()
		e.logger.Error("policy evaluation failed",
			"error", err,
			"operation", in.OperationID,
			"caller", in.Caller.String(),
		)

		return d
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		d.Reason = "policy decision undefined"

		return d
	}

	switch v := rs[0].Expressions[0].Value.(type) {
	case bool:
		d.Allowed = v
	case map[string]any:
		allowed, _ := v["allow"].(bool)
		d.Allowed = allowed
		if reason, ok := v["reason"].(string); ok {
			d.Reason = reason
		}
	default:
		d.Reason = fmt.Sprintf("policy produced %T, want boolean or document", v)
	}

	if !d.Allowed && d.Reason == "" {
		d.Reason = "denied by policy"
	}

	return d
}
