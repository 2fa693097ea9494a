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

package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"archimedes.dev/archimedes/container"
	"archimedes.dev/archimedes/contract"
	"archimedes.dev/archimedes/errors"
	"archimedes.dev/archimedes/identity"
	"archimedes.dev/archimedes/router"
	"archimedes.dev/archimedes/telemetry/semconv"
	"archimedes.dev/archimedes/validation"
)

// Pipeline drives every request through the fixed stage order and into the
// registered operation handler. It is an http.Handler; hosts mount it on
// their server of choice.
//
// Registration is two-phase: handlers are registered while the service
// boots, the registry freezes at the first request (or an explicit Freeze),
// and registration afterwards fails.
type Pipeline struct {
	resolver *contract.Resolver
	service  string

	logger    *slog.Logger
	recorder  Recorder
	container *container.Container

	trustIncomingID bool
	idGenerator     IDGenerator

	identityChain *identity.Chain
	authorizer    Authorizer

	reqValidator  *validation.SchemaValidator
	reqEnforce    bool
	respValidator *validation.SchemaValidator
	respEnforce   bool

	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	maxBodyBytes   int64
	requestTimeout time.Duration

	mu         sync.Mutex
	handlers   map[string]Handler
	frozen     atomic.Bool
	freezeOnce sync.Once

	entry Handler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithService sets the service name passed to the policy engine as part of
// the authorization input.
func WithService(name string) Option {
	return func(p *Pipeline) { p.service = name }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRecorder sets the metrics sink. Defaults to a no-op recorder.
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithContainer attaches the dependency container handlers resolve services
// from.
func WithContainer(c *container.Container) Option {
	return func(p *Pipeline) { p.container = c }
}

// WithTrustIncomingRequestID controls whether a client-supplied
// X-Request-ID that parses as a UUID is adopted. Default true.
func WithTrustIncomingRequestID(trust bool) Option {
	return func(p *Pipeline) { p.trustIncomingID = trust }
}

// WithIDGenerator replaces the request-id generator (default UUIDv7).
func WithIDGenerator(gen IDGenerator) Option {
	return func(p *Pipeline) { p.idGenerator = gen }
}

// WithULIDRequestIDs mints ULIDs instead of UUIDv7 request ids.
func WithULIDRequestIDs() Option {
	return func(p *Pipeline) { p.idGenerator = generateULID }
}

// WithIdentityChain sets the credential sources for the identity stage.
// Without one every caller is anonymous.
func WithIdentityChain(chain *identity.Chain) Option {
	return func(p *Pipeline) { p.identityChain = chain }
}

// WithAuthorizer sets the policy engine. Without one the authorization
// stage passes every request.
func WithAuthorizer(a Authorizer) Option {
	return func(p *Pipeline) { p.authorizer = a }
}

// WithRequestValidation enables request body validation. In enforce mode
// violations are rejected with 400; otherwise they are logged and counted.
func WithRequestValidation(v *validation.SchemaValidator, enforce bool) Option {
	return func(p *Pipeline) {
		p.reqValidator = v
		p.reqEnforce = enforce
	}
}

// WithResponseValidation enables response body validation. Violations never
// change the response; enforce mode raises the log severity to error.
func WithResponseValidation(v *validation.SchemaValidator, enforce bool) Option {
	return func(p *Pipeline) {
		p.respValidator = v
		p.respEnforce = enforce
	}
}

// WithTracer enables the tracing stage.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithPropagator replaces the W3C trace-context propagator.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(p *Pipeline) { p.propagator = prop }
}

// WithMaxBodyBytes caps request bodies. Bodies over the cap are rejected
// with 413. Default 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Pipeline) { p.maxBodyBytes = n }
}

// WithRequestTimeout bounds handler execution. A handler that overruns the
// deadline yields 504 while it finishes in the background. Zero disables
// the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.requestTimeout = d }
}

// New builds a pipeline over a contract resolver.
func New(resolver *contract.Resolver, opts ...Option) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New(errors.KindConfiguration, "pipeline requires a contract resolver")
	}

	p := &Pipeline{
		resolver:        resolver,
		logger:          slog.Default(),
		recorder:        NopRecorder{},
		trustIncomingID: true,
		maxBodyBytes:    DefaultMaxBodyBytes,
		handlers:        make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.entry = compose([]Stage{
		errorNormStage(p.logger),
		telemetryStage(p.recorder, p.logger),
		requestIDStage(p.trustIncomingID, p.idGenerator),
		tracingStage(p.tracer, p.propagator),
		identityStage(p.identityChain, p.logger),
		authorizeStage(p.authorizer, p.service, p.recorder),
		requestValidationStage(p.reqValidator, p.reqEnforce, p.recorder, p.logger),
		responseValidationStage(p.respValidator, p.respEnforce, p.recorder, p.logger),
	}, p.dispatch)

	return p, nil
}

// MustNew is New, panicking on error.
func MustNew(resolver *contract.Resolver, opts ...Option) *Pipeline {
	p, err := New(resolver, opts...)
	if err != nil {
		panic(err)
	}

	return p
}

// Resolver returns the contract resolver the pipeline routes with.
func (p *Pipeline) Resolver() *contract.Resolver { return p.resolver }

// Register binds a handler to a contract operation. It fails when the
// operation is not in the contract, when the operation already has a
// handler, or when the registry has frozen.
func (p *Pipeline) Register(operationID string, h Handler) error {
	if h == nil {
		return errors.Newf(errors.KindHandlerRegistration, "nil handler for operation %q", operationID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen.Load() {
		return errors.Newf(errors.KindHandlerRegistration, "registry is frozen: cannot register %q", operationID)
	}
	if p.resolver.Artifact().OperationByID(operationID) == nil {
		return errors.Newf(errors.KindHandlerRegistration, "operation %q is not in the contract", operationID)
	}
	if _, dup := p.handlers[operationID]; dup {
		return errors.Newf(errors.KindHandlerRegistration, "operation %q already has a handler", operationID)
	}
	p.handlers[operationID] = h

	return nil
}

// MustRegister is Register, panicking on error.
func (p *Pipeline) MustRegister(operationID string, h Handler) {
	if err := p.Register(operationID, h); err != nil {
		panic(err)
	}
}

// Registered reports whether the operation has a handler.
func (p *Pipeline) Registered(operationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.handlers[operationID]

	return ok
}

// Freeze seals the handler registry. ServeHTTP freezes lazily on the first
// request; hosts that want late registrations to fail fast call it when
// boot completes.
func (p *Pipeline) Freeze() {
	p.freezeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.frozen.Store(true)
	})
}

// Frozen reports whether the registry has been sealed.
func (p *Pipeline) Frozen() bool { return p.frozen.Load() }

// ServeHTTP resolves the request against the contract and runs it through
// the stage chain. Exactly one response is written per request.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.Freeze()

	view := NewRequestView(r, p.maxBodyBytes)
	view.container = p.container
	mc := NewMiddlewareContext()

	res, err := p.resolver.Resolve(r.Method, r.URL.Path)
	if err != nil {
		view.resolutionErr = err
	} else {
		view.setResolution(res)
		mc.SetOperationID(res.Operation.ID)
	}

	resp := p.entry(mc, view)
	if err := resp.Write(w); err != nil {
		p.logger.LogAttrs(r.Context(), slog.LevelWarn, "response write failed",
			slog.String(semconv.RequestID, mc.RequestID()),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch is the terminal of the stage chain. It seals the middleware
// context, rejects requests the stages let through but no handler can take
// (unknown routes, oversized or unreadable bodies, unregistered
// operations), and invokes the handler under the configured deadline.
func (p *Pipeline) dispatch(mc *MiddlewareContext, view *RequestView) *Response {
	mc.seal()

	if err := view.ResolutionError(); err != nil {
		var mna *router.MethodNotAllowedError
		if stderrors.As(err, &mna) {
			resp := Envelope(http.StatusMethodNotAllowed,
				errors.CodeForStatus(http.StatusMethodNotAllowed),
				err.Error(), mc.RequestID())
			resp.SetHeader("Allow", strings.Join(mna.Allow, ", "))

			return resp
		}

		return Envelope(http.StatusNotFound,
			errors.CodeForStatus(http.StatusNotFound),
			err.Error(), mc.RequestID())
	}

	if view.BodyTooLarge() {
		return Envelope(http.StatusRequestEntityTooLarge,
			errors.CodeForStatus(http.StatusRequestEntityTooLarge),
			fmt.Sprintf("request body exceeds %d bytes", p.maxBodyBytes),
			mc.RequestID())
	}
	if err := view.BodyError(); err != nil {
		return Envelope(http.StatusBadRequest,
			errors.CodeForStatus(http.StatusBadRequest),
			"request body could not be read", mc.RequestID())
	}

	h := p.handlers[view.Operation().ID]
	if h == nil {
		return Envelope(http.StatusInternalServerError,
			errors.KindHandlerFailure.Code(),
			fmt.Sprintf("no handler registered for operation %q", view.Operation().ID),
			mc.RequestID())
	}

	return p.invoke(mc, view, h)
}

// invoke runs the handler, racing it against the request deadline when one
// is configured. On deadline the pipeline answers 504 and the abandoned
// handler finishes in the background against its canceled context. A client
// disconnect is not a deadline: the handler's response is awaited and
// written into the void.
func (p *Pipeline) invoke(mc *MiddlewareContext, view *RequestView, h Handler) *Response {
	if p.requestTimeout <= 0 {
		return p.safeInvoke(mc, view, h)
	}

	ctx, cancel := context.WithTimeout(view.Context(), p.requestTimeout)
	defer cancel()
	view.SetContext(ctx)

	done := make(chan *Response, 1)
	go func() {
		done <- p.safeInvoke(mc, view, h)
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.logger.LogAttrs(ctx, slog.LevelError, "handler deadline exceeded",
				slog.String(semconv.RequestID, mc.RequestID()),
				slog.String(semconv.OperationID, mc.OperationID()),
				slog.Duration("timeout", p.requestTimeout),
			)

			return Envelope(http.StatusGatewayTimeout,
				errors.CodeForStatus(http.StatusGatewayTimeout),
				"handler exceeded the request deadline", mc.RequestID())
		}

		return <-done
	}
}

// safeInvoke converts handler panics into 500 responses so one broken
// operation cannot take the process down.
func (p *Pipeline) safeInvoke(mc *MiddlewareContext, view *RequestView, h Handler) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.LogAttrs(view.Context(), slog.LevelError, "handler panic",
				slog.String(semconv.RequestID, mc.RequestID()),
				slog.String(semconv.OperationID, mc.OperationID()),
				slog.String("panic", fmt.Sprintf("%v", r)),
			)
			if span := trace.SpanFromContext(view.Context()); span.SpanContext().IsValid() {
				span.SetAttributes(
					attribute.Bool("exception.escaped", true),
					attribute.String("exception.type", fmt.Sprintf("%T", r)),
					attribute.String("exception.message", fmt.Sprintf("%v", r)),
				)
				if err, ok := r.(error); ok {
					span.RecordError(err)
				}
			}

			resp = Envelope(http.StatusInternalServerError,
				errors.CodeForStatus(http.StatusInternalServerError),
				"internal server error", mc.RequestID())
		}
	}()

	resp = h(mc, view)
	if resp == nil {
		resp = Envelope(http.StatusInternalServerError,
			errors.KindHandlerFailure.Code(),
			"handler returned no response", mc.RequestID())
	}

	return resp
}
