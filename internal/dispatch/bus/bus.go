// Package bus orchestrates the dispatch of Commands and Queries through the
// shared pipeline: resolve handler, install correlation, authorize, validate,
// (queries) consult the result cache, execute with a timeout, (queries) store
// the result, record metrics. Each dispatch yields exactly one terminal
// outcome: a typed result or a single structured *Failure.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relay/internal/dispatch/authorization"
	"relay/internal/dispatch/cache"
	"relay/internal/dispatch/message"
	"relay/internal/dispatch/metrics"
	"relay/internal/dispatch/registry"
	"relay/internal/dispatch/validation"
	"relay/pkg/correlation"
	"relay/pkg/platform/circuit"
	"relay/pkg/platform/sentinel"
)

const (
	kindCommand = "command"
	kindQuery   = "query"

	// DefaultCacheTTL applies to cacheable queries with no per-type or
	// per-query override.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultTimeout bounds the execution stage when no per-type override is
	// configured.
	DefaultTimeout = 30 * time.Second
)

// core is the pipeline shared by CommandBus and QueryBus. Each bus owns its
// own registry and descriptor set; the services are stateless and may be
// shared across buses.
type core struct {
	registry    *registry.Registry
	descriptors *descriptorSet
	authorizer  *authorization.Service
	validator   *validation.Service
	cache       cache.Store // nil for the command bus
	// cacheBreaker sheds cache traffic while the backend is failing so a dead
	// Redis does not add a round-trip to every query.
	cacheBreaker *circuit.Breaker
	metrics      *metrics.Service
	log          *slog.Logger
	tracer       trace.Tracer

	defaultTTL     time.Duration
	defaultTimeout time.Duration
}

// Option configures a bus at construction time.
type Option func(*core)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *core) { c.log = log }
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Service) Option {
	return func(c *core) { c.metrics = m }
}

// WithAuthorizer replaces the default authorization service.
func WithAuthorizer(a *authorization.Service) Option {
	return func(c *core) { c.authorizer = a }
}

// WithValidator replaces the default validation service.
func WithValidator(v *validation.Service) Option {
	return func(c *core) { c.validator = v }
}

// WithDefaultCacheTTL overrides the system-wide cache TTL.
func WithDefaultCacheTTL(ttl time.Duration) Option {
	return func(c *core) { c.defaultTTL = ttl }
}

// WithDefaultTimeout overrides the system-wide execution timeout.
// Zero disables the timeout wrapper entirely.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *core) { c.defaultTimeout = d }
}

// WithTracer replaces the default OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *core) { c.tracer = t }
}

func newCore(cacheStore cache.Store, opts ...Option) *core {
	c := &core{
		descriptors:    newDescriptorSet(),
		cache:          cacheStore,
		cacheBreaker:   circuit.New("result-cache"),
		log:            slog.New(slog.DiscardHandler),
		tracer:         otel.Tracer("relay/dispatch"),
		defaultTTL:     DefaultCacheTTL,
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.registry = registry.New(c.log)
	if c.authorizer == nil {
		c.authorizer = authorization.NewService(nil, c.log)
	}
	if c.validator == nil {
		c.validator = validation.NewService(c.log)
	}
	return c
}

// register binds a handler and its descriptor atomically from the caller's
// point of view: the descriptor is visible before the handler binding.
func (c *core) register(h registry.Handler, desc Descriptor) error {
	if h == nil {
		return fmt.Errorf("register: handler is required")
	}
	if desc.Name == "" {
		desc.Name = h.MessageName()
	}
	if desc.Name != h.MessageName() {
		return fmt.Errorf("register: descriptor %q does not match handler %q", desc.Name, h.MessageName())
	}
	if err := desc.validate(); err != nil {
		return err
	}
	c.descriptors.put(desc)
	return c.registry.Register(h)
}

func (c *core) unregister(name string) {
	c.registry.Unregister(name)
	c.descriptors.remove(name)
}

// dispatch runs the full pipeline. q is non-nil for query dispatches.
func (c *core) dispatch(ctx context.Context, env message.Envelope, kind string, q *message.Query) (any, error) {
	start := time.Now()
	c.begin()
	defer c.end()

	ctx, span := c.tracer.Start(ctx, "dispatch "+env.MessageName(), trace.WithAttributes(
		attribute.String("dispatch.message", env.MessageName()),
		attribute.String("dispatch.kind", kind),
		attribute.String("dispatch.id", env.MessageID().String()),
	))
	defer span.End()

	// Correlation is carried on the per-dispatch context chain and therefore
	// cannot survive past this function; Clear makes the guarantee explicit
	// even if a stage hands the chain context to long-lived code.
	defer func() { _ = correlation.Clear(ctx) }()

	// RESOLVING
	handler, err := c.registry.Find(env.MessageName())
	if err != nil {
		return c.fail(span, start, env, kind, &Failure{
			Kind:      KindHandlerNotFound,
			MessageID: env.MessageID(),
			Message: fmt.Sprintf("no handler for %q; registered: [%s]",
				env.MessageName(), strings.Join(c.registry.Names(), ", ")),
			Cause: err,
		})
	}
	desc := c.descriptors.get(env.MessageName())

	// Correlation is installed immediately after resolution so the handler
	// and any nested dispatch it triggers see the same id.
	corrID := env.CorrelationID()
	if corrID == "" {
		corrID = env.MessageID().String()
	}
	ctx = correlation.WithID(ctx, corrID)
	if !env.Initiator().IsZero() {
		ctx = correlation.WithInitiator(ctx, env.Initiator())
	}
	span.SetAttributes(attribute.String("dispatch.correlation_id", corrID))

	// AUTHORIZING
	if f := ctxFailure(ctx, env); f != nil {
		return c.fail(span, start, env, kind, f)
	}
	span.AddEvent("authorizing")
	verdict, err := c.authorizer.Authorize(ctx, env, desc.Authorization)
	if err != nil {
		if f := ctxFailure(ctx, env); f != nil {
			return c.fail(span, start, env, kind, f)
		}
		return c.fail(span, start, env, kind, &Failure{
			Kind:      KindInternalError,
			MessageID: env.MessageID(),
			Message:   "authorization source failed",
			Cause:     err,
		})
	}
	if !verdict.Allowed {
		return c.fail(span, start, env, kind, &Failure{
			Kind:       KindAuthorizationDenied,
			MessageID:  env.MessageID(),
			Message:    fmt.Sprintf("access denied by %s source", verdict.Source),
			Violations: verdict.Violations,
		})
	}

	// VALIDATING
	if f := ctxFailure(ctx, env); f != nil {
		return c.fail(span, start, env, kind, f)
	}
	span.AddEvent("validating")
	if err := c.validator.Validate(ctx, env, desc.Rules, c.businessValidator(desc, env, handler)); err != nil {
		var vErr *validation.Error
		if errors.As(err, &vErr) {
			violations := make([]string, len(vErr.Violations))
			for i, v := range vErr.Violations {
				violations[i] = v.String()
			}
			return c.fail(span, start, env, kind, &Failure{
				Kind:       KindValidationFailed,
				MessageID:  env.MessageID(),
				Message:    "validation failed",
				Violations: violations,
				Cause:      vErr,
			})
		}
		if f := ctxFailure(ctx, env); f != nil {
			return c.fail(span, start, env, kind, f)
		}
		return c.fail(span, start, env, kind, &Failure{
			Kind:      KindInternalError,
			MessageID: env.MessageID(),
			Message:   "business validation failed unexpectedly",
			Cause:     err,
		})
	}

	// CACHE_CHECK (cacheable queries only)
	var cacheKey string
	if q != nil && q.IsCacheable() && c.cache != nil {
		cacheKey = q.CacheKey()
		span.AddEvent("cache_check")
		if result, ok := c.cacheGet(ctx, desc, cacheKey); ok {
			span.SetAttributes(attribute.Bool("dispatch.cache_hit", true))
			return c.succeed(span, start, env, kind, result, true)
		}
	}

	// EXECUTING
	if f := ctxFailure(ctx, env); f != nil {
		return c.fail(span, start, env, kind, f)
	}
	span.AddEvent("executing")
	timeout := desc.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := invoke(execCtx, handler, env)
	if err != nil {
		return c.fail(span, start, env, kind, c.classifyExecError(ctx, execCtx, env, err))
	}

	// CACHE_STORE (only on execution success; failures here never fail the dispatch)
	if cacheKey != "" {
		span.AddEvent("cache_store")
		c.cachePut(ctx, desc, q, cacheKey, result)
	}

	// COMPLETING
	return c.succeed(span, start, env, kind, result, false)
}

// businessValidator resolves phase-2 validation: descriptor override first,
// then the envelope itself, then the handler.
func (c *core) businessValidator(desc Descriptor, env message.Envelope, handler registry.Handler) validation.BusinessValidator {
	if desc.Business != nil {
		return desc.Business
	}
	if bv, ok := env.(validation.BusinessValidator); ok {
		return bv
	}
	if bv, ok := handler.(validation.BusinessValidator); ok {
		return bv
	}
	return nil
}

// cacheGet consults the result cache. Backend errors are recovered locally:
// logged, counted against the breaker, and treated as a miss.
func (c *core) cacheGet(ctx context.Context, desc Descriptor, key string) (any, bool) {
	if c.cacheBreaker.IsOpen() {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// A clean miss still proves the backend is healthy.
			c.cacheBreaker.RecordSuccess()
			return nil, false
		}
		c.log.Warn("cache get failed, treating as miss",
			"message", desc.Name, "key", key, "failure", string(KindCacheBackendError), "error", err)
		if _, change := c.cacheBreaker.RecordFailure(); change.Opened {
			c.log.Error("cache backend circuit opened, bypassing cache")
		}
		return nil, false
	}
	c.cacheBreaker.RecordSuccess()

	result, err := decodeResult(desc, raw)
	if err != nil {
		c.log.Warn("discarding undecodable cache entry",
			"message", desc.Name, "key", key, "error", err)
		_ = c.cache.Evict(ctx, key)
		return nil, false
	}
	return result, true
}

// cachePut stores an execution result. Store failures are logged only.
func (c *core) cachePut(ctx context.Context, desc Descriptor, q *message.Query, key string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("cache store skipped, result not encodable",
			"message", desc.Name, "key", key, "error", err)
		return
	}

	ttl := q.TTLOverride()
	if ttl == 0 {
		ttl = desc.CacheTTL
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if c.cacheBreaker.IsOpen() {
		return
	}
	if err := c.cache.Put(ctx, key, raw, ttl); err != nil {
		c.log.Warn("cache store failed",
			"message", desc.Name, "key", key, "ttl", ttl, "failure", string(KindCacheBackendError), "error", err)
		if _, change := c.cacheBreaker.RecordFailure(); change.Opened {
			c.log.Error("cache backend circuit opened, bypassing cache")
		}
		return
	}
	c.cacheBreaker.RecordSuccess()
}

func decodeResult(desc Descriptor, raw []byte) (any, error) {
	if desc.NewResult == nil {
		return json.RawMessage(raw), nil
	}
	result := desc.NewResult()
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyExecError maps an execution error to the failure taxonomy. The
// outer context distinguishes caller cancellation from the per-dispatch
// execution timeout.
func (c *core) classifyExecError(ctx, execCtx context.Context, env message.Envelope, err error) *Failure {
	var p *panicError
	if errors.As(err, &p) {
		c.log.Error("handler panicked", "message", env.MessageName(), "panic", p.value)
		return &Failure{
			Kind:      KindInternalError,
			MessageID: env.MessageID(),
			Message:   fmt.Sprintf("handler panicked: %v", p.value),
			Cause:     err,
		}
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &Failure{
			Kind:      KindCancelled,
			MessageID: env.MessageID(),
			Message:   "dispatch abandoned by caller",
			Cause:     err,
		}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return &Failure{
			Kind:      KindTimeout,
			MessageID: env.MessageID(),
			Message:   "execution exceeded configured timeout",
			Cause:     err,
		}
	case errors.Is(err, context.Canceled):
		return &Failure{
			Kind:      KindCancelled,
			MessageID: env.MessageID(),
			Message:   "dispatch abandoned by caller",
			Cause:     err,
		}
	default:
		return &Failure{
			Kind:      KindHandlerError,
			MessageID: env.MessageID(),
			Message:   err.Error(),
			Cause:     err,
		}
	}
}

// ctxFailure reports caller cancellation or chain deadline between stages.
func ctxFailure(ctx context.Context, env message.Envelope) *Failure {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &Failure{
			Kind:      KindCancelled,
			MessageID: env.MessageID(),
			Message:   "dispatch abandoned by caller",
			Cause:     ctx.Err(),
		}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Failure{
			Kind:      KindTimeout,
			MessageID: env.MessageID(),
			Message:   "dispatch deadline exceeded",
			Cause:     ctx.Err(),
		}
	default:
		return nil
	}
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// invoke runs the handler with panic containment so one misbehaving handler
// cannot take down the dispatcher.
func invoke(ctx context.Context, h registry.Handler, env message.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &panicError{value: r}
		}
	}()
	return h.Handle(ctx, env)
}

func (c *core) succeed(span trace.Span, start time.Time, env message.Envelope, kind string, result any, cacheHit bool) (any, error) {
	span.SetStatus(codes.Ok, "")
	c.observe(func(m *metrics.Service) {
		m.RecordSuccess(env.MessageName(), kind, time.Since(start), cacheHit)
	})
	return result, nil
}

func (c *core) fail(span trace.Span, start time.Time, env message.Envelope, kind string, f *Failure) (any, error) {
	span.SetStatus(codes.Error, string(f.Kind))
	span.RecordError(f)
	c.log.Info("dispatch failed",
		"message", env.MessageName(),
		"kind", kind,
		"failure", string(f.Kind),
		"violations", f.Violations,
	)
	c.observe(func(m *metrics.Service) {
		m.RecordFailure(env.MessageName(), kind, time.Since(start), string(f.Kind))
	})
	return nil, f
}

func (c *core) begin() {
	c.observe(func(m *metrics.Service) { m.Begin() })
}

func (c *core) end() {
	c.observe(func(m *metrics.Service) { m.End() })
}

// observe shields the pipeline from a misbehaving metrics sink: recording
// must never fail or alter a dispatch.
func (c *core) observe(fn func(m *metrics.Service)) {
	if c.metrics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("metrics sink panicked", "panic", r)
		}
	}()
	fn(c.metrics)
}
