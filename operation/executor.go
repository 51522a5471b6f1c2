package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
	"github.com/mark3labs/apiguard/transport"
)

const (
	tracerName      = "github.com/mark3labs/apiguard/operation"
	requestIDHeader = "X-Request-Id"
)

// State is a step of one execution.
type State int

const (
	PayloadValidation State = iota
	MockCheck
	Transport
	ResponseResolution
	ResponseValidation
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case PayloadValidation:
		return "payload-validation"
	case MockCheck:
		return "mock-check"
	case Transport:
		return "transport"
	case ResponseResolution:
		return "response-resolution"
	case ResponseValidation:
		return "response-validation"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Executor runs operations against one base URL. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	base      *url.URL
	transport transport.Transport
	validator *model.Validator
	global    []catalog.Response
	headers   map[string]string
	logger    *slog.Logger
	tracer    trace.Tracer
	requestID func() string
	onState   func(op string, s State)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTransport sets the transport. Defaults to transport.NewHTTP().
func WithTransport(t transport.Transport) ExecutorOption {
	return func(e *Executor) { e.transport = t }
}

// WithValidator sets the validator, and with it the event channel.
func WithValidator(v *model.Validator) ExecutorOption {
	return func(e *Executor) { e.validator = v }
}

// WithGlobalResponses adds responses resolved for every operation after the
// operation's own declarations.
func WithGlobalResponses(rs ...catalog.Response) ExecutorOption {
	return func(e *Executor) { e.global = append(e.global, rs...) }
}

// WithHeaders sets headers sent on every call. Operation headers win.
func WithHeaders(h map[string]string) ExecutorOption {
	return func(e *Executor) {
		for k, v := range h {
			e.headers[k] = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracerProvider sets the provider spans are created from. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// WithRequestID replaces the generator of X-Request-Id values. A generator
// returning "" sends no header.
func WithRequestID(gen func() string) ExecutorOption {
	return func(e *Executor) { e.requestID = gen }
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(op string, s State)) ExecutorOption {
	return func(e *Executor) { e.onState = fn }
}

// NewExecutor returns an executor for base.
func NewExecutor(base *url.URL, opts ...ExecutorOption) *Executor {
	if base == nil {
		base = &url.URL{}
	}
	e := &Executor{
		base:      base,
		transport: transport.NewHTTP(),
		headers:   make(map[string]string),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.validator == nil {
		e.validator = model.NewValidator(nil, model.WithLogger(e.logger))
	}
	return e
}

// BaseURL returns a copy of the base URL.
func (e *Executor) BaseURL() *url.URL {
	u := *e.base
	return &u
}

// Validator returns the validator used for payloads and responses.
func (e *Executor) Validator() *model.Validator { return e.validator }

// WithBase returns a copy of e rooted at base.
func (e *Executor) WithBase(base *url.URL) *Executor {
	cp := *e
	cp.base = base
	return &cp
}

type call struct {
	name      string
	method    string
	url       *url.URL
	model     *model.Model
	payload   func() any
	headers   map[string]string
	responses []catalog.Response
	mock      MockFunc
}

func (e *Executor) run(ctx context.Context, c call, vopts model.Options) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "apiguard "+c.label(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("apiguard.operation", c.name),
			attribute.String("http.request.method", c.method),
			attribute.String("url.full", c.url.Redacted()),
		))
	defer span.End()

	fail := func(err error) (*Result, error) {
		e.enter(ctx, c.name, Failed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.enter(ctx, c.name, PayloadValidation)
	var payload any
	if c.payload != nil {
		payload = c.payload()
		if c.model != nil {
			validated, err := e.validator.Validate(ctx, c.model.WithOperation(c.name), payload, vopts)
			if err != nil {
				return fail(err)
			}
			payload = validated
		}
	}

	e.enter(ctx, c.name, MockCheck)
	if c.mock != nil {
		mocked, err := c.mock(ctx, c.url, payload)
		if err != nil {
			return fail(fmt.Errorf("%s: mock: %w", c.label(), err))
		}
		if mocked != nil {
			span.SetAttributes(attribute.Bool("apiguard.mocked", true), attribute.Int("http.response.status_code", mocked.Status))
			e.enter(ctx, c.name, Done)
			return &Result{
				Status:  mocked.Status,
				Data:    mocked.Data,
				Body:    mocked.Data,
				Headers: toHeader(mocked.Headers),
				Mocked:  true,
			}, nil
		}
	}

	cat := catalog.Catalog{Operation: c.name, Declared: c.responses, Global: e.global}

	e.enter(ctx, c.name, Transport)
	res, err := e.transport.Do(ctx, &transport.Request{
		Method:       c.method,
		URL:          c.url,
		Body:         payload,
		Headers:      e.mergeHeaders(c.headers),
		AcceptStatus: cat.Accepts,
	})
	if err != nil {
		var rerr transport.ResponseError
		if errors.As(err, &rerr) && rerr.Response() != nil {
			embedded := rerr.Response()
			err = &apierrors.TransportError{
				Operation: c.name,
				Status:    embedded.Status,
				Body:      embedded.Data,
				Message: fmt.Sprintf("MODEL NOT FOUND - Unexpected response received from operation %s: %d - %s",
					c.name, embedded.Status, schema.Stringify(embedded.Data)),
				Cause: err,
			}
		}
		return fail(err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.Status))

	e.enter(ctx, c.name, ResponseResolution)
	resolved, err := cat.Resolve(res.Status, res.Data)
	if err != nil {
		return fail(err)
	}

	e.enter(ctx, c.name, ResponseValidation)
	data, err := e.validator.Validate(ctx, resolved.Model, res.Data, vopts)
	if err != nil {
		return fail(err)
	}

	e.enter(ctx, c.name, Done)
	return &Result{Status: res.Status, Data: data, Body: data, Headers: res.Headers}, nil
}

func (e *Executor) enter(ctx context.Context, op string, s State) {
	e.logger.DebugContext(ctx, "operation state", "operation", op, "state", s.String())
	if e.onState != nil {
		e.onState(op, s)
	}
}

func (e *Executor) mergeHeaders(op map[string]string) map[string]string {
	merged := make(map[string]string, len(e.headers)+len(op)+1)
	for k, v := range e.headers {
		merged[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range op {
		merged[http.CanonicalHeaderKey(k)] = v
	}
	if _, set := merged[requestIDHeader]; !set && e.requestID != nil {
		if id := e.requestID(); id != "" {
			merged[requestIDHeader] = id
		}
	}
	return merged
}

func (c call) label() string {
	if c.name != "" {
		return c.name
	}
	if c.url == nil {
		return c.method
	}
	return c.method + " " + c.url.Path
}

func toHeader(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
