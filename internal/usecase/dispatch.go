package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/sqlgenmcp/internal/domain"
)

const instrumentationName = "github.com/i2y/sqlgenmcp/internal/usecase"

// Attribute keys recorded on dispatch spans and metrics.
const (
	attrOperation = attribute.Key("sqlgenmcp.operation")
	attrCallID    = attribute.Key("sqlgenmcp.call_id")
	attrOutcome   = attribute.Key("sqlgenmcp.outcome")
)

const outcomeOK = "ok"

// internalErrorMessage is the only detail an InternalError exposes to callers.
const internalErrorMessage = "internal error"

// Dispatcher resolves calls against the registry, validates their arguments
// and invokes the matching handler. It holds no mutable state.
type Dispatcher struct {
	registry OperationRegistry
	logger   *slog.Logger
	tracer   trace.Tracer
	calls    metric.Int64Counter
}

type dispatcherConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithTracerProvider sets the provider used for dispatch spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(c *dispatcherConfig) { c.tracerProvider = tp }
}

// WithMeterProvider sets the provider used for dispatch metrics. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) DispatcherOption {
	return func(c *dispatcherConfig) { c.meterProvider = mp }
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(registry OperationRegistry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.With("usecase", "Dispatch")
	calls, err := cfg.meterProvider.Meter(instrumentationName).Int64Counter(
		"sqlgenmcp.dispatch.calls",
		metric.WithDescription("Number of dispatched operation calls by outcome."),
	)
	if err != nil {
		log.Warn("Failed to create dispatch counter, metrics disabled", slog.Any("error", err))
		calls = noop.Int64Counter{}
	}

	return &Dispatcher{
		registry: registry,
		logger:   log,
		tracer:   cfg.tracerProvider.Tracer(instrumentationName),
		calls:    calls,
	}
}

// HandleCall resolves, validates and executes a single call. Every outcome,
// including unknown operations and handler panics, is returned as a CallResult.
func (d *Dispatcher) HandleCall(ctx context.Context, req domain.CallRequest) (result domain.CallResult) {
	callID := uuid.NewString()
	log := d.logger.With(slog.String("operation", req.OperationName), slog.String("call_id", callID))
	ctx, span := d.tracer.Start(ctx, "dispatch "+req.OperationName,
		trace.WithAttributes(attrOperation.String(req.OperationName), attrCallID.String(callID)))
	defer func() {
		d.record(ctx, span, req.OperationName, result)
		span.End()
	}()

	log.Info("Dispatching call")

	// 1. Resolve the operation
	reg, err := d.registry.Resolve(req.OperationName)
	if err != nil {
		log.Warn("Operation not found", slog.Any("error", err))
		return domain.Fail(domain.ErrorKindMethodNotFound, fmt.Sprintf("unknown operation %q", req.OperationName))
	}

	// 2. Validate arguments against the declared input shape
	if err := domain.Validate(reg.Operation.InputShape, req.Arguments); err != nil {
		log.Warn("Arguments failed shape validation", slog.Any("error", err))
		return domain.Fail(domain.ErrorKindInvalidParams, fmt.Sprintf("invalid arguments for %s: %v", req.OperationName, err))
	}
	args, ok := req.Arguments.(map[string]any)
	if !ok {
		if req.Arguments != nil {
			log.Warn("Arguments are not an object", slog.String("kind", domain.KindOf(req.Arguments)))
			return domain.Fail(domain.ErrorKindInvalidParams,
				fmt.Sprintf("invalid arguments for %s: expected object, got %s", req.OperationName, domain.KindOf(req.Arguments)))
		}
		args = map[string]any{}
	}

	// 3. Invoke the handler
	content, err := invoke(ctx, reg.Handler, args)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			log.Warn("Handler rejected arguments", slog.Any("error", err))
			return domain.Fail(domain.ErrorKindInvalidParams, err.Error())
		}
		log.Error("Handler failed", slog.Any("error", err))
		span.RecordError(err)
		return domain.Fail(domain.ErrorKindInternalError, internalErrorMessage)
	}

	// 4. Wrap the output
	log.Info("Call succeeded", slog.Int("content_blocks", len(content)))
	return domain.Success(append([]domain.Content(nil), content...)...)
}

func invoke(ctx context.Context, h OperationHandler, args map[string]any) (content []domain.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, args)
}

func (d *Dispatcher) record(ctx context.Context, span trace.Span, operation string, result domain.CallResult) {
	outcome := outcomeOK
	if result.Failure != nil {
		outcome = string(result.Failure.Kind)
		span.SetStatus(codes.Error, result.Failure.Message)
	}
	span.SetAttributes(attrOutcome.String(outcome))
	d.calls.Add(ctx, 1, metric.WithAttributes(attrOperation.String(operation), attrOutcome.String(outcome)))
}
