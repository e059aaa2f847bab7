package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the service. Key/value
// pairs follow the message.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies block time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reads the wall clock.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating call.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every mutating call.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended exactly once with the operation's error.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// IntentDispatcher hands payment intents to the settlement layer. Errors are
// logged by the service and never surface to the caller.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, intent PaymentIntent) error
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, PaymentIntent) error { return nil }

// LotObserver is notified with the committed state of every mutated lot.
type LotObserver interface {
	LotChanged(ctx context.Context, lot FoodLot)
}

// ServiceOption customizes a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger     Logger
	clock      Clock
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	dispatcher IntentDispatcher
	observers  []LotObserver
	payout     Amount
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:     noopLogger{},
		clock:      ClockFunc(nil),
		audit:      noopAuditRecorder{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		dispatcher: noopDispatcher{},
		payout:     defaultPayout(),
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the block-time source.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating calls.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer used around every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithIntentDispatcher routes terminal payment intents to settlement.
func WithIntentDispatcher(dispatcher IntentDispatcher) ServiceOption {
	return func(o *serviceOptions) {
		if dispatcher != nil {
			o.dispatcher = dispatcher
		}
	}
}

// WithLotObserver registers an observer of committed lot changes.
func WithLotObserver(observer LotObserver) ServiceOption {
	return func(o *serviceOptions) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithPayoutAmount overrides the fixed originator payout.
func WithPayoutAmount(amount Amount) ServiceOption {
	return func(o *serviceOptions) {
		o.payout = amount
	}
}
