package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"tracefood/internal/core"
)

var (
	// ErrQueueFull is returned when the async buffer has no free slot.
	ErrQueueFull = errors.New("settlement: queue full")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("settlement: dispatcher closed")
)

// DefaultQueueSize bounds the async buffer.
const DefaultQueueSize = 256

type job struct {
	ctx    context.Context
	intent core.PaymentIntent
}

// Async hands intents to a worker goroutine that forwards them to the wrapped
// dispatcher, retrying failures with a fixed backoff.
type Async struct {
	next     core.IntentDispatcher
	logger   core.Logger
	attempts int
	backoff  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

// AsyncOption customizes an Async dispatcher.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	size     int
	logger   core.Logger
	attempts int
	backoff  time.Duration
}

// WithQueueSize sets the buffer capacity.
func WithQueueSize(n int) AsyncOption {
	return func(c *asyncConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithLogger routes delivery failures to logger.
func WithLogger(logger core.Logger) AsyncOption {
	return func(c *asyncConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry sets the delivery attempts per intent and the pause between them.
func WithRetry(attempts int, backoff time.Duration) AsyncOption {
	return func(c *asyncConfig) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// NewAsync starts the worker.
func NewAsync(next core.IntentDispatcher, opts ...AsyncOption) *Async {
	cfg := asyncConfig{size: DefaultQueueSize, logger: nopLogger{}, attempts: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	a := &Async{
		next:     next,
		logger:   cfg.logger,
		attempts: cfg.attempts,
		backoff:  cfg.backoff,
		queue:    make(chan job, cfg.size),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Dispatch enqueues without blocking.
func (a *Async) Dispatch(ctx context.Context, intent core.PaymentIntent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- job{ctx: context.WithoutCancel(ctx), intent: intent}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of queued intents.
func (a *Async) Pending() int { return len(a.queue) }

// Close stops accepting intents and waits until the queue drains or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	var err error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		if err = a.next.Dispatch(j.ctx, j.intent); err == nil {
			return
		}
		if errors.Is(err, ErrAlreadySettled) {
			break
		}
		if attempt < a.attempts && a.backoff > 0 {
			time.Sleep(a.backoff)
		}
	}
	a.logger.Error("payment intent delivery failed", "intent_id", j.intent.ID, "lot_id", j.intent.LotID, "recipient", j.intent.Recipient, "error", err)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
