package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracefood/internal/core"
)

// Sink names the terminal settlement target.
type Sink string

const (
	SinkLedger Sink = "ledger"
	SinkRedis  Sink = "redis"
	SinkLog    Sink = "log"
)

// Config selects the sink and the async delivery parameters.
type Config struct {
	Sink      Sink
	QueueSize int
	Attempts  int
	Backoff   time.Duration
	QueueKey  string
	Redis     RedisConfig
}

// Pipeline is the assembled settlement chain: an Async front feeding the
// configured sink. Each accepted intent is logged once, outside the retry loop.
type Pipeline struct {
	*Async
	Ledger *Ledger
	Queue  *RedisQueue
	client *redis.Client
	log    LogSink
}

// Open builds the pipeline described by cfg.
func Open(ctx context.Context, cfg Config, logger core.Logger) (*Pipeline, error) {
	p := &Pipeline{}
	var sink core.IntentDispatcher
	switch cfg.Sink {
	case "", SinkLedger:
		p.Ledger = NewLedger()
		sink = p.Ledger
	case SinkRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		p.client = client
		p.Queue = NewRedisQueue(client, cfg.QueueKey)
		sink = p.Queue
	case SinkLog:
	default:
		return nil, fmt.Errorf("unknown settlement sink %s", cfg.Sink)
	}
	p.start(sink, cfg, logger)
	return p, nil
}

func (p *Pipeline) start(sink core.IntentDispatcher, cfg Config, logger core.Logger) {
	p.log = LogSink{Logger: logger}
	p.Async = NewAsync(Fanout{sink}, WithQueueSize(cfg.QueueSize), WithRetry(cfg.Attempts, cfg.Backoff), WithLogger(logger))
}

// Dispatch enqueues the intent and logs it once it is accepted.
func (p *Pipeline) Dispatch(ctx context.Context, intent core.PaymentIntent) error {
	if err := p.Async.Dispatch(ctx, intent); err != nil {
		return err
	}
	return p.log.Dispatch(ctx, intent)
}

// Close drains the async queue and releases the Redis connection.
func (p *Pipeline) Close(ctx context.Context) error {
	err := p.Async.Close(ctx)
	if p.client != nil {
		err = errors.Join(err, p.client.Close())
	}
	return err
}
