package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracefood/internal/core"
)

// DefaultQueueKey is the Redis list that receives payment intents.
const DefaultQueueKey = "tracefood:payouts"

// Commander is the subset of the go-redis client used by RedisQueue.
type Commander interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

var _ Commander = (*redis.Client)(nil)

// RedisConfig configures the connection used by NewRedisClient.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisQueue appends intents as JSON to a Redis list for an external payout
// worker to consume.
type RedisQueue struct {
	client Commander
	key    string
}

// NewRedisQueue wraps client; an empty key uses DefaultQueueKey.
func NewRedisQueue(client Commander, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Key reports the list name.
func (q *RedisQueue) Key() string { return q.key }

// Dispatch pushes the intent to the tail of the list.
func (q *RedisQueue) Dispatch(ctx context.Context, intent core.PaymentIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent %s: %w", intent.ID, err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue intent %s: %w", intent.ID, err)
	}
	return nil
}

// Pending returns the queued intents oldest first.
func (q *RedisQueue) Pending(ctx context.Context) ([]core.PaymentIntent, error) {
	raw, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", q.key, err)
	}
	out := make([]core.PaymentIntent, 0, len(raw))
	for i, item := range raw {
		var intent core.PaymentIntent
		if err := json.Unmarshal([]byte(item), &intent); err != nil {
			return nil, fmt.Errorf("decode queue entry %d: %w", i, err)
		}
		out = append(out, intent)
	}
	return out, nil
}

// Len reports the queue depth.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
