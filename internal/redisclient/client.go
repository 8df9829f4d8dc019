package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"review-cache/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InvalidationChannel carries cache invalidations between instances
const InvalidationChannel = "review-cache:invalidations"

// Invalidation asks every other instance to drop a product slice. An empty
// product id means the whole cache.
type Invalidation struct {
	ProductID string    `json:"product_id"`
	Origin    string    `json:"origin"`
	SentAt    time.Time `json:"sent_at"`
}

// InvalidationHandler receives invalidations published by other instances
type InvalidationHandler func(ctx context.Context, inv Invalidation)

type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing redis client
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, logger: util.GetLogger()}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:review:%s", key)
}

// ClaimIdempotencyKey stores the key if it is not already present. It returns
// false when the key was claimed before.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, idempotencyKey(key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// ReleaseIdempotencyKey frees a key so the submission can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// PublishInvalidation broadcasts a product invalidation
func (c *Client) PublishInvalidation(ctx context.Context, productID, origin string) error {
	payload, err := json.Marshal(Invalidation{
		ProductID: productID,
		Origin:    origin,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}

	if err := c.rdb.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// SubscribeInvalidations delivers invalidations to handler until ctx is
// cancelled. It returns once the subscription is confirmed; delivery runs in
// its own goroutine.
func (c *Client) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	pubsub := c.rdb.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var inv Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					c.logger.Warn("Dropping malformed invalidation", zap.Error(err))
					continue
				}
				handler(ctx, inv)
			}
		}
	}()

	return nil
}
