package cache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "validity:expiration:"

// Entries carry a TTL purely as a safety net against leaked keys; correctness
// relies on the explicit Invalidate calls from the store's write paths.
const entryTTL = 24 * time.Hour

// Redis is an ExpirationCache backed by a shared Redis instance.
type Redis struct {
	client *redis.Client
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, accountID string) (int64, bool) {
	raw, err := r.client.Get(ctx, keyPrefix+accountID).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("expiration cache read failed", "account_id", accountID, "err", err)
		}
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Redis) Set(ctx context.Context, accountID string, expirationTS int64) {
	if err := r.client.Set(ctx, keyPrefix+accountID, strconv.FormatInt(expirationTS, 10), entryTTL).Err(); err != nil {
		slog.Warn("expiration cache write failed", "account_id", accountID, "err", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, accountID string) {
	if err := r.client.Del(ctx, keyPrefix+accountID).Err(); err != nil {
		slog.Warn("expiration cache invalidation failed", "account_id", accountID, "err", err)
	}
}
