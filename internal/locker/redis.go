package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 30 * time.Second
	retryInterval = 25 * time.Millisecond
)

// RedisLocker serializes mutations across service replicas with SET-NX
// leases. The TTL bounds how long a crashed holder can wedge a key.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	release := func() {
		// Only delete our own lease; an expired lock may belong to someone
		// else by now.
		val, err := l.client.Get(context.Background(), redisKey).Result()
		if err == nil && val == token {
			l.client.Del(context.Background(), redisKey)
		}
	}
	return release, nil
}
