package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDatabase Redis 键值存储实现，变更通过 pub/sub 广播
type RedisDatabase struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisDatabase 创建Redis存储实例
func NewRedisDatabase(addr, password string, db int, logger *slog.Logger) (*RedisDatabase, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return newRedisFromClient(rdb, logger), nil
}

func newRedisFromClient(rdb *redis.Client, logger *slog.Logger) *RedisDatabase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisDatabase{rdb: rdb, logger: logger}
}

// Get 读取键
func (r *RedisDatabase) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set 写入键
func (r *RedisDatabase) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

// Remove 删除键
func (r *RedisDatabase) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

func (r *RedisDatabase) publish(ctx context.Context, key string) {
	if err := r.rdb.Publish(ctx, NotifyChannel, key).Err(); err != nil {
		r.logger.Warn("redis publish failed", "key", key, "error", err)
	}
}

// Watch 订阅变更频道
func (r *RedisDatabase) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	sub := r.rdb.Subscribe(ctx, NotifyChannel)
	// Receive blocks until the subscription is confirmed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", NotifyChannel, err)
	}

	go func() {
		for msg := range sub.Channel() {
			if msg.Payload == key {
				fn()
			}
		}
	}()
	return stopWith(ctx, func() { sub.Close() }), nil
}

// HealthCheck 健康检查
func (r *RedisDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (r *RedisDatabase) Close() error {
	return r.rdb.Close()
}
