package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"sevaconnect-backend/pkg/config"
)

// KeyValueStore 持久化键值存储接口
// 每个实体集合作为一个键保存，值为序列化后的有序记录数组
type KeyValueStore interface {
	// Get 返回键对应的值；键不存在时 ok 为 false 且 err 为 nil
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove 删除键；键不存在不是错误
	Remove(ctx context.Context, key string) error

	// Watch invokes fn (no payload) whenever key is changed by any writer.
	// The returned function stops the watch; cancelling ctx does the same.
	Watch(ctx context.Context, key string, fn func()) (stop func(), err error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Backend       string
	DataDir       string
	BadgerDir     string
	PostgresDSN   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	SupabaseURL   string
	SupabaseKey   string
	Debug         bool
	Logger        *slog.Logger
}

// ConfigFrom 从应用配置构建数据库配置
func ConfigFrom(cfg *config.Config, logger *slog.Logger) DatabaseConfig {
	return DatabaseConfig{
		Backend:       cfg.StorageBackend,
		DataDir:       cfg.DataDir,
		BadgerDir:     cfg.BadgerDir,
		PostgresDSN:   cfg.PostgresDSN,
		RedisAddress:  cfg.RedisAddress,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SupabaseURL:   cfg.SupabaseURL,
		SupabaseKey:   cfg.SupabaseKey,
		Debug:         cfg.Debug,
		Logger:        logger,
	}
}

func (c DatabaseConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// NewDatabase 根据配置选择存储实现
func NewDatabase(config DatabaseConfig) (KeyValueStore, error) {
	logger := config.logger()

	switch config.Backend {
	case "", "file":
		logger.Info("🗂️  Using local file store", "dir", config.DataDir)
		return NewLocalDatabase(config.DataDir, logger), nil
	case "badger":
		logger.Info("🦡 Using embedded badger store", "dir", config.BadgerDir)
		bcfg := DefaultBadgerConfig()
		bcfg.Path = config.BadgerDir
		bcfg.Logger = logger
		db, err := NewBadgerDatabase(bcfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		logger.Info("🗄️  Using PostgreSQL store")
		db, err := NewPostgresDatabase(config.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "redis":
		logger.Info("🧰 Using Redis store", "address", config.RedisAddress)
		db, err := NewRedisDatabase(config.RedisAddress, config.RedisPassword, config.RedisDB, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "supabase":
		if isVercelEnvironment() {
			logger.Info("🚀 Using Supabase REST API (Vercel optimized)")
		} else {
			logger.Info("🚀 Using Supabase REST API")
		}
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Backend)
	}
}

// isVercelEnvironment 内部检查 Vercel 环境
func isVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}

// stopWith returns an idempotent stop that runs release once, when called or
// when ctx ends. The watcher goroutine exits on either.
func stopWith(ctx context.Context, release func()) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			release()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop
}
