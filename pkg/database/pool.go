package database

import (
	"sync"
	"time"
)

// DatabasePool 进程级存储连接缓存（Vercel 函数实例之间复用）
type DatabasePool struct {
	instance KeyValueStore
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取存储连接（单例模式 + 连接池）
func GetDatabase(config DatabaseConfig) (KeyValueStore, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	logger := config.logger()

	if globalPool != nil && !shouldRecreateConnection(globalPool, config) {
		globalPool.mu.Lock()
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()
		logger.Debug("♻️  Reusing existing store connection", "backend", config.Backend)
		return globalPool.instance, nil
	}

	logger.Info("🔄 Creating new store connection", "backend", config.Backend)
	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
		globalPool = nil
	}

	instance, err := NewDatabase(config)
	if err != nil {
		return nil, err
	}
	globalPool = &DatabasePool{
		instance: instance,
		config:   config,
		lastUsed: time.Now(),
	}
	return instance, nil
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	if !configEquals(pool.config, newConfig) {
		newConfig.logger().Info("🔄 Store configuration changed, recreating connection")
		return true
	}

	// 检查连接是否过期（30分钟）
	pool.mu.RLock()
	expired := time.Since(pool.lastUsed) > 30*time.Minute
	pool.mu.RUnlock()
	if expired {
		newConfig.logger().Info("⏰ Store connection expired, recreating")
		return true
	}

	if err := pool.instance.HealthCheck(); err != nil {
		newConfig.logger().Warn("❌ Store health check failed, recreating", "error", err)
		return true
	}

	return false
}

// configEquals 比较两个存储配置是否相等（忽略 Logger）
func configEquals(a, b DatabaseConfig) bool {
	return a.Backend == b.Backend &&
		a.DataDir == b.DataDir &&
		a.BadgerDir == b.BadgerDir &&
		a.PostgresDSN == b.PostgresDSN &&
		a.RedisAddress == b.RedisAddress &&
		a.RedisPassword == b.RedisPassword &&
		a.RedisDB == b.RedisDB &&
		a.SupabaseURL == b.SupabaseURL &&
		a.SupabaseKey == b.SupabaseKey
}

// ResetPool 关闭并丢弃缓存的连接
func ResetPool() {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
	}
	globalPool = nil
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	globalPool.mu.RLock()
	lastUsed := globalPool.lastUsed
	globalPool.mu.RUnlock()

	return map[string]interface{}{
		"status":    "connected",
		"last_used": lastUsed.Format(time.RFC3339),
		"age":       time.Since(lastUsed).String(),
		"config": map[string]interface{}{
			"backend":      globalPool.config.Backend,
			"has_postgres": globalPool.config.PostgresDSN != "",
			"has_redis":    globalPool.config.RedisAddress != "",
			"has_supabase": globalPool.config.SupabaseURL != "",
		},
	}
}

// IsVercelEnvironment 检查是否运行在 Vercel / Lambda 中
func IsVercelEnvironment() bool {
	return isVercelEnvironment()
}
