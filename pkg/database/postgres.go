package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed keys.
const NotifyChannel = "sevaconnect_kv"

// KVSchema creates the table backing the Postgres store.
const KVSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresDatabase PostgreSQL 键值存储实现
type PostgresDatabase struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger

	mu       sync.Mutex
	listener *pq.Listener
	watchers map[string]map[int]func()
	nextID   int
}

// NewPostgresDatabase 创建PostgreSQL存储实例
func NewPostgresDatabase(dsn string, logger *slog.Logger) (*PostgresDatabase, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	// 尝试多种连接策略来解决Vercel Lambda的IPv6问题
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn,
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			logger.Warn("postgres strategy failed to open", "strategy", i+1, "error", err)
			lastErr = err
			continue
		}

		// 连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			logger.Warn("postgres strategy failed to ping", "strategy", i+1, "error", err)
			db.Close()
			lastErr = err
			continue
		}

		logger.Info("✅ PostgreSQL connection established", "strategy", i+1)
		return newPostgresFromDB(db, strategy, logger), nil
	}

	return nil, fmt.Errorf("connect to postgres with all strategies: %w", lastErr)
}

func newPostgresFromDB(db *sql.DB, dsn string, logger *slog.Logger) *PostgresDatabase {
	return &PostgresDatabase{
		db:       db,
		dsn:      dsn,
		logger:   logger,
		watchers: make(map[string]map[int]func()),
	}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// Migrate 创建 kv_store 表
func (p *PostgresDatabase) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, KVSchema); err != nil {
		return fmt.Errorf("create kv_store: %w", err)
	}
	return nil
}

// Get 读取键
func (p *PostgresDatabase) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set 写入键并通知监听者
func (p *PostgresDatabase) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO kv_store (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `, key, string(value))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	p.notify(ctx, key)
	return nil
}

// Remove 删除键并通知监听者
func (p *PostgresDatabase) Remove(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	p.notify(ctx, key)
	return nil
}

// notify failures only delay other processes until their next reload
func (p *PostgresDatabase) notify(ctx context.Context, key string) {
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, key); err != nil {
		p.logger.Warn("pg_notify failed", "key", key, "error", err)
	}
}

// Watch 使用 LISTEN/NOTIFY 监听键变化
func (p *PostgresDatabase) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				p.logger.Warn("postgres listener event", "event", ev, "error", err)
			}
		})
		if err := listener.Listen(NotifyChannel); err != nil {
			listener.Close()
			return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
		}
		p.listener = listener
		go p.dispatch(listener)
	}

	p.nextID++
	id := p.nextID
	if p.watchers[key] == nil {
		p.watchers[key] = make(map[int]func())
	}
	p.watchers[key][id] = fn

	return stopWith(ctx, func() {
		p.mu.Lock()
		delete(p.watchers[key], id)
		p.mu.Unlock()
	}), nil
}

func (p *PostgresDatabase) dispatch(listener *pq.Listener) {
	for n := range listener.Notify {
		p.mu.Lock()
		var fns []func()
		if n == nil {
			// 重连后可能丢失通知，全部刷新
			for _, m := range p.watchers {
				for _, fn := range m {
					fns = append(fns, fn)
				}
			}
		} else {
			for _, fn := range p.watchers[n.Extra] {
				fns = append(fns, fn)
			}
		}
		p.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

// HealthCheck 健康检查
func (p *PostgresDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Close 关闭连接
func (p *PostgresDatabase) Close() error {
	p.mu.Lock()
	if p.listener != nil {
		p.listener.Close()
		p.listener = nil
	}
	p.mu.Unlock()
	return p.db.Close()
}
