package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

// BadgerConfig holds configuration for the embedded badger store.
type BadgerConfig struct {
	// Path is the directory for badger files. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// SyncWrites makes every Set durable before returning.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often to run value log GC. Zero disables it.
	GCInterval time.Duration
}

// DefaultBadgerConfig returns durable defaults.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerDatabase 嵌入式 badger 存储实现
type BadgerDatabase struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	once   sync.Once
}

// NewBadgerDatabase 打开 badger 数据库
func NewBadgerDatabase(cfg BadgerConfig) (*BadgerDatabase, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	bdb := &BadgerDatabase{db: db, logger: logger, stopGC: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go bdb.runGC(cfg.GCInterval)
	}
	return bdb, nil
}

func (b *BadgerDatabase) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing to collect
			if err := b.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log gc failed", "error", err)
			}
		case <-b.stopGC:
			return
		}
	}
}

// Get 读取键
func (b *BadgerDatabase) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set 写入键
func (b *BadgerDatabase) Set(ctx context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Remove 删除键
func (b *BadgerDatabase) Remove(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Watch 使用 badger 的订阅机制监听键变化
func (b *BadgerDatabase) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	match := []pb.Match{{Prefix: []byte(key)}}

	go func() {
		err := b.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			for _, kv := range kvs.Kv {
				if string(kv.Key) == key {
					fn()
					return nil
				}
			}
			return nil
		}, match)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("badger subscription ended", "key", key, "error", err)
		}
	}()
	return cancel, nil
}

// HealthCheck 健康检查
func (b *BadgerDatabase) HealthCheck() error {
	if b.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close 关闭数据库
func (b *BadgerDatabase) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stopGC)
		err = b.db.Close()
	})
	return err
}
