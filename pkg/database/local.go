package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// LocalDatabase 本地文件存储实现，每个键一个 JSON 文件
type LocalDatabase struct {
	dataDir string
	logger  *slog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watchers map[string][]*localWatch
	nextID   int
}

type localWatch struct {
	id int
	fn func()
}

// NewLocalDatabase 创建本地存储实例
func NewLocalDatabase(dataDir string, logger *slog.Logger) *LocalDatabase {
	if dataDir == "" {
		dataDir = "./data"
	}
	if logger == nil {
		logger = slog.Default()
	}

	// 尝试创建数据目录，只读文件系统（Vercel）中退回临时目录
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("failed to create data directory, falling back to temp dir", "dir", dataDir, "error", err)
		dataDir = filepath.Join(os.TempDir(), "sevaconnect-data")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			logger.Warn("failed to create temp data directory", "dir", dataDir, "error", err)
		}
	}

	return &LocalDatabase{
		dataDir:  dataDir,
		logger:   logger,
		watchers: make(map[string][]*localWatch),
	}
}

// Get 读取键
func (db *LocalDatabase) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(db.pathFor(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set 写入键（先写临时文件再重命名，避免读到半个文件）
func (db *LocalDatabase) Set(ctx context.Context, key string, value []byte) error {
	target := db.pathFor(key)
	tmp, err := os.CreateTemp(db.dataDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

// Remove 删除键
func (db *LocalDatabase) Remove(ctx context.Context, key string) error {
	err := os.Remove(db.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Watch 通过 fsnotify 监听其他进程对同一数据目录的写入
func (db *LocalDatabase) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create file watcher: %w", err)
		}
		if err := w.Add(db.dataDir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch data directory %s: %w", db.dataDir, err)
		}
		db.watcher = w
		go db.dispatch(w)
	}

	name := filepath.Base(db.pathFor(key))
	db.nextID++
	lw := &localWatch{id: db.nextID, fn: fn}
	db.watchers[name] = append(db.watchers[name], lw)

	return stopWith(ctx, func() { db.unwatch(name, lw.id) }), nil
}

func (db *LocalDatabase) unwatch(name string, id int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	list := db.watchers[name]
	for i, w := range list {
		if w.id == id {
			db.watchers[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(db.watchers[name]) == 0 {
		delete(db.watchers, name)
	}
}

func (db *LocalDatabase) dispatch(w *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".tmp-") {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			db.mu.Lock()
			fns := make([]func(), 0, len(db.watchers[name]))
			for _, lw := range db.watchers[name] {
				fns = append(fns, lw.fn)
			}
			db.mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			db.logger.Warn("file watcher error", "error", err)
		}
	}
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	if _, err := os.Stat(db.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", db.dataDir)
	}
	return nil
}

// Close 关闭文件监听
func (db *LocalDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.watcher != nil {
		err := db.watcher.Close()
		db.watcher = nil
		return err
	}
	return nil
}

// pathFor 键 "sevaconnect:needs" 对应文件 "sevaconnect_needs.json"
func (db *LocalDatabase) pathFor(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(db.dataDir, safe+".json")
}
