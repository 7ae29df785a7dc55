// Package remotesync keeps local collections in step with the remote data
// service: a Mirror pulls remote changes in, an Outbox pushes local ones out.
package remotesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sevaconnect-backend/pkg/store"
)

// DataService is the remote document database.
type DataService interface {
	FetchAll(ctx context.Context, table string) ([]json.RawMessage, error)
	Create(ctx context.Context, table string, record interface{}) (json.RawMessage, error)
	UpdateStatus(ctx context.Context, table, id, status string, extra map[string]interface{}) error
	// Subscribe calls fn, without payload, on every insert, update or delete.
	Subscribe(ctx context.Context, table string, fn func()) (stop func(), err error)
}

// Pending reports records whose local version the remote side may not
// reflect yet. The Outbox implements it.
type Pending interface {
	Seq() uint64
	Held(table, id string, since uint64) bool
}

type binding struct {
	table   string
	refresh func(ctx context.Context) error
}

// Mirror replaces local collections with the remote table contents each
// time the remote side reports a change. Records with local writes the
// remote has not caught up with keep their local version.
type Mirror struct {
	svc       DataService
	logger    *slog.Logger
	pending   Pending
	exclusive func(func() error) error

	mu       sync.Mutex
	bindings []binding
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithPending protects records p still holds from being overwritten.
func WithPending(p Pending) MirrorOption {
	return func(m *Mirror) { m.pending = p }
}

// WithExclusive runs every merge through fn, so it cannot interleave with
// a local commit whose remote write is not queued yet.
func WithExclusive(fn func(func() error) error) MirrorOption {
	return func(m *Mirror) { m.exclusive = fn }
}

// NewMirror creates a mirror with no bound collections.
func NewMirror(svc DataService, logger *slog.Logger, opts ...MirrorOption) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		svc:       svc,
		logger:    logger,
		exclusive: func(fn func() error) error { return fn() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mirror) cursor() uint64 {
	if m.pending == nil {
		return 0
	}
	return m.pending.Seq()
}

func (m *Mirror) held(table string, since uint64) func(id string) bool {
	return func(id string) bool {
		return m.pending != nil && m.pending.Held(table, id, since)
	}
}

// Bind mirrors the remote table named after col into col.
func Bind[T any](m *Mirror, col *store.Collection[T]) {
	table := col.Name()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, binding{
		table: table,
		refresh: func(ctx context.Context) error {
			since := m.cursor()
			rows, err := m.svc.FetchAll(ctx, table)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", table, err)
			}
			items := make([]T, 0, len(rows))
			for _, raw := range rows {
				var it T
				if err := json.Unmarshal(raw, &it); err != nil {
					m.logger.Warn("skipping malformed remote record", "table", table, "error", err)
					continue
				}
				items = append(items, it)
			}
			return m.exclusive(func() error {
				return col.ReplaceAllExcept(ctx, items, m.held(table, since))
			})
		},
	})
}

// Tables lists the bound table names.
func (m *Mirror) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b.table)
	}
	return out
}

// Refresh refetches one bound table.
func (m *Mirror) Refresh(ctx context.Context, table string) error {
	for _, b := range m.snapshot() {
		if b.table == table {
			return b.refresh(ctx)
		}
	}
	return fmt.Errorf("table %s is not mirrored", table)
}

// Start refetches every bound table and subscribes to their changes.
func (m *Mirror) Start(ctx context.Context) (stop func(), err error) {
	var stops []func()
	stopAll := func() {
		for _, fn := range stops {
			fn()
		}
	}

	for _, b := range m.snapshot() {
		b := b
		if err := b.refresh(ctx); err != nil {
			stopAll()
			return nil, err
		}
		unsub, err := m.svc.Subscribe(ctx, b.table, func() {
			if err := b.refresh(ctx); err != nil {
				m.logger.Warn("remote refresh failed", "table", b.table, "error", err)
			}
		})
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", b.table, err)
		}
		stops = append(stops, unsub)
		m.logger.Info("🔁 Mirroring remote table", "table", b.table)
	}
	return stopAll, nil
}

func (m *Mirror) snapshot() []binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]binding(nil), m.bindings...)
}
