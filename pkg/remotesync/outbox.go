package remotesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sevaconnect-backend/pkg/metrics"
)

type opKind int

const (
	opCreate opKind = iota
	opStatus
)

type op struct {
	kind   opKind
	table  string
	id     string
	status string
	record interface{}
	extra  map[string]interface{}
}

// Outbox replays committed local writes against the remote data service in
// the background. Local state is authoritative; a write that keeps failing is
// logged and dropped, and the next mirror refresh reconciles.
type Outbox struct {
	svc      DataService
	logger   *slog.Logger
	queue    chan op
	attempts int
	backoff  time.Duration

	pending sync.WaitGroup

	mu       sync.Mutex
	seq      uint64
	inflight map[string]int
	touched  map[string]uint64
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithRetry sets how many times an operation is attempted and the delay
// before the first retry. The delay doubles on every retry.
func WithRetry(attempts int, backoff time.Duration) OutboxOption {
	return func(o *Outbox) {
		if attempts > 0 {
			o.attempts = attempts
		}
		o.backoff = backoff
	}
}

// NewOutbox creates an outbox holding up to size queued operations.
func NewOutbox(svc DataService, size int, logger *slog.Logger, opts ...OutboxOption) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 256
	}
	o := &Outbox{
		svc:      svc,
		logger:   logger,
		queue:    make(chan op, size),
		attempts: 3,
		backoff:  500 * time.Millisecond,
		inflight: make(map[string]int),
		touched:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Created queues a remote insert.
func (o *Outbox) Created(ctx context.Context, table string, record interface{}) {
	var id string
	if r, ok := record.(interface{ RecordID() string }); ok {
		id = r.RecordID()
	}
	o.enqueue(op{kind: opCreate, table: table, id: id, record: record})
}

// StatusChanged queues a remote status update.
func (o *Outbox) StatusChanged(ctx context.Context, table, id, status string, extra map[string]interface{}) {
	o.enqueue(op{kind: opStatus, table: table, id: id, status: status, extra: extra})
}

func (o *Outbox) enqueue(p op) {
	o.pending.Add(1)
	o.track(p, 1)
	select {
	case o.queue <- p:
		metrics.OutboxPending.Inc()
	default:
		o.track(p, -1)
		o.pending.Done()
		o.logger.Warn("outbox full, dropping remote write", "table", p.table, "id", p.id)
	}
}

func (o *Outbox) done(p op) {
	o.track(p, -1)
	metrics.OutboxPending.Dec()
	o.pending.Done()
}

func (o *Outbox) track(p op, delta int) {
	if p.id == "" {
		return
	}
	k := p.table + "/" + p.id
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.touched[k] = o.seq
	o.inflight[k] += delta
	if o.inflight[k] <= 0 {
		delete(o.inflight, k)
	}
}

// Seq returns a cursor for Held.
func (o *Outbox) Seq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

// Held reports whether the record may be newer locally than on the remote
// side: it still has a queued write, or one was queued or applied after the
// cursor since was taken.
func (o *Outbox) Held(table, id string, since uint64) bool {
	k := table + "/" + id
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight[k] > 0 || o.touched[k] > since
}

// Run processes queued operations until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-o.queue:
			o.apply(ctx, p)
			o.done(p)
		}
	}
}

// Flush applies whatever is still queued on the calling goroutine. It is
// meant for shutdown, after Run has returned.
func (o *Outbox) Flush(ctx context.Context) {
	for {
		select {
		case p := <-o.queue:
			o.apply(ctx, p)
			o.done(p)
		default:
			return
		}
	}
}

// Wait blocks until every queued operation has been processed. Run or Flush
// must be draining the queue.
func (o *Outbox) Wait() {
	o.pending.Wait()
}

func (o *Outbox) apply(ctx context.Context, p op) {
	delay := o.backoff
	var err error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		switch p.kind {
		case opCreate:
			_, err = o.svc.Create(ctx, p.table, p.record)
		case opStatus:
			err = o.svc.UpdateStatus(ctx, p.table, p.id, p.status, p.extra)
		}
		if err == nil {
			return
		}
		if attempt == o.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	o.logger.Error("remote write failed, dropping", "table", p.table, "id", p.id, "attempts", o.attempts, "error", err)
}
