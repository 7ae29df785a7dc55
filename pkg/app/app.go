// Package app wires configuration, persistence and the domain services into
// one application context shared by the HTTP surface and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sevaconnect-backend/pkg/alerts"
	"sevaconnect-backend/pkg/config"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/lifecycle"
	"sevaconnect-backend/pkg/logging"
	"sevaconnect-backend/pkg/notify"
	"sevaconnect-backend/pkg/push"
	"sevaconnect-backend/pkg/remotesync"
	"sevaconnect-backend/pkg/session"
	"sevaconnect-backend/pkg/store"
	"sevaconnect-backend/pkg/utils"
)

// outboxSize bounds the number of remote writes waiting to be replayed.
const outboxSize = 256

// flushTimeout bounds how long Close spends replaying queued remote writes.
const flushTimeout = 10 * time.Second

// App is the application context.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	KV            database.KeyValueStore
	Store         *store.Store
	Alerts        *alerts.Refresher
	Hub           *push.Hub
	Notifications *notify.Emitter
	Lifecycle     *lifecycle.Controller
	Sessions      *session.Manager
	JWT           *utils.JWTService

	// Mirror and Outbox are nil unless REMOTE_SYNC is enabled.
	Mirror *remotesync.Mirror
	Outbox *remotesync.Outbox

	ownsKV bool

	mu    sync.Mutex
	stops []func()
}

// Option customises New.
type Option func(*options)

type options struct {
	kv      database.KeyValueStore
	logger  *slog.Logger
	storeOp store.Options
	remote  remotesync.DataService
	pooled  bool
}

// WithKV uses kv instead of opening the configured backend. The caller keeps
// ownership of kv.
func WithKV(kv database.KeyValueStore) Option {
	return func(o *options) { o.kv = kv }
}

// WithLogger overrides the configured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStoreOptions overrides the store clock and id generator.
func WithStoreOptions(so store.Options) Option {
	return func(o *options) { o.storeOp = so }
}

// WithRemote uses svc as the remote data service when REMOTE_SYNC is on.
func WithRemote(svc remotesync.DataService) Option {
	return func(o *options) { o.remote = svc }
}

// WithPooledConnection reuses the process-wide connection from
// database.GetDatabase. Used by the serverless entry point.
func WithPooledConnection() Option {
	return func(o *options) { o.pooled = true }
}

// New loads all persisted state and builds the services over it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logging.New(cfg)
	}

	a := &App{Config: cfg, Logger: logger}

	kv := o.kv
	if kv == nil {
		dbCfg := database.ConfigFrom(cfg, logger)
		var err error
		if o.pooled {
			kv, err = database.GetDatabase(dbCfg)
		} else {
			kv, err = database.NewDatabase(dbCfg)
			a.ownsKV = true
		}
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StorageBackend, err)
		}
	}
	a.KV = kv

	storeOpts := o.storeOp
	storeOpts.Prefix = cfg.KeyPrefix
	storeOpts.Logger = logger
	s, err := store.Open(ctx, kv, storeOpts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load collections: %w", err)
	}
	a.Store = s

	a.Hub = push.NewHub(logger, originChecker(cfg))
	a.Notifications = notify.NewEmitter(s, a.Hub, logger)

	lcOpts := []lifecycle.Option{lifecycle.WithLogger(logger)}
	var svc remotesync.DataService
	if cfg.RemoteSync {
		svc = o.remote
		if svc == nil {
			svc = database.NewSupabaseDatabase(cfg.SupabaseURL, cfg.SupabaseKey, logger)
		}
		a.Outbox = remotesync.NewOutbox(svc, outboxSize, logger)
		lcOpts = append(lcOpts, lifecycle.WithReplicator(a.Outbox))
	}
	a.Lifecycle = lifecycle.New(s, a.Notifications, lcOpts...)

	if svc != nil {
		a.Mirror = remotesync.NewMirror(svc, logger,
			remotesync.WithPending(a.Outbox),
			remotesync.WithExclusive(a.Lifecycle.Exclusive))
		remotesync.Bind(a.Mirror, s.NGOs)
		remotesync.Bind(a.Mirror, s.Donations)
		remotesync.Bind(a.Mirror, s.DonorDonations)
		remotesync.Bind(a.Mirror, s.Donors)
		remotesync.Bind(a.Mirror, s.Volunteers)
	}

	a.Alerts = alerts.NewRefresher(s, alerts.Thresholds{
		LowStock:     cfg.LowStockThreshold,
		ExpiryWindow: cfg.ExpiryWindow,
	}, logger)
	stopAlerts, err := a.Alerts.Start(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("derive alerts: %w", err)
	}
	a.addStop(stopAlerts)

	a.Sessions = session.NewManager(kv, cfg.KeyPrefix)
	if _, err := a.Sessions.Load(ctx); err != nil {
		logger.Warn("ignoring unreadable CLI session", "error", err)
	}
	a.JWT = utils.NewJWTService(cfg.JWTSecret)

	if err := a.seedAdmin(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("✅ SevaConnect initialised",
		"backend", cfg.StorageBackend,
		"remote_sync", cfg.RemoteSync,
		"ngos", s.NGOs.Len(),
		"donations", s.Donations.Len(),
		"inventory", s.Inventory.Len(),
	)
	return a, nil
}

// StartSync subscribes to the store change feed and, with REMOTE_SYNC, to
// the remote tables. Subscriptions end when ctx is done or on Close.
func (a *App) StartSync(ctx context.Context) error {
	stopWatch, err := a.Store.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("watch store: %w", err)
	}
	a.addStop(stopWatch)

	if a.Mirror != nil {
		stopMirror, err := a.Mirror.Start(ctx)
		if err != nil {
			return fmt.Errorf("start remote mirror: %w", err)
		}
		a.addStop(stopMirror)
	}
	return nil
}

// RunOutbox replays local writes to the remote service until ctx is done.
// Without REMOTE_SYNC it blocks until ctx is done.
func (a *App) RunOutbox(ctx context.Context) error {
	if a.Outbox == nil {
		<-ctx.Done()
		return nil
	}
	return a.Outbox.Run(ctx)
}

func (a *App) addStop(fn func()) {
	a.mu.Lock()
	a.stops = append(a.stops, fn)
	a.mu.Unlock()
}

// Close stops subscriptions, flushes the outbox and closes the store
// connection when New opened it.
func (a *App) Close() error {
	a.mu.Lock()
	stops := a.stops
	a.stops = nil
	a.mu.Unlock()

	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		a.Outbox.Flush(ctx)
		cancel()
	}
	if a.ownsKV && a.KV != nil {
		return a.KV.Close()
	}
	return nil
}

func originChecker(cfg *config.Config) func(r *http.Request) bool {
	if len(cfg.AllowedOrigins) == 0 || cfg.AllowedOrigins[0] == "*" {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range cfg.AllowedOrigins {
			if allowed == origin {
				return true
			}
		}
		return false
	}
}
