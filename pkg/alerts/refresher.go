package alerts

import (
	"context"
	"log/slog"
	"sync"

	"sevaconnect-backend/pkg/metrics"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store"
)

// Refresher recomputes the alert collection whenever inventory or donations
// change.
type Refresher struct {
	store      *store.Store
	thresholds Thresholds
	logger     *slog.Logger

	mu sync.Mutex
}

// NewRefresher creates a refresher over s.
func NewRefresher(s *store.Store, th Thresholds, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{store: s, thresholds: th, logger: logger}
}

// Start subscribes to inventory and donation changes and runs one refresh.
func (r *Refresher) Start(ctx context.Context) (stop func(), err error) {
	onChange := func() {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn("alert refresh failed", "error", err)
		}
	}
	stopInventory := r.store.Inventory.OnChange(onChange)
	stopDonations := r.store.Donations.OnChange(onChange)
	stop = func() {
		stopInventory()
		stopDonations()
	}

	if _, err := r.Refresh(ctx); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

// Refresh derives the alert set from the current store contents and
// persists it when it differs from the stored set.
func (r *Refresher) Refresh(ctx context.Context) ([]models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.store.Alerts.List(ctx, nil)
	next := Derive(
		r.store.Now(),
		r.store.Inventory.List(ctx, nil),
		r.store.Donations.List(ctx, nil),
		previous,
		r.thresholds,
	)

	if !sameAlerts(previous, next) {
		if err := r.store.Alerts.ReplaceAll(ctx, next); err != nil {
			return nil, err
		}
		r.logger.Debug("alerts recomputed", "count", len(next))
	}

	for typ, n := range Count(next) {
		metrics.AlertsActive.WithLabelValues(string(typ)).Set(float64(n))
	}
	return next, nil
}

// MarkRead flags one alert as read. The flag survives later recomputes for
// as long as the alert's condition holds.
func (r *Refresher) MarkRead(ctx context.Context, id string) (models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Alerts.Mutate(ctx, id, func(a *models.Alert) error {
		a.IsRead = true
		return nil
	})
}

// ForNGO lists the alerts belonging to ngoID.
func (r *Refresher) ForNGO(ctx context.Context, ngoID string) []models.Alert {
	return r.store.Alerts.List(ctx, func(a models.Alert) bool { return a.NGOID == ngoID })
}

func sameAlerts(a, b []models.Alert) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].IsRead != b[i].IsRead || a[i].Message != b[i].Message ||
			a[i].NGOID != b[i].NGOID || !a[i].CreatedAt.Equal(b[i].CreatedAt) {
			return false
		}
	}
	return true
}
