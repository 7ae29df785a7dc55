// Package store keeps every SevaConnect entity collection in memory, backed
// by a durable key-value store.
package store

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/models"
)

// Collection names. Each is persisted under "<prefix>:<name>".
const (
	NeedsCollection         = "needs"
	InventoryCollection     = "inventory"
	DonationsCollection     = "donations"
	DonorDonationCollection = "donor_donations"
	AlertsCollection        = "alerts"
	VolunteerCollection     = "volunteer_requests"
	NGOCollection           = "ngo_registrations"
	DonorCollection         = "donors"
	NotificationCollection  = "notifications"
	CredentialCollection    = "credentials"
)

// Options tunes a Store. Zero values pick production defaults.
type Options struct {
	Prefix string
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Store aggregates every entity collection.
type Store struct {
	Needs          *Collection[models.Need]
	Inventory      *Collection[models.InventoryItem]
	Donations      *Collection[models.Donation]
	DonorDonations *Collection[models.DonorDonation]
	Alerts         *Collection[models.Alert]
	Volunteers     *Collection[models.VolunteerRequest]
	NGOs           *Collection[models.NGORegistration]
	Donors         *Collection[models.Donor]
	Notifications  *Collection[models.Notification]
	Credentials    *Collection[models.Credential]

	env      env
	reloader map[string]func(context.Context) error
}

// New builds a Store without loading anything.
func New(kv database.KeyValueStore, opts Options) *Store {
	e := env{
		kv:       kv,
		prefix:   opts.Prefix,
		validate: NewValidator(),
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if e.prefix == "" {
		e.prefix = "sevaconnect"
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = newUUIDv7
	}

	s := &Store{env: e}
	s.Needs = newCollection(e, Schema[models.Need]{
		Name:      NeedsCollection,
		ID:        models.Need.RecordID,
		Stamp:     (*models.Need).Stamp,
		Immutable: []string{"id", "ngo_id", "created_at"},
	})
	s.Inventory = newCollection(e, Schema[models.InventoryItem]{
		Name:      InventoryCollection,
		ID:        models.InventoryItem.RecordID,
		Stamp:     (*models.InventoryItem).Stamp,
		Immutable: []string{"id", "ngo_id", "added_at"},
	})
	s.Donations = newCollection(e, Schema[models.Donation]{
		Name:      DonationsCollection,
		ID:        models.Donation.RecordID,
		Stamp:     (*models.Donation).Stamp,
		Immutable: []string{"id", "ngo_id", "donated_at"},
		Managed:   []string{"status"},
	})
	s.DonorDonations = newCollection(e, Schema[models.DonorDonation]{
		Name:      DonorDonationCollection,
		ID:        models.DonorDonation.RecordID,
		Stamp:     (*models.DonorDonation).Stamp,
		Immutable: []string{"id", "donor_id", "ngo_id", "date"},
		Managed:   []string{"status"},
	})
	s.Alerts = newCollection(e, Schema[models.Alert]{
		Name:      AlertsCollection,
		ID:        models.Alert.RecordID,
		Stamp:     (*models.Alert).Stamp,
		Immutable: []string{"id", "ngo_id", "type", "source_id", "created_at"},
	})
	s.Volunteers = newCollection(e, Schema[models.VolunteerRequest]{
		Name:      VolunteerCollection,
		ID:        models.VolunteerRequest.RecordID,
		Stamp:     (*models.VolunteerRequest).Stamp,
		Immutable: []string{"id", "donor_id", "ngo_id", "request_date"},
		Managed:   []string{"status", "scheduled_date"},
	})
	s.NGOs = newCollection(e, Schema[models.NGORegistration]{
		Name:      NGOCollection,
		ID:        models.NGORegistration.RecordID,
		Stamp:     (*models.NGORegistration).Stamp,
		Immutable: []string{"id", "submitted_at"},
		Managed:   []string{"status", "rejection_reason"},
		Unique: uniqueEmail(func(r models.NGORegistration) string {
			return r.Email
		}),
	})
	s.Donors = newCollection(e, Schema[models.Donor]{
		Name:      DonorCollection,
		ID:        models.Donor.RecordID,
		Stamp:     (*models.Donor).Stamp,
		Immutable: []string{"id", "created_at"},
		Unique:    uniqueEmail(func(d models.Donor) string { return d.Email }),
	})
	s.Notifications = newCollection(e, Schema[models.Notification]{
		Name:      NotificationCollection,
		ID:        models.Notification.RecordID,
		Stamp:     (*models.Notification).Stamp,
		Immutable: []string{"id", "type", "title", "message", "timestamp", "related_id"},
	})
	s.Credentials = newCollection(e, Schema[models.Credential]{
		Name:      CredentialCollection,
		ID:        models.Credential.RecordID,
		Stamp:     (*models.Credential).Stamp,
		Immutable: []string{"id", "subject_id", "role", "created_at"},
		Unique:    uniqueEmail(func(c models.Credential) string { return c.Email }),
	})

	s.reloader = map[string]func(context.Context) error{
		s.Needs.Key():          s.Needs.Reload,
		s.Inventory.Key():      s.Inventory.Reload,
		s.Donations.Key():      s.Donations.Reload,
		s.DonorDonations.Key(): s.DonorDonations.Reload,
		s.Alerts.Key():         s.Alerts.Reload,
		s.Volunteers.Key():     s.Volunteers.Reload,
		s.NGOs.Key():           s.NGOs.Reload,
		s.Donors.Key():         s.Donors.Reload,
		s.Notifications.Key():  s.Notifications.Reload,
		s.Credentials.Key():    s.Credentials.Reload,
	}
	return s
}

// Open builds a Store and loads every collection from kv.
func Open(ctx context.Context, kv database.KeyValueStore, opts Options) (*Store, error) {
	s := New(kv, opts)
	for key, reload := range s.reloader {
		if err := reload(ctx); err != nil {
			return nil, err
		}
		s.env.logger.Debug("collection loaded", "key", key)
	}
	return s, nil
}

// Keys returns every collection key.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.reloader))
	for k := range s.reloader {
		keys = append(keys, k)
	}
	return keys
}

// Reload re-reads the collection persisted under key. Unknown keys are ignored.
func (s *Store) Reload(ctx context.Context, key string) error {
	if reload, ok := s.reloader[key]; ok {
		return reload(ctx)
	}
	return nil
}

// WatchAll subscribes to the KV change feed of every collection and reloads
// on each notification. The returned function stops all watches.
func (s *Store) WatchAll(ctx context.Context) (stop func(), err error) {
	var stops []func()
	stopAll := func() {
		for _, fn := range stops {
			fn()
		}
	}
	for key, reload := range s.reloader {
		key, reload := key, reload
		fn, err := s.env.kv.Watch(ctx, key, func() {
			if err := reload(ctx); err != nil {
				s.env.logger.Warn("reload after change notification failed", "key", key, "error", err)
			}
		})
		if err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, fn)
	}
	return stopAll, nil
}

// UseInventory consumes amount units of an inventory item, clamping at zero.
func (s *Store) UseInventory(ctx context.Context, id string, amount int) (models.InventoryItem, error) {
	if amount <= 0 {
		return models.InventoryItem{}, apperr.Validation("amount", "must be greater than 0")
	}
	return s.Inventory.Mutate(ctx, id, func(it *models.InventoryItem) error {
		it.Quantity -= amount
		if it.Quantity < 0 {
			it.Quantity = 0
		}
		return nil
	})
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.env.now() }

// NewValidator returns a validator reporting JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f)
	})
	return v
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func uniqueEmail[T any](email func(T) string) func([]T, T) error {
	return func(others []T, candidate T) error {
		want := strings.ToLower(strings.TrimSpace(email(candidate)))
		for _, o := range others {
			if strings.ToLower(strings.TrimSpace(email(o))) == want {
				return apperr.Duplicate("email", email(candidate))
			}
		}
		return nil
	}
}
