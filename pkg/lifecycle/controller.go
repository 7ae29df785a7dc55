// Package lifecycle enforces the status machines of donations, volunteer
// requests and NGO registrations, and runs the side effects attached to them.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/metrics"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store"
)

// Notifier records admin-facing events.
type Notifier interface {
	Emit(ctx context.Context, typ models.NotificationType, title, message, relatedID string) models.Notification
}

// Replicator receives committed changes for remote write-through.
type Replicator interface {
	Created(ctx context.Context, collection string, record interface{})
	StatusChanged(ctx context.Context, collection, id, status string, extra map[string]interface{})
}

type nopReplicator struct{}

func (nopReplicator) Created(context.Context, string, interface{}) {}

func (nopReplicator) StatusChanged(context.Context, string, string, string, map[string]interface{}) {}

// Controller applies status transitions. Transitions are serialized within
// the process, so two racing requests for the same transition see each
// other's result and the second fails with an InvalidTransitionError.
type Controller struct {
	store      *store.Store
	notifier   Notifier
	replicator Replicator
	logger     *slog.Logger

	mu sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithReplicator forwards committed changes to r.
func WithReplicator(r Replicator) Option {
	return func(c *Controller) {
		if r != nil {
			c.replicator = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a controller.
func New(s *store.Store, n Notifier, opts ...Option) *Controller {
	c := &Controller{
		store:      s,
		notifier:   n,
		replicator: nopReplicator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transition moves the record with id to state to, provided f allows it from
// the record's current state. apply runs after the status is set and may
// adjust other managed fields.
func transition[T any, S ~string](
	ctx context.Context,
	col *store.Collection[T],
	entity string,
	f flow[S],
	id string,
	to S,
	status func(*T) *S,
	apply func(*T) error,
) (T, S, error) {
	var from S
	rec, err := col.Mutate(ctx, id, func(r *T) error {
		from = *status(r)
		if !f.allows(from, to) {
			return apperr.InvalidTransition(entity, from, to)
		}
		*status(r) = to
		if apply != nil {
			return apply(r)
		}
		return nil
	})
	if err != nil {
		return rec, from, err
	}
	metrics.Transitions.WithLabelValues(entity, string(from), string(to)).Inc()
	return rec, from, nil
}

// create commits rec and queues its replication under the transition lock,
// so a remote merge never observes one without the other.
func create[T any](ctx context.Context, c *Controller, col *store.Collection[T], rec T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	saved, err := col.Create(ctx, rec)
	if err != nil {
		return saved, err
	}
	c.replicator.Created(ctx, col.Name(), saved)
	return saved, nil
}

// Exclusive runs fn while no transition or create is in progress.
func (c *Controller) Exclusive(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// ================= NGO-side donations =================

// SubmitDonation records an incoming donation for an NGO. The donation
// always starts Pending.
func (c *Controller) SubmitDonation(ctx context.Context, d models.Donation) (models.Donation, error) {
	d.Status = models.DonationPending
	saved, err := create(ctx, c, c.store.Donations, d)
	if err != nil {
		return saved, err
	}
	c.notifier.Emit(ctx, models.NotificationNewDonation, "New donation",
		fmt.Sprintf("%s donated %d x %s", saved.DonorName, saved.Quantity, saved.Item), saved.ID)
	return saved, nil
}

// ConfirmDonation moves a donation from Pending to Confirmed.
func (c *Controller) ConfirmDonation(ctx context.Context, id string) (models.Donation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, _, err := transition(ctx, c.store.Donations, "donation", donationFlow, id, models.DonationConfirmed,
		func(d *models.Donation) *models.DonationStatus { return &d.Status }, nil)
	if err != nil {
		return d, err
	}
	c.replicator.StatusChanged(ctx, store.DonationsCollection, d.ID, string(d.Status), nil)
	return d, nil
}

// ReceiveDonation moves a donation from Confirmed to Received and adds the
// donated goods to the NGO's inventory. Either both happen or neither does.
func (c *Controller) ReceiveDonation(ctx context.Context, id string) (models.Donation, models.InventoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.Donations.Get(ctx, id)
	if err != nil {
		return models.Donation{}, models.InventoryItem{}, err
	}
	if !donationFlow.allows(current.Status, models.DonationReceived) {
		return current, models.InventoryItem{}, apperr.InvalidTransition("donation", current.Status, models.DonationReceived)
	}

	item, err := c.store.Inventory.Create(ctx, models.InventoryItem{
		NGOID:    current.NGOID,
		Name:     current.Item,
		Category: models.DonatedItemsCategory,
		Quantity: current.Quantity,
	})
	if err != nil {
		return current, models.InventoryItem{}, err
	}

	d, _, err := transition(ctx, c.store.Donations, "donation", donationFlow, id, models.DonationReceived,
		func(d *models.Donation) *models.DonationStatus { return &d.Status }, nil)
	if err != nil {
		if rmErr := c.store.Inventory.Delete(ctx, item.ID); rmErr != nil {
			c.logger.Error("failed to roll back inventory for unreceived donation",
				"donation_id", id, "inventory_id", item.ID, "error", rmErr)
		}
		return current, models.InventoryItem{}, err
	}

	c.replicator.StatusChanged(ctx, store.DonationsCollection, d.ID, string(d.Status), nil)
	c.logger.Info("📦 Donation received into inventory", "donation_id", d.ID, "inventory_id", item.ID, "quantity", item.Quantity)
	return d, item, nil
}

// ================= Donor-side donations =================

// SubmitDonorDonation records a donation pledged by a donor.
func (c *Controller) SubmitDonorDonation(ctx context.Context, d models.DonorDonation) (models.DonorDonation, error) {
	d.Status = models.DonorDonationPending
	saved, err := create(ctx, c, c.store.DonorDonations, d)
	if err != nil {
		return saved, err
	}

	target := saved.NGOName
	if target == "" {
		target = saved.NGOID
	}
	c.notifier.Emit(ctx, models.NotificationNewDonation, "New donation",
		fmt.Sprintf("%d x %s pledged to %s", saved.Quantity, saved.Item, target), saved.ID)
	return saved, nil
}

// AdvanceDonorDonation moves a donor donation to to. An empty to advances to
// the single next state.
func (c *Controller) AdvanceDonorDonation(ctx context.Context, id string, to models.DonorDonationStatus) (models.DonorDonation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if to == "" {
		current, err := c.store.DonorDonations.Get(ctx, id)
		if err != nil {
			return current, err
		}
		next, ok := donorDonationFlow.next(current.Status)
		if !ok {
			return current, apperr.InvalidTransition("donor donation", current.Status, current.Status)
		}
		to = next
	}

	d, _, err := transition(ctx, c.store.DonorDonations, "donor donation", donorDonationFlow, id, to,
		func(d *models.DonorDonation) *models.DonorDonationStatus { return &d.Status }, nil)
	if err != nil {
		return d, err
	}
	c.replicator.StatusChanged(ctx, store.DonorDonationCollection, d.ID, string(d.Status), nil)
	return d, nil
}

// ================= Volunteer requests =================

// RequestVolunteer records a Pending volunteer request.
func (c *Controller) RequestVolunteer(ctx context.Context, v models.VolunteerRequest) (models.VolunteerRequest, error) {
	v.Status = models.VolunteerPending
	v.ScheduledDate = nil
	saved, err := create(ctx, c, c.store.Volunteers, v)
	if err != nil {
		return saved, err
	}
	return saved, nil
}

// ApproveVolunteer moves a request from Pending to Approved.
func (c *Controller) ApproveVolunteer(ctx context.Context, id string) (models.VolunteerRequest, error) {
	return c.volunteerTo(ctx, id, models.VolunteerApproved, nil)
}

// RejectVolunteer moves a request from Pending to Rejected.
func (c *Controller) RejectVolunteer(ctx context.Context, id string) (models.VolunteerRequest, error) {
	return c.volunteerTo(ctx, id, models.VolunteerRejected, nil)
}

// ScheduleVolunteer moves a Pending or Approved request to Scheduled on date.
func (c *Controller) ScheduleVolunteer(ctx context.Context, id string, date *time.Time) (models.VolunteerRequest, error) {
	return c.volunteerTo(ctx, id, models.VolunteerScheduled, date)
}

func (c *Controller) volunteerTo(ctx context.Context, id string, to models.VolunteerStatus, date *time.Time) (models.VolunteerRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, _, err := transition(ctx, c.store.Volunteers, "volunteer request", volunteerFlow, id, to,
		func(v *models.VolunteerRequest) *models.VolunteerStatus { return &v.Status },
		func(v *models.VolunteerRequest) error {
			if to != models.VolunteerScheduled {
				return nil
			}
			if date == nil || date.IsZero() {
				return apperr.Validation("scheduled_date", "is required to schedule a volunteer")
			}
			d := date.UTC()
			v.ScheduledDate = &d
			return nil
		})
	if err != nil {
		return v, err
	}

	var extra map[string]interface{}
	if v.ScheduledDate != nil {
		extra = map[string]interface{}{"scheduled_date": v.ScheduledDate.Format(time.RFC3339)}
	}
	c.replicator.StatusChanged(ctx, store.VolunteerCollection, v.ID, string(v.Status), extra)
	return v, nil
}

// ================= NGO registrations =================

// RegisterNGO records a Pending NGO registration. Emails are unique,
// ignoring case.
func (c *Controller) RegisterNGO(ctx context.Context, reg models.NGORegistration) (models.NGORegistration, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.RejectionReason = ""
	saved, err := create(ctx, c, c.store.NGOs, reg)
	if err != nil {
		return saved, err
	}
	c.notifier.Emit(ctx, models.NotificationNewNGO, "New NGO registration",
		fmt.Sprintf("%s (%s) is awaiting verification", saved.Name, saved.Category), saved.ID)
	return saved, nil
}

// ApproveNGO verifies a Pending registration.
func (c *Controller) ApproveNGO(ctx context.Context, id string) (models.NGORegistration, error) {
	return c.registrationTo(ctx, id, models.RegistrationApproved, "")
}

// RejectNGO rejects a Pending registration. reason may be empty.
func (c *Controller) RejectNGO(ctx context.Context, id, reason string) (models.NGORegistration, error) {
	return c.registrationTo(ctx, id, models.RegistrationRejected, strings.TrimSpace(reason))
}

func (c *Controller) registrationTo(ctx context.Context, id string, to models.RegistrationStatus, reason string) (models.NGORegistration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, _, err := transition(ctx, c.store.NGOs, "ngo registration", registrationFlow, id, to,
		func(r *models.NGORegistration) *models.RegistrationStatus { return &r.Status },
		func(r *models.NGORegistration) error {
			if to == models.RegistrationRejected {
				r.RejectionReason = reason
			}
			return nil
		})
	if err != nil {
		return reg, err
	}

	var extra map[string]interface{}
	if reg.RejectionReason != "" {
		extra = map[string]interface{}{"rejection_reason": reg.RejectionReason}
	}
	c.replicator.StatusChanged(ctx, store.NGOCollection, reg.ID, string(reg.Status), extra)
	return reg, nil
}

// ================= Donors =================

// RegisterDonor records a donor account. Emails are unique, ignoring case.
func (c *Controller) RegisterDonor(ctx context.Context, d models.Donor) (models.Donor, error) {
	d.Email = strings.TrimSpace(d.Email)
	saved, err := create(ctx, c, c.store.Donors, d)
	if err != nil {
		return saved, err
	}
	c.notifier.Emit(ctx, models.NotificationNewDonor, "New donor", saved.Name+" joined as a donor", saved.ID)
	return saved, nil
}
