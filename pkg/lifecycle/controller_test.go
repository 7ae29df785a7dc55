package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/alerts"
	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/lifecycle"
	"sevaconnect-backend/pkg/logging"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/notify"
	"sevaconnect-backend/pkg/store"
	"sevaconnect-backend/pkg/store/storetest"
)

type change struct {
	collection, id, status string
	extra                  map[string]interface{}
}

type recordingReplicator struct {
	mu      sync.Mutex
	created []string
	changes []change
}

func (r *recordingReplicator) Created(ctx context.Context, collection string, record interface{}) {
	r.mu.Lock()
	r.created = append(r.created, collection)
	r.mu.Unlock()
}

func (r *recordingReplicator) StatusChanged(ctx context.Context, collection, id, status string, extra map[string]interface{}) {
	r.mu.Lock()
	r.changes = append(r.changes, change{collection, id, status, extra})
	r.mu.Unlock()
}

type fixture struct {
	store *store.Store
	kv    *storetest.Flaky
	ctl   *lifecycle.Controller
	rep   *recordingReplicator
}

func setup(t *testing.T) fixture {
	t.Helper()
	kv := storetest.NewFlaky(storetest.NewBadger(t))
	s := storetest.Open(t, kv, nil)
	rep := &recordingReplicator{}
	ctl := lifecycle.New(s, notify.NewEmitter(s, nil, logging.Discard()),
		lifecycle.WithReplicator(rep), lifecycle.WithLogger(logging.Discard()))
	return fixture{store: s, kv: kv, ctl: ctl, rep: rep}
}

func asha() models.Donation {
	return models.Donation{NGOID: "ngo-1", DonorName: "Asha", Item: "Blankets", Quantity: 20}
}

func TestSubmitDonationStartsPendingAndNotifies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := asha()
	in.Status = models.DonationReceived
	d, err := f.ctl.SubmitDonation(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.DonationPending, d.Status)

	notes := f.store.Notifications.List(ctx, nil)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewDonation, notes[0].Type)
	assert.Equal(t, d.ID, notes[0].RelatedID)
	assert.Equal(t, []string{store.DonationsCollection}, f.rep.created)
}

func TestDonationCannotSkipConfirmed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)

	_, _, err = f.ctl.ReceiveDonation(ctx, d.ID)
	var te *apperr.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Pending", te.From)
	assert.Equal(t, "Received", te.To)
	assert.Zero(t, f.store.Inventory.Len())
}

func TestDonationMonotonic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)

	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	var te *apperr.InvalidTransitionError
	assert.ErrorAs(t, err, &te)

	_, _, err = f.ctl.ReceiveDonation(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	assert.ErrorAs(t, err, &te)
	_, _, err = f.ctl.ReceiveDonation(ctx, d.ID)
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 1, f.store.Inventory.Len())
}

func TestReceiveCreatesInventory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)
	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	require.NoError(t, err)

	received, item, err := f.ctl.ReceiveDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationReceived, received.Status)
	assert.Equal(t, "Blankets", item.Name)
	assert.Equal(t, models.DonatedItemsCategory, item.Category)
	assert.Equal(t, 20, item.Quantity)
	assert.Equal(t, "ngo-1", item.NGOID)

	inv := f.store.Inventory.List(ctx, nil)
	require.Len(t, inv, 1)
	assert.Equal(t, item.ID, inv[0].ID)

	last := f.rep.changes[len(f.rep.changes)-1]
	assert.Equal(t, change{store.DonationsCollection, d.ID, "Received", nil}, last)
}

func TestReceiveIsAtomicWhenInventoryWriteFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)
	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	require.NoError(t, err)

	f.kv.FailWrites()
	_, _, err = f.ctl.ReceiveDonation(ctx, d.ID)
	var pe *apperr.PersistenceError
	require.ErrorAs(t, err, &pe)
	f.kv.Recover()

	got, err := f.store.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationConfirmed, got.Status)
	assert.Zero(t, f.store.Inventory.Len())
}

func TestReceiveRollsBackInventoryWhenStatusWriteFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)
	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	require.NoError(t, err)

	// inventory write succeeds, donation write fails, rollback delete succeeds
	f.kv.FailOnce(1)
	_, _, err = f.ctl.ReceiveDonation(ctx, d.ID)
	var pe *apperr.PersistenceError
	require.ErrorAs(t, err, &pe)

	got, err := f.store.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationConfirmed, got.Status)
	assert.Zero(t, f.store.Inventory.Len())
	assert.Equal(t, []string{"test:inventory", "test:inventory"}, lastN(f.kv.Writes(), 2))
}

func lastN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[len(s)-n:]
}

func TestConfirmMissingDonation(t *testing.T) {
	f := setup(t)
	_, err := f.ctl.ConfirmDonation(context.Background(), "missing")
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
	_, _, err = f.ctl.ReceiveDonation(context.Background(), "missing")
	assert.ErrorAs(t, err, &nf)
}

func TestConcurrentConfirmOnlyOneWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ctl.ConfirmDonation(ctx, d.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var te *apperr.InvalidTransitionError
		assert.ErrorAs(t, err, &te)
	}
	assert.Equal(t, 1, wins)
}

func TestDonorDonationFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dd, err := f.ctl.SubmitDonorDonation(ctx, models.DonorDonation{DonorID: "donor-1", NGOID: "ngo-1", NGOName: "Seva", Item: "Rice", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, models.DonorDonationPending, dd.Status)

	_, err = f.ctl.AdvanceDonorDonation(ctx, dd.ID, models.DonorDonationDelivered)
	var te *apperr.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	dd, err = f.ctl.AdvanceDonorDonation(ctx, dd.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DonorDonationConfirmed, dd.Status)
	dd, err = f.ctl.AdvanceDonorDonation(ctx, dd.ID, models.DonorDonationDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.DonorDonationDelivered, dd.Status)

	_, err = f.ctl.AdvanceDonorDonation(ctx, dd.ID, "")
	assert.ErrorAs(t, err, &te)
}

func volunteer() models.VolunteerRequest {
	return models.VolunteerRequest{DonorID: "donor-1", DonorName: "Ravi", DonorEmail: "ravi@example.org", NGOID: "ngo-1", Skills: []string{"cooking"}}
}

func TestScheduleVolunteerRequiresDate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, err := f.ctl.RequestVolunteer(ctx, volunteer())
	require.NoError(t, err)

	_, err = f.ctl.ScheduleVolunteer(ctx, v.ID, nil)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "scheduled_date", ve.Field)

	got, err := f.store.Volunteers.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VolunteerPending, got.Status)

	date := time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)
	scheduled, err := f.ctl.ScheduleVolunteer(ctx, v.ID, &date)
	require.NoError(t, err)
	assert.Equal(t, models.VolunteerScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledDate)
	assert.True(t, date.Equal(*scheduled.ScheduledDate))

	last := f.rep.changes[len(f.rep.changes)-1]
	assert.Equal(t, "2025-04-12T09:30:00Z", last.extra["scheduled_date"])
}

func TestVolunteerTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	date := time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)

	approved, err := f.ctl.RequestVolunteer(ctx, volunteer())
	require.NoError(t, err)
	_, err = f.ctl.ApproveVolunteer(ctx, approved.ID)
	require.NoError(t, err)
	_, err = f.ctl.ScheduleVolunteer(ctx, approved.ID, &date)
	require.NoError(t, err)

	rejected, err := f.ctl.RequestVolunteer(ctx, volunteer())
	require.NoError(t, err)
	_, err = f.ctl.RejectVolunteer(ctx, rejected.ID)
	require.NoError(t, err)

	var te *apperr.InvalidTransitionError
	_, err = f.ctl.ApproveVolunteer(ctx, rejected.ID)
	assert.ErrorAs(t, err, &te)
	_, err = f.ctl.ScheduleVolunteer(ctx, rejected.ID, &date)
	assert.ErrorAs(t, err, &te)
	_, err = f.ctl.RejectVolunteer(ctx, approved.ID)
	assert.ErrorAs(t, err, &te)
}

func TestRequestVolunteerForcesPending(t *testing.T) {
	f := setup(t)
	in := volunteer()
	in.Status = models.VolunteerScheduled
	v, err := f.ctl.RequestVolunteer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.VolunteerPending, v.Status)
	assert.Nil(t, v.ScheduledDate)
}

func seva() models.NGORegistration {
	return models.NGORegistration{Name: "Seva Trust", Email: "team@seva.org", Contact: "+91 98", Address: "Pune", Category: "Food"}
}

func TestRegisterNGODuplicateEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	reg, err := f.ctl.RegisterNGO(ctx, seva())
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPending, reg.Status)

	dup := seva()
	dup.Name = "Other"
	dup.Email = " TEAM@seva.org "
	_, err = f.ctl.RegisterNGO(ctx, dup)
	var de *apperr.DuplicateError
	require.ErrorAs(t, err, &de)

	assert.Equal(t, 1, f.store.NGOs.Len())
	notes := f.store.Notifications.List(ctx, nil)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewNGO, notes[0].Type)
}

func TestNGOApproveAndReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.ctl.RegisterNGO(ctx, seva())
	require.NoError(t, err)
	approved, err := f.ctl.ApproveNGO(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationApproved, approved.Status)

	b := seva()
	b.Email = "hello@annapurna.org"
	r, err := f.ctl.RegisterNGO(ctx, b)
	require.NoError(t, err)
	rejected, err := f.ctl.RejectNGO(ctx, r.ID, "  documents unreadable ")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRejected, rejected.Status)
	assert.Equal(t, "documents unreadable", rejected.RejectionReason)

	var te *apperr.InvalidTransitionError
	_, err = f.ctl.ApproveNGO(ctx, r.ID)
	assert.ErrorAs(t, err, &te)
	_, err = f.ctl.RejectNGO(ctx, a.ID, "")
	assert.ErrorAs(t, err, &te)
}

func TestRegisterDonor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.ctl.RegisterDonor(ctx, models.Donor{Name: "Asha", Email: "asha@example.org"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)

	_, err = f.ctl.RegisterDonor(ctx, models.Donor{Name: "Asha 2", Email: "ASHA@example.org"})
	var de *apperr.DuplicateError
	assert.ErrorAs(t, err, &de)

	notes := f.store.Notifications.List(ctx, nil)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewDonor, notes[0].Type)
}

func TestDonationScenarioClearsNewDonationAlert(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := alerts.NewRefresher(f.store, alerts.DefaultThresholds(), logging.Discard())
	stop, err := r.Start(ctx)
	require.NoError(t, err)
	defer stop()

	d, err := f.ctl.SubmitDonation(ctx, asha())
	require.NoError(t, err)
	_, err = f.store.Alerts.Get(ctx, alerts.NewDonationPrefix+d.ID)
	require.NoError(t, err)

	_, err = f.ctl.ConfirmDonation(ctx, d.ID)
	require.NoError(t, err)
	_, item, err := f.ctl.ReceiveDonation(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.store.Alerts.Get(ctx, alerts.NewDonationPrefix+d.ID)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, 20, item.Quantity)
}
