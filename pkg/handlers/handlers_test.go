package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/config"
	"sevaconnect-backend/pkg/handlers"
	"sevaconnect-backend/pkg/logging"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store/storetest"
	"sevaconnect-backend/pkg/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type testServer struct {
	t      *testing.T
	app    *app.App
	router http.Handler
	admin  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Environment:       "test",
		Port:              "0",
		StorageBackend:    config.BackendBadger,
		KeyPrefix:         "test",
		JWTSecret:         "handler-test-secret",
		AdminEmail:        "admin@sevaconnect.org",
		AdminPassword:     "admin-password",
		LowStockThreshold: 5,
		ExpiryWindow:      7 * 24 * time.Hour,
		AllowedOrigins:    []string{"*"},
	}
	a, err := app.New(context.Background(), cfg,
		app.WithKV(storetest.NewBadger(t)),
		app.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	s := &testServer{t: t, app: a, router: handlers.NewRouter(a)}
	s.admin = s.token(models.User{ID: "admin", Email: cfg.AdminEmail, Role: models.RoleAdmin})
	return s
}

func (s *testServer) token(user models.User) string {
	access, _, _, err := s.app.JWT.GenerateTokenPair(user)
	require.NoError(s.t, err)
	return access
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// approvedNGO registers an NGO through the API, approves it and signs in.
func (s *testServer) approvedNGO(name, email string) (models.NGORegistration, string) {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/ngos/register", "", map[string]interface{}{
		"name": name, "email": email, "contact": "555-0100",
		"address": "1 Temple Rd", "category": "Food", "password": "ngo-password",
	})
	require.Equal(s.t, http.StatusCreated, code)
	reg := decode[models.NGORegistration](s.t, env)

	code, _ = s.do(http.MethodPost, "/api/admin/ngos/"+reg.ID+"/approve", s.admin, nil)
	require.Equal(s.t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "ngo-password"})
	require.Equal(s.t, http.StatusOK, code)
	login := decode[models.UserLoginResponse](s.t, env)
	assert.Equal(s.t, models.RoleNGO, login.User.Role)
	return reg, login.AccessToken
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestAuthAndRoles(t *testing.T) {
	s := newTestServer(t)
	donor := s.token(models.User{ID: "d1", Email: "d@example.org", Role: models.RoleDonor})

	code, env := s.do(http.MethodGet, "/api/inventory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/inventory", donor, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, _ = s.do(http.MethodGet, "/api/admin/ngos", donor, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestLoginAndRefresh(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@sevaconnect.org", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@sevaconnect.org", "password": "admin-password"})
	require.Equal(t, http.StatusOK, code)
	login := decode[models.UserLoginResponse](t, env)
	assert.Equal(t, models.RoleAdmin, login.User.Role)

	code, env = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	refreshed := decode[map[string]interface{}](t, env)
	assert.NotEmpty(t, refreshed["access_token"])

	code, env = s.do(http.MethodGet, "/api/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "admin", decode[models.User](t, env).ID)
}

func TestUnverifiedNGOCannotSignIn(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/api/ngos/register", "", map[string]interface{}{
		"name": "Seva Trust", "email": "seva@example.org", "contact": "555",
		"address": "2 Lake Rd", "category": "Health", "password": "ngo-password",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "seva@example.org", "password": "ngo-password"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, env = s.do(http.MethodPost, "/api/ngos/register", "", map[string]interface{}{
		"name": "Seva Trust Again", "email": "SEVA@example.org", "contact": "555",
		"address": "2 Lake Rd", "category": "Health", "password": "ngo-password",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DUPLICATE", env.Error.Code)
}

func TestDonationReceiveFlow(t *testing.T) {
	s := newTestServer(t)
	_, ngo := s.approvedNGO("Helping Hands", "hh@example.org")

	code, env := s.do(http.MethodPost, "/api/donations", ngo, map[string]interface{}{
		"donor_name": "Ravi", "item": "Rice", "quantity": 3,
	})
	require.Equal(t, http.StatusCreated, code)
	donation := decode[models.Donation](t, env)
	assert.Equal(t, models.DonationPending, donation.Status)

	code, env = s.do(http.MethodPost, "/api/donations/"+donation.ID+"/receive", ngo, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, _ = s.do(http.MethodPost, "/api/donations/"+donation.ID+"/confirm", ngo, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, "/api/donations/"+donation.ID+"/receive", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	received := decode[struct {
		Donation      models.Donation      `json:"donation"`
		InventoryItem models.InventoryItem `json:"inventory_item"`
	}](t, env)
	assert.Equal(t, models.DonationReceived, received.Donation.Status)
	assert.Equal(t, models.DonatedItemsCategory, received.InventoryItem.Category)
	assert.Equal(t, 3, received.InventoryItem.Quantity)

	code, env = s.do(http.MethodGet, "/api/inventory", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Meta.Total)

	// Three units is below the low stock threshold.
	code, env = s.do(http.MethodGet, "/api/alerts", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	alerts := decode[[]models.Alert](t, env)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertLowStock, alerts[0].Type)
	assert.Equal(t, 1, env.Meta.Unread)

	code, _ = s.do(http.MethodPost, "/api/alerts/"+alerts[0].ID+"/read", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	_, env = s.do(http.MethodGet, "/api/alerts", ngo, nil)
	assert.Equal(t, 0, env.Meta.Unread)
}

func TestInventoryUseAndOwnership(t *testing.T) {
	s := newTestServer(t)
	_, ngoA := s.approvedNGO("A", "a@example.org")
	_, ngoB := s.approvedNGO("B", "b@example.org")

	code, env := s.do(http.MethodPost, "/api/inventory", ngoA, map[string]interface{}{
		"name": "Blankets", "category": "Clothing", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, code)
	item := decode[models.InventoryItem](t, env)

	code, env = s.do(http.MethodPost, "/api/inventory/"+item.ID+"/use", ngoA, map[string]int{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = s.do(http.MethodPost, "/api/inventory/"+item.ID+"/use", ngoA, map[string]int{"amount": 10})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decode[models.InventoryItem](t, env).Quantity)

	code, _ = s.do(http.MethodPost, "/api/inventory/"+item.ID+"/use", ngoB, map[string]int{"amount": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodGet, "/api/inventory", ngoB, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Meta.Total)
}

func TestNeedUpdateRejectsLockedFields(t *testing.T) {
	s := newTestServer(t)
	_, ngo := s.approvedNGO("Food Bank", "fb@example.org")

	code, env := s.do(http.MethodPost, "/api/needs", ngo, map[string]interface{}{
		"item_name": "Lentils", "category": "Food", "quantity": 20, "urgency": "High",
	})
	require.Equal(t, http.StatusCreated, code)
	need := decode[models.Need](t, env)

	code, env = s.do(http.MethodPatch, "/api/needs/"+need.ID, ngo, map[string]interface{}{"ngo_id": "someone-else"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = s.do(http.MethodPatch, "/api/needs/"+need.ID, ngo, map[string]interface{}{"quantity": 5, "urgency": "Low"})
	require.Equal(t, http.StatusOK, code)
	updated := decode[models.Need](t, env)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, models.UrgencyLow, updated.Urgency)

	donor := s.token(models.User{ID: "d1", Role: models.RoleDonor})
	code, env = s.do(http.MethodGet, "/api/needs", donor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Meta.Total)

	code, _ = s.do(http.MethodDelete, "/api/needs/"+need.ID, ngo, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodDelete, "/api/needs/"+need.ID, ngo, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestDonorDonationAndVolunteerFlow(t *testing.T) {
	s := newTestServer(t)
	reg, ngo := s.approvedNGO("Shelter", "shelter@example.org")

	code, env := s.do(http.MethodPost, "/api/donors/register", "", map[string]interface{}{
		"name": "Asha", "email": "asha@example.org", "password": "donor-password",
	})
	require.Equal(t, http.StatusCreated, code)
	donorRec := decode[models.Donor](t, env)
	donor := s.token(models.User{ID: donorRec.ID, Email: donorRec.Email, Role: models.RoleDonor})

	code, _ = s.do(http.MethodPost, "/api/donor/donations", donor, map[string]interface{}{
		"ngo_id": "missing", "item": "Books", "quantity": 2,
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodPost, "/api/donor/donations", donor, map[string]interface{}{
		"ngo_id": reg.ID, "item": "Books", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, code)
	dd := decode[models.DonorDonation](t, env)
	assert.Equal(t, "Shelter", dd.NGOName)
	assert.Equal(t, donorRec.ID, dd.DonorID)

	code, env = s.do(http.MethodPost, "/api/donor/donations/"+dd.ID+"/advance", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.DonorDonationConfirmed, decode[models.DonorDonation](t, env).Status)

	code, env = s.do(http.MethodGet, "/api/donor/donations", donor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Meta.Total)

	code, env = s.do(http.MethodPost, "/api/volunteers", donor, map[string]interface{}{
		"ngo_id": reg.ID, "skills": []string{"cooking"}, "availability": []string{"weekends"},
	})
	require.Equal(t, http.StatusCreated, code)
	vr := decode[models.VolunteerRequest](t, env)
	assert.Equal(t, "Asha", vr.DonorName)
	assert.Equal(t, models.VolunteerPending, vr.Status)

	code, env = s.do(http.MethodPost, "/api/admin/volunteers/"+vr.ID+"/schedule", s.admin, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	when := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	code, env = s.do(http.MethodPost, "/api/admin/volunteers/"+vr.ID+"/schedule", s.admin, map[string]interface{}{"scheduled_date": when})
	require.Equal(t, http.StatusOK, code)
	scheduled := decode[models.VolunteerRequest](t, env)
	assert.Equal(t, models.VolunteerScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledDate)
	assert.True(t, when.Equal(*scheduled.ScheduledDate))

	code, env = s.do(http.MethodGet, "/api/volunteers", ngo, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Meta.Total)
}

func TestAdminNotifications(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/api/donors/register", "", map[string]interface{}{
		"name": "Kiran", "email": "kiran@example.org", "password": "donor-password",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodGet, "/api/admin/notifications", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	notes := decode[[]models.Notification](t, env)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewDonor, notes[0].Type)
	assert.Equal(t, 1, env.Meta.Unread)

	code, _ = s.do(http.MethodPost, "/api/admin/notifications/"+notes[0].ID+"/read", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	_, env = s.do(http.MethodGet, "/api/admin/notifications", s.admin, nil)
	assert.Equal(t, 0, env.Meta.Unread)

	code, _ = s.do(http.MethodDelete, "/api/admin/notifications/"+notes[0].ID, s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	_, env = s.do(http.MethodGet, "/api/admin/notifications", s.admin, nil)
	assert.Equal(t, 0, env.Meta.Total)
}

func TestRejectNGOKeepsReason(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodPost, "/api/ngos/register", "", map[string]interface{}{
		"name": "Dubious", "email": "dubious@example.org", "contact": "555",
		"address": "?", "category": "Other", "password": "ngo-password",
	})
	require.Equal(t, http.StatusCreated, code)
	reg := decode[models.NGORegistration](t, env)

	code, env = s.do(http.MethodPost, "/api/admin/ngos/"+reg.ID+"/reject", s.admin, map[string]string{"reason": "  missing documents "})
	require.Equal(t, http.StatusOK, code)
	rejected := decode[models.NGORegistration](t, env)
	assert.Equal(t, models.RegistrationRejected, rejected.Status)
	assert.Equal(t, "missing documents", rejected.RejectionReason)

	code, env = s.do(http.MethodPost, "/api/admin/ngos/"+reg.ID+"/approve", s.admin, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/ngos", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Meta.Total)
}

func TestPublicNGOListShowsApprovedOnly(t *testing.T) {
	s := newTestServer(t)
	approved, _ := s.approvedNGO("Annapurna Trust", "annapurna@example.org")
	code, _ := s.do(http.MethodPost, "/api/ngos/register", "", map[string]interface{}{
		"name": "Pending Org", "email": "pending@example.org", "contact": "555-0101",
		"address": "2 Temple Rd", "category": "Food", "password": "ngo-password",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodGet, "/api/ngos?category=Food", "", nil)
	require.Equal(t, http.StatusOK, code)
	public := decode[[]models.NGORegistration](t, env)
	require.Len(t, public, 1)
	assert.Equal(t, approved.ID, public[0].ID)

	code, env = s.do(http.MethodGet, "/api/ngos?status=Pending", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	pending := decode[[]models.NGORegistration](t, env)
	require.Len(t, pending, 1)
	assert.Equal(t, "Pending Org", pending[0].Name)
}

func TestPushRequiresAdminToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/push"
	donor := s.token(models.User{ID: "d1", Email: "d@example.org", Role: models.RoleDonor})

	_, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(endpoint+"?token="+donor, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint+"?token="+s.admin, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.app.Hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	header := http.Header{"Authorization": []string{"Bearer " + s.admin}}
	second, _, err := websocket.DefaultDialer.Dial(endpoint, header)
	require.NoError(t, err)
	second.Close()
}
