package handlers

import (
	"net/http"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store"
	"sevaconnect-backend/pkg/utils"
)

// NGOHandler NGO 端：需求、库存、捐赠和告警
type NGOHandler struct {
	app *app.App
}

// NewNGOHandler 创建 NGO 处理器
func NewNGOHandler(a *app.App) *NGOHandler {
	return &NGOHandler{app: a}
}

// ================= Needs =================

// ListNeeds GET /api/needs
// 捐赠者和管理员看到全部需求（可按 ngo_id 过滤），NGO 只看自己的
func (h *NGOHandler) ListNeeds(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := ngoFilter(user, r)
	writeList(w, h.app.Store.Needs.List(r.Context(), func(n models.Need) bool { return match(n.NGOID) }))
}

// CreateNeed POST /api/needs
func (h *NGOHandler) CreateNeed(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var need models.Need
	if err := utils.ParseJSONBody(r, &need); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if user.Role == models.RoleNGO {
		need.NGOID = user.ID
	}

	saved, err := h.app.Store.Needs.Create(r.Context(), need)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, saved)
}

// UpdateNeed PATCH /api/needs/{id}
func (h *NGOHandler) UpdateNeed(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := idParam(r)
	current, err := h.app.Store.Needs.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.NeedsCollection, id))
		return
	}
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}

	updated, err := h.app.Store.Needs.Update(r.Context(), id, patch)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, updated)
}

// DeleteNeed DELETE /api/needs/{id}
func (h *NGOHandler) DeleteNeed(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := idParam(r)
	if current, err := h.app.Store.Needs.Get(r.Context(), id); err == nil && !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.NeedsCollection, id))
		return
	}
	if err := h.app.Store.Needs.Delete(r.Context(), id); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"id": id, "status": "deleted"})
}

// ================= Inventory =================

// ListInventory GET /api/inventory
func (h *NGOHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := ngoFilter(user, r)
	writeList(w, h.app.Store.Inventory.List(r.Context(), func(i models.InventoryItem) bool { return match(i.NGOID) }))
}

// CreateInventoryItem POST /api/inventory
func (h *NGOHandler) CreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var item models.InventoryItem
	if err := utils.ParseJSONBody(r, &item); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if user.Role == models.RoleNGO {
		item.NGOID = user.ID
	}

	saved, err := h.app.Store.Inventory.Create(r.Context(), item)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, saved)
}

// UpdateInventoryItem PATCH /api/inventory/{id}
func (h *NGOHandler) UpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := idParam(r)
	current, err := h.app.Store.Inventory.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.InventoryCollection, id))
		return
	}
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}

	updated, err := h.app.Store.Inventory.Update(r.Context(), id, patch)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, updated)
}

// DeleteInventoryItem DELETE /api/inventory/{id}
func (h *NGOHandler) DeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := idParam(r)
	if current, err := h.app.Store.Inventory.Get(r.Context(), id); err == nil && !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.InventoryCollection, id))
		return
	}
	if err := h.app.Store.Inventory.Delete(r.Context(), id); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"id": id, "status": "deleted"})
}

// UseInventoryItem POST /api/inventory/{id}/use
func (h *NGOHandler) UseInventoryItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int `json:"amount"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	id := idParam(r)
	current, err := h.app.Store.Inventory.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.InventoryCollection, id))
		return
	}

	item, err := h.app.Store.UseInventory(r.Context(), id, req.Amount)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, item)
}

// ================= Donations =================

// ListDonations GET /api/donations?status=
func (h *NGOHandler) ListDonations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := ngoFilter(user, r)
	status := models.DonationStatus(r.URL.Query().Get("status"))
	writeList(w, h.app.Store.Donations.List(r.Context(), func(d models.Donation) bool {
		return match(d.NGOID) && (status == "" || d.Status == status)
	}))
}

// CreateDonation POST /api/donations
func (h *NGOHandler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var d models.Donation
	if err := utils.ParseJSONBody(r, &d); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if user.Role == models.RoleNGO {
		d.NGOID = user.ID
	}

	saved, err := h.app.Lifecycle.SubmitDonation(r.Context(), d)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, saved)
}

// ConfirmDonation POST /api/donations/{id}/confirm
func (h *NGOHandler) ConfirmDonation(w http.ResponseWriter, r *http.Request) {
	if !h.ownsDonation(w, r) {
		return
	}
	d, err := h.app.Lifecycle.ConfirmDonation(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, d)
}

// ReceiveDonation POST /api/donations/{id}/receive
// 确认收货并入库
func (h *NGOHandler) ReceiveDonation(w http.ResponseWriter, r *http.Request) {
	if !h.ownsDonation(w, r) {
		return
	}
	d, item, err := h.app.Lifecycle.ReceiveDonation(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"donation":       d,
		"inventory_item": item,
	})
}

func (h *NGOHandler) ownsDonation(w http.ResponseWriter, r *http.Request) bool {
	user, ok := requireUser(w, r)
	if !ok {
		return false
	}
	id := idParam(r)
	current, err := h.app.Store.Donations.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.DonationsCollection, id))
		return false
	}
	return true
}

// ================= Alerts =================

// ListAlerts GET /api/alerts
func (h *NGOHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := ngoFilter(user, r)
	list := h.app.Store.Alerts.List(r.Context(), func(a models.Alert) bool { return match(a.NGOID) })

	unread := 0
	for _, a := range list {
		if !a.IsRead {
			unread++
		}
	}
	if list == nil {
		list = []models.Alert{}
	}
	utils.WriteListResponse(w, list, utils.Meta{Total: len(list), Unread: unread})
}

// MarkAlertRead POST /api/alerts/{id}/read
func (h *NGOHandler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := idParam(r)
	current, err := h.app.Store.Alerts.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.AlertsCollection, id))
		return
	}

	alert, err := h.app.Alerts.MarkRead(r.Context(), id)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, alert)
}
