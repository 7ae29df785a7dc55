package handlers

import (
	"net/http"
	"time"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/utils"
)

// AdminHandler 管理员：NGO 审核、志愿者排期和通知
type AdminHandler struct {
	app *app.App
}

// NewAdminHandler 创建管理员处理器
func NewAdminHandler(a *app.App) *AdminHandler {
	return &AdminHandler{app: a}
}

// ListNGORegistrations GET /api/admin/ngos?status=
func (h *AdminHandler) ListNGORegistrations(w http.ResponseWriter, r *http.Request) {
	status := models.RegistrationStatus(r.URL.Query().Get("status"))
	writeList(w, h.app.Store.NGOs.List(r.Context(), func(n models.NGORegistration) bool {
		return status == "" || n.Status == status
	}))
}

// ApproveNGO POST /api/admin/ngos/{id}/approve
func (h *AdminHandler) ApproveNGO(w http.ResponseWriter, r *http.Request) {
	reg, err := h.app.Lifecycle.ApproveNGO(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	h.app.Logger.Info("✅ NGO approved", "ngo_id", reg.ID, "name", reg.Name)
	utils.WriteSuccessResponse(w, reg)
}

// RejectNGO POST /api/admin/ngos/{id}/reject
func (h *AdminHandler) RejectNGO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := utils.ParseJSONBody(r, &req); err != nil {
			utils.WriteBadRequestResponse(w, "Invalid request body")
			return
		}
	}
	reg, err := h.app.Lifecycle.RejectNGO(r.Context(), idParam(r), req.Reason)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, reg)
}

// ListVolunteerRequests GET /api/admin/volunteers?status=
func (h *AdminHandler) ListVolunteerRequests(w http.ResponseWriter, r *http.Request) {
	status := models.VolunteerStatus(r.URL.Query().Get("status"))
	writeList(w, h.app.Store.Volunteers.List(r.Context(), func(v models.VolunteerRequest) bool {
		return status == "" || v.Status == status
	}))
}

// ApproveVolunteer POST /api/admin/volunteers/{id}/approve
func (h *AdminHandler) ApproveVolunteer(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Lifecycle.ApproveVolunteer(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, v)
}

// RejectVolunteer POST /api/admin/volunteers/{id}/reject
func (h *AdminHandler) RejectVolunteer(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Lifecycle.RejectVolunteer(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, v)
}

// ScheduleVolunteer POST /api/admin/volunteers/{id}/schedule
// 请求体 {"scheduled_date": "2025-01-02T10:00:00Z"}
func (h *AdminHandler) ScheduleVolunteer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduledDate *time.Time `json:"scheduled_date"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body: scheduled_date must be RFC3339")
		return
	}
	v, err := h.app.Lifecycle.ScheduleVolunteer(r.Context(), idParam(r), req.ScheduledDate)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, v)
}

// ListNotifications GET /api/admin/notifications
func (h *AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list := h.app.Notifications.List(r.Context())
	if list == nil {
		list = []models.Notification{}
	}
	utils.WriteListResponse(w, list, utils.Meta{
		Total:  len(list),
		Unread: h.app.Notifications.Unread(r.Context()),
	})
}

// MarkNotificationRead POST /api/admin/notifications/{id}/read
func (h *AdminHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkRead(r.Context(), idParam(r))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, n)
}

// DeleteNotification DELETE /api/admin/notifications/{id}
func (h *AdminHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	if err := h.app.Notifications.Delete(r.Context(), id); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"id": id, "status": "deleted"})
}
