package handlers

import (
	"context"
	"net/http"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/middleware"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store"
	"sevaconnect-backend/pkg/utils"
)

// DonorHandler 捐赠者端：注册、认捐和志愿者申请
type DonorHandler struct {
	app *app.App
}

// NewDonorHandler 创建捐赠者处理器
func NewDonorHandler(a *app.App) *DonorHandler {
	return &DonorHandler{app: a}
}

type donorRegisterRequest struct {
	models.Donor
	Password string `json:"password"`
}

type ngoRegisterRequest struct {
	models.NGORegistration
	Password string `json:"password"`
}

// RegisterDonor POST /api/donors/register
func (h *DonorHandler) RegisterDonor(w http.ResponseWriter, r *http.Request) {
	var req donorRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	donor, err := h.app.RegisterDonor(r.Context(), req.Donor, req.Password)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, donor)
}

// RegisterNGO POST /api/ngos/register
// 新注册的 NGO 处于待审核状态，审核通过后才能登录
func (h *DonorHandler) RegisterNGO(w http.ResponseWriter, r *http.Request) {
	var req ngoRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	reg, err := h.app.RegisterNGO(r.Context(), req.NGORegistration, req.Password)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, reg)
}

// ListNGOs GET /api/ngos?category=
// 公开列表只包含已审核通过的 NGO，管理员可用 status 查看其他状态
func (h *DonorHandler) ListNGOs(w http.ResponseWriter, r *http.Request) {
	category := utils.GetQueryParam(r, "category", "")
	status := models.RegistrationApproved
	if user, ok := middleware.GetUserFromContext(r.Context()); ok && user.Role == models.RoleAdmin {
		status = models.RegistrationStatus(utils.GetQueryParam(r, "status", string(models.RegistrationApproved)))
	}
	writeList(w, h.app.Store.NGOs.List(r.Context(), func(n models.NGORegistration) bool {
		return n.Status == status && (category == "" || n.Category == category)
	}))
}

// ListDonorDonations GET /api/donor/donations
func (h *DonorHandler) ListDonorDonations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := h.visibleTo(user, r)
	writeList(w, h.app.Store.DonorDonations.List(r.Context(), func(d models.DonorDonation) bool {
		return match(d.DonorID, d.NGOID)
	}))
}

// CreateDonorDonation POST /api/donor/donations
func (h *DonorHandler) CreateDonorDonation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var d models.DonorDonation
	if err := utils.ParseJSONBody(r, &d); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if user.Role == models.RoleDonor {
		d.DonorID = user.ID
	}
	ngo, err := h.verifiedNGO(r.Context(), d.NGOID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	d.NGOName = ngo.Name

	saved, err := h.app.Lifecycle.SubmitDonorDonation(r.Context(), d)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, saved)
}

// AdvanceDonorDonation POST /api/donor/donations/{id}/advance
// 请求体可选 {"status": "..."}，为空时推进到下一个状态
func (h *DonorHandler) AdvanceDonorDonation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.DonorDonationStatus `json:"status"`
	}
	if r.ContentLength != 0 {
		if err := utils.ParseJSONBody(r, &req); err != nil {
			utils.WriteBadRequestResponse(w, "Invalid request body")
			return
		}
	}

	id := idParam(r)
	current, err := h.app.Store.DonorDonations.Get(r.Context(), id)
	if err != nil || !canManageNGO(user, current.NGOID) {
		utils.WriteAppError(w, apperr.NotFound(store.DonorDonationCollection, id))
		return
	}

	d, err := h.app.Lifecycle.AdvanceDonorDonation(r.Context(), id, req.Status)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, d)
}

// ListVolunteerRequests GET /api/volunteers
func (h *DonorHandler) ListVolunteerRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	match := h.visibleTo(user, r)
	status := models.VolunteerStatus(r.URL.Query().Get("status"))
	writeList(w, h.app.Store.Volunteers.List(r.Context(), func(v models.VolunteerRequest) bool {
		return match(v.DonorID, v.NGOID) && (status == "" || v.Status == status)
	}))
}

// RequestVolunteer POST /api/volunteers
func (h *DonorHandler) RequestVolunteer(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var v models.VolunteerRequest
	if err := utils.ParseJSONBody(r, &v); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if user.Role == models.RoleDonor {
		v.DonorID = user.ID
		if v.DonorEmail == "" {
			v.DonorEmail = user.Email
		}
		if v.DonorName == "" {
			if donor, err := h.app.Store.Donors.Get(r.Context(), user.ID); err == nil {
				v.DonorName = donor.Name
			}
		}
	}
	ngo, err := h.verifiedNGO(r.Context(), v.NGOID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	v.NGOName = ngo.Name

	saved, err := h.app.Lifecycle.RequestVolunteer(r.Context(), v)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, saved)
}

// visibleTo 捐赠者只看自己的记录，NGO 只看发给自己的，管理员看全部
func (h *DonorHandler) visibleTo(user *models.User, r *http.Request) func(donorID, ngoID string) bool {
	switch user.Role {
	case models.RoleDonor:
		return func(donorID, _ string) bool { return donorID == user.ID }
	case models.RoleNGO:
		return func(_, ngoID string) bool { return ngoID == user.ID }
	default:
		match := ngoFilter(user, r)
		return func(_, ngoID string) bool { return match(ngoID) }
	}
}

func (h *DonorHandler) verifiedNGO(ctx context.Context, id string) (models.NGORegistration, error) {
	if id == "" {
		return models.NGORegistration{}, apperr.Validation("ngo_id", "is required")
	}
	ngo, err := h.app.Store.NGOs.Get(ctx, id)
	if err != nil {
		return ngo, err
	}
	if ngo.Status != models.RegistrationApproved {
		return ngo, apperr.Validation("ngo_id", "ngo is not verified")
	}
	return ngo, nil
}
