package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sevaconnect-backend/pkg/middleware"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/utils"
)

// requireUser 获取当前用户，未登录时写入401
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, false
	}
	return user, true
}

// canManageNGO reports whether user may act on records owned by ngoID.
// Records without an owner belong to every NGO account.
func canManageNGO(user *models.User, ngoID string) bool {
	switch user.Role {
	case models.RoleAdmin:
		return true
	case models.RoleNGO:
		return ngoID == "" || ngoID == user.ID
	default:
		return false
	}
}

// ngoFilter 列表查询时的 NGO 过滤条件：NGO 只看自己的，管理员可按 ngo_id 过滤
func ngoFilter(user *models.User, r *http.Request) func(ngoID string) bool {
	if user.Role == models.RoleNGO {
		return func(ngoID string) bool { return ngoID == "" || ngoID == user.ID }
	}
	if want := r.URL.Query().Get("ngo_id"); want != "" {
		return func(ngoID string) bool { return ngoID == want }
	}
	return func(string) bool { return true }
}

// decodePatch 解析部分更新请求体
func decodePatch(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var patch map[string]interface{}
	if err := utils.ParseJSONBody(r, &patch); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return nil, false
	}
	if len(patch) == 0 {
		utils.WriteBadRequestResponse(w, "No fields to update")
		return nil, false
	}
	return patch, true
}

func idParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	utils.WriteListResponse(w, items, utils.Meta{Total: len(items)})
}
