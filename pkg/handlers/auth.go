package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/middleware"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	app *app.App
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(a *app.App) *AuthHandler {
	return &AuthHandler{app: a}
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "email and password are required")
		return
	}

	user, err := h.app.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		utils.WriteUnauthorizedResponse(w, err.Error())
		return
	case errors.Is(err, app.ErrNotVerified):
		utils.WriteForbiddenResponse(w, err.Error())
		return
	case err != nil:
		utils.WriteAppError(w, err)
		return
	}

	accessToken, refreshToken, expiresAt, err := h.app.JWT.GenerateTokenPair(user)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}
	h.app.Logger.Info("🔑 User signed in", "user_id", user.ID, "role", user.Role)

	utils.WriteSuccessResponse(w, models.UserLoginResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresAt - time.Now().Unix(),
	})
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	accessToken, expiresAt, err := h.app.JWT.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresAt - time.Now().Unix(),
	})
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// 测试存储连接
	dbStatus := "healthy"
	if err := h.app.KV.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	data := map[string]interface{}{
		"service":     "sevaconnect-backend",
		"version":     "1.0.0",
		"environment": h.app.Config.Environment,
		"storage":     h.app.Config.StorageBackend,
		"db_status":   dbStatus,
		"remote_sync": h.app.Config.RemoteSync,
		"serverless":  database.IsVercelEnvironment(),
		"push":        h.app.Hub.Clients(),
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	}
	if h.app.Config.IsDevelopment() {
		data["pool"] = database.GetConnectionStats()
	}
	utils.WriteSuccessResponse(w, data)
}
