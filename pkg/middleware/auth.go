package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// AuthMiddleware JWT认证中间件，只接受访问令牌
func AuthMiddleware(jwtService *utils.JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Missing or malformed authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Debug("rejected access token", "path", r.URL.Path, "error", err)
				utils.WriteUnauthorizedResponse(w, "Invalid or expired token")
				return
			}

			user := claims.User()
			ctx := context.WithValue(r.Context(), UserContextKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// QueryToken 浏览器的 websocket 无法设置请求头，允许用 ?token= 传访问令牌
// 已有 Authorization 头时不覆盖
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" && r.Header.Get("Authorization") == "" {
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+token)
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuthMiddleware 可选的认证中间件（令牌无效时按匿名处理）
func OptionalAuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := bearerToken(r); ok {
				if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
					user := claims.User()
					r = r.WithContext(context.WithValue(r.Context(), UserContextKey, &user))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole 只允许指定角色访问，必须放在 AuthMiddleware 之后
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteForbiddenResponse(w, "This action requires role "+joinRoles(roles))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

func joinRoles(roles []models.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// WithUser 把用户放入context，供测试和内部调用使用
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, &user)
}
