package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"sevaconnect-backend/pkg/config"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	// 配置CORS选项
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodPatch,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"X-Requested-With",
			"Cache-Control",
		},
		ExposedHeaders: []string{
			"Link",
			"X-Total-Count",
			"X-Request-Id",
		},
		AllowCredentials: true,
		MaxAge:           300, // 5分钟
	}

	// 开发环境允许所有来源
	if cfg.IsDevelopment() {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false // 当AllowedOrigins为*时，不能设置AllowCredentials为true
	}

	// 如果配置了特定的允许来源，则使用配置的值
	if len(cfg.AllowedOrigins) > 0 && cfg.AllowedOrigins[0] != "*" {
		allowed := cfg.AllowedOrigins
		corsOptions.AllowedOrigins = nil
		corsOptions.AllowOriginFunc = func(r *http.Request, origin string) bool {
			return isOriginAllowed(origin, allowed)
		}
		corsOptions.AllowCredentials = true
	} else if !cfg.IsDevelopment() {
		corsOptions.AllowCredentials = false
	}

	return cors.Handler(corsOptions)
}

// isOriginAllowed 检查来源是否被允许，支持 "https://*.vercel.app" 这类单个通配符
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		prefix, suffix, ok := strings.Cut(allowed, "*")
		if ok && len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
