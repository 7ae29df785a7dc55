package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sevaconnect-backend/pkg/app"
	customMiddleware "sevaconnect-backend/pkg/middleware"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/utils"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20

// NewRouter 创建包含全部 API 端点的 Chi 路由器
// 本地 serve 命令和 Vercel 函数共用同一套路由
func NewRouter(a *app.App) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, a)
	setupRoutes(router, a)

	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, a *app.App) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(customMiddleware.RequestLogger(a.Logger))
	router.Use(customMiddleware.Recovery(a.Logger, a.Config.Debug))

	// CORS中间件
	router.Use(customMiddleware.CORS(a.Config))
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, a *app.App) {
	authHandler := NewAuthHandler(a)
	ngoHandler := NewNGOHandler(a)
	donorHandler := NewDonorHandler(a)
	adminHandler := NewAdminHandler(a)

	auth := customMiddleware.AuthMiddleware(a.JWT, a.Logger)
	ngoOnly := customMiddleware.RequireRole(models.RoleNGO, models.RoleAdmin)
	donorOnly := customMiddleware.RequireRole(models.RoleDonor, models.RoleAdmin)
	adminOnly := customMiddleware.RequireRole(models.RoleAdmin)

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})

	// 推送通道（websocket 长连接，不走超时和压缩），只推给管理员
	router.With(
		customMiddleware.QueryToken,
		customMiddleware.AuthMiddleware(a.JWT, a.Logger),
		customMiddleware.RequireRole(models.RoleAdmin),
	).Handle("/api/push", a.Hub)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(router chi.Router) {
		// 超时中间件（Vercel函数有时间限制）
		router.Use(middleware.Timeout(25 * time.Second))
		router.Use(middleware.Compress(5))
		router.Use(customMiddleware.MaxBodySize(maxBodyBytes))
		router.Use(customMiddleware.ContentTypeJSON)
		// 开发环境额外中间件
		if a.Config.IsDevelopment() {
			router.Use(middleware.Heartbeat("/ping"))
		}

		// 健康检查端点
		router.Get("/", authHandler.HealthCheck)

		router.Route("/api", func(r chi.Router) {
			// 公开路由（不需要认证）
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.RefreshToken)
				r.With(auth).Get("/me", authHandler.Me)
			})
			r.Post("/ngos/register", donorHandler.RegisterNGO)
			r.Post("/donors/register", donorHandler.RegisterDonor)
			r.With(customMiddleware.OptionalAuthMiddleware(a.JWT)).Get("/ngos", donorHandler.ListNGOs)

			// 需要认证的路由
			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.Route("/needs", func(r chi.Router) {
					r.Get("/", ngoHandler.ListNeeds)
					r.With(ngoOnly).Post("/", ngoHandler.CreateNeed)
					r.With(ngoOnly).Patch("/{id}", ngoHandler.UpdateNeed)
					r.With(ngoOnly).Put("/{id}", ngoHandler.UpdateNeed)
					r.With(ngoOnly).Delete("/{id}", ngoHandler.DeleteNeed)
				})

				r.Route("/inventory", func(r chi.Router) {
					r.Use(ngoOnly)
					r.Get("/", ngoHandler.ListInventory)
					r.Post("/", ngoHandler.CreateInventoryItem)
					r.Patch("/{id}", ngoHandler.UpdateInventoryItem)
					r.Put("/{id}", ngoHandler.UpdateInventoryItem)
					r.Delete("/{id}", ngoHandler.DeleteInventoryItem)
					r.Post("/{id}/use", ngoHandler.UseInventoryItem)
				})

				r.Route("/donations", func(r chi.Router) {
					r.Use(ngoOnly)
					r.Get("/", ngoHandler.ListDonations)
					r.Post("/", ngoHandler.CreateDonation)
					r.Post("/{id}/confirm", ngoHandler.ConfirmDonation)
					r.Post("/{id}/receive", ngoHandler.ReceiveDonation)
				})

				r.Route("/alerts", func(r chi.Router) {
					r.Use(ngoOnly)
					r.Get("/", ngoHandler.ListAlerts)
					r.Post("/{id}/read", ngoHandler.MarkAlertRead)
				})

				r.Route("/donor/donations", func(r chi.Router) {
					r.Get("/", donorHandler.ListDonorDonations)
					r.With(donorOnly).Post("/", donorHandler.CreateDonorDonation)
					r.With(ngoOnly).Post("/{id}/advance", donorHandler.AdvanceDonorDonation)
				})

				r.Route("/volunteers", func(r chi.Router) {
					r.Get("/", donorHandler.ListVolunteerRequests)
					r.With(donorOnly).Post("/", donorHandler.RequestVolunteer)
				})

				// 管理员路由
				r.Route("/admin", func(r chi.Router) {
					r.Use(adminOnly)

					r.Get("/ngos", adminHandler.ListNGORegistrations)
					r.Post("/ngos/{id}/approve", adminHandler.ApproveNGO)
					r.Post("/ngos/{id}/reject", adminHandler.RejectNGO)

					r.Get("/volunteers", adminHandler.ListVolunteerRequests)
					r.Post("/volunteers/{id}/approve", adminHandler.ApproveVolunteer)
					r.Post("/volunteers/{id}/reject", adminHandler.RejectVolunteer)
					r.Post("/volunteers/{id}/schedule", adminHandler.ScheduleVolunteer)

					r.Get("/notifications", adminHandler.ListNotifications)
					r.Post("/notifications/{id}/read", adminHandler.MarkNotificationRead)
					r.Delete("/notifications/{id}", adminHandler.DeleteNotification)
				})
			})
		})
	})
}
