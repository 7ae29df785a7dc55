package handler

import (
	"context"
	"net/http"
	"sync"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/config"
	"sevaconnect-backend/pkg/handlers"
	"sevaconnect-backend/pkg/utils"
)

// 每个冷启动只初始化一次，热调用复用
var (
	instanceMu sync.Mutex
	router     http.Handler
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	h, err := getRouter(cfg)
	if err != nil {
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE",
			"Storage is unavailable, please try again", err.Error())
		return
	}

	// 将请求传递给Chi路由器处理
	h.ServeHTTP(w, r)
}

// getRouter 构建应用上下文和路由器。失败时不缓存，下次请求重试
func getRouter(cfg *config.Config) (http.Handler, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if router != nil {
		return router, nil
	}

	// 函数实例存活期间保持订阅和出站队列
	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.WithPooledConnection())
	if err != nil {
		return nil, err
	}
	if err := a.StartSync(ctx); err != nil {
		a.Logger.Warn("change feed unavailable, serving loaded state", "error", err)
	}
	go func() {
		if err := a.RunOutbox(ctx); err != nil {
			a.Logger.Error("outbox stopped", "error", err)
		}
	}()

	router = handlers.NewRouter(a)
	return router, nil
}
