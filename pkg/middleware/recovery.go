package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"sevaconnect-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(logger *slog.Logger, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// 客户端断开，交给 net/http 处理
					panic(rec)
				}
				stack := debug.Stack()
				logger.Error("❌ PANIC", "panic", rec, "path", r.URL.Path, "stack", string(stack))

				if verbose {
					// 开发环境：显示详细错误信息
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR", fmt.Sprintf("Internal server error: %v", rec), string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
