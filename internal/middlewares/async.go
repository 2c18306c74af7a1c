package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
)

// AsyncMiddleware 异步处理中间件
// 将请求的处理逻辑提交到 Worker Pool 中执行，而不是在 Gin 分配的 Goroutine 中直接执行。
// 这样可以严格控制并发处理的请求数量（CPU/DB 密集型操作）。
// 队列满时阻塞等待，直到有空位或请求被取消。
// Recovery 必须注册在本中间件之后，panic 才能在 worker 内被转换为 500 响应。
func AsyncMiddleware(pool *utils.WorkerPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 没有 Worker Pool 时降级为同步执行
		if pool == nil {
			c.Next()
			return
		}

		// gin.Context 不是线程安全的，但主 Goroutine 阻塞在 done 上，
		// 同一时间只有 worker 在操作 c
		done := make(chan struct{})
		task := func() {
			defer close(done)
			c.Next()
		}

		if err := pool.Submit(c.Request.Context(), task); err != nil {
			if c.Request.Context().Err() != nil {
				c.Abort()
				return
			}
			// 协程池已关闭（服务退出中），同步执行
			c.Next()
			return
		}

		<-done
	}
}
