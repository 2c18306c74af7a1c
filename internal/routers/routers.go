package routers

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/config"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/handlers"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/ws"
	"github.com/DarshiBhavsar/chat-app-sub000/utils/ratelimit"
)

// Handlers groups the REST handlers mounted under /api.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Friend  *handlers.FriendHandler
	Status  *handlers.StatusHandler
	Message *handlers.MessageHandler
	Group   *handlers.GroupHandler
	Profile *handlers.ProfileHandler
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, cfg *config.Config,
	mw *middlewares.MiddlewareManager,
	pool *utils.WorkerPool, // nil 时同步处理
	hub *ws.Hub,
	h *Handlers,
) {
	r.Use(mw.Logger())
	r.Use(middlewares.MaxConcurrencyMiddleware(cfg.Server.MaxConcurrent))
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	// WebSocket 路由 (必须在 AsyncMiddleware 之前注册，避免握手请求被放入 Worker Pool)
	// 身份由 user-joined 事件中的 token 给出
	r.GET("/ws", hub.Handler())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": hub.Connections(),
			"online":      len(hub.Registry().Online()),
		})
	})

	// 异步处理中间件
	// 将请求放入 Worker Pool 中排队执行；Recovery 必须在其后，panic 才会在 worker 内被捕获
	r.Use(middlewares.AsyncMiddleware(pool))
	r.Use(mw.Recovery())
	if sentry.CurrentHub().Client() != nil {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}

	api := r.Group("/api")
	RegisterAuthRoutes(api, mw, h.Auth)

	authed := api.Group("")
	authed.Use(mw.JWTAuth(), mw.RateLimiterByEndpoint(ratelimit.EndpointAPI))
	RegisterFriendRoutes(authed, h.Friend)
	RegisterStatusRoutes(authed, mw, h.Status)
	RegisterMessageRoutes(authed, mw, h.Message)
	RegisterGroupRoutes(authed, mw, h.Group)
	RegisterProfileRoutes(authed, mw, h.Profile)
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middlewares.TraceHeader}
	config.ExposeHeaders = []string{middlewares.TraceHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	return config
}

func RegisterAuthRoutes(api *gin.RouterGroup, mw *middlewares.MiddlewareManager, h *handlers.AuthHandler) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", mw.RateLimiterByEndpoint(ratelimit.EndpointRegister), h.Register) // 注册
		auth.POST("/login", mw.RateLimiterByEndpoint(ratelimit.EndpointLogin), h.Login)          // 登录
	}
	auth.Use(mw.JWTAuth())
	{
		auth.GET("/me", h.Me)
		auth.POST("/logout", h.Logout)
		auth.PATCH("/password", h.ChangePassword)
	}
}

func RegisterFriendRoutes(api *gin.RouterGroup, h *handlers.FriendHandler) {
	friends := api.Group("/friends")
	{
		friends.GET("", h.ListFriends)
		friends.GET("/requests", h.ListRequests)
		friends.GET("/blocked", h.ListBlocked)
		friends.GET("/search", h.Search)

		friends.POST("/requests/:userId", h.SendRequest)
		friends.POST("/requests/:userId/accept", h.AcceptRequest)
		friends.POST("/requests/:userId/decline", h.DeclineRequest)
		friends.DELETE("/requests/:userId", h.CancelRequest)
		friends.DELETE("/:userId", h.Unfriend)

		friends.POST("/block/:userId", h.Block)
		friends.DELETE("/block/:userId", h.Unblock)
	}
}

func RegisterStatusRoutes(api *gin.RouterGroup, mw *middlewares.MiddlewareManager, h *handlers.StatusHandler) {
	status := api.Group("/status")
	{
		status.POST("", mw.RateLimiterByEndpoint(ratelimit.EndpointUpload), h.Create)
		status.GET("/feed", h.Feed)
		status.POST("/view", h.ViewBulk)
		status.GET("/:id", h.Get)
		status.POST("/:id/view", h.View)
		status.GET("/:id/viewers", h.Viewers)
		status.DELETE("/:id", h.Delete)
	}
}

func RegisterMessageRoutes(api *gin.RouterGroup, mw *middlewares.MiddlewareManager, h *handlers.MessageHandler) {
	send := mw.RateLimiterByEndpoint(ratelimit.EndpointMessage)

	messages := api.Group("/messages")
	{
		messages.POST("/direct/:userId", send, h.SendDirect)
		messages.GET("/direct/:userId", h.ListDirect)
		messages.POST("/groups/:groupId", send, h.SendGroup)
		messages.GET("/groups/:groupId", h.ListGroup)
		messages.POST("/upload", mw.RateLimiterByEndpoint(ratelimit.EndpointUpload), h.Upload)

		messages.DELETE("/:id", h.Delete)
		messages.POST("/:id/reactions", h.React)
		messages.POST("/:id/delivered", h.Delivered)
		messages.POST("/:id/read", h.Read)
	}
}

func RegisterGroupRoutes(api *gin.RouterGroup, mw *middlewares.MiddlewareManager, h *handlers.GroupHandler) {
	groups := api.Group("/groups")
	{
		groups.POST("", h.CreateGroup)
		groups.GET("", h.ListGroups)
		groups.GET("/:id", h.GetGroup)
		groups.PATCH("/:id", h.UpdateGroup)
		groups.DELETE("/:id", h.DeleteGroup)
		groups.POST("/:id/picture", mw.RateLimiterByEndpoint(ratelimit.EndpointUpload), h.UpdatePicture)
		groups.POST("/:id/members", h.AddMembers)
		groups.DELETE("/:id/members/:userId", h.RemoveMember)
		groups.POST("/:id/leave", h.LeaveGroup)
	}
}

func RegisterProfileRoutes(api *gin.RouterGroup, mw *middlewares.MiddlewareManager, h *handlers.ProfileHandler) {
	profile := api.Group("/profile")
	{
		profile.GET("/:userId", h.GetProfile)
		profile.PATCH("", h.UpdateProfile)
		profile.POST("/picture", mw.RateLimiterByEndpoint(ratelimit.EndpointUpload), h.UploadPicture)
		profile.DELETE("/picture", h.RemovePicture)
	}
}
