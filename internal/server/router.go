package server

import (
	"net/http"
	"time"

	"github.com/stef44n/messaging-app/internal/auth"
	"github.com/stef44n/messaging-app/internal/config"
	"github.com/stef44n/messaging-app/internal/metrics"
	"github.com/stef44n/messaging-app/internal/mw"
	"github.com/stef44n/messaging-app/internal/notify"
	"github.com/stef44n/messaging-app/internal/service"
	"github.com/stef44n/messaging-app/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化中间件、REST API 与通知端点。
func SetupRouter(cfg config.Config, gdb *gorm.DB, hub *notify.Hub) *gin.Engine {
	tokens := token.NewService(cfg.JWTSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLDays)*24*time.Hour)

	userSvc := service.NewUserService(gdb, tokens)
	msgSvc := service.NewMessageService(gdb, hub)
	h := NewHandler(userSvc, msgSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestID())
	r.Use(mw.RequestLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "Messaging App API running"}) })
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.Middleware(tokens, gdb))

	authed.GET("/profile", h.Profile)
	authed.PUT("/profile", h.UpdateProfile)

	authed.GET("/messages/inbox", h.Inbox)
	authed.GET("/messages/:userId", h.Conversation)
	authed.POST("/messages/:recipientId", h.SendMessage)
	authed.DELETE("/messages/:messageId", h.DeleteMessage)

	authed.GET("/users/search", h.SearchUsers)

	api.GET("/ws", notify.Serve(hub, tokens))

	return r
}
