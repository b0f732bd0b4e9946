package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sbk2k1/sbk-assistant/internal/middleware"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/jwt"
)

type RouterDeps struct {
	Health          *HealthHandler
	Upload          *UploadHandler
	Chat            *ChatHandler
	JWTSecret       []byte
	UploadRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/", deps.Health.Get)
	api.GET("/chat", deps.Chat.Serve)

	uploadGroup := api.Group("")
	if len(deps.JWTSecret) > 0 {
		uploadGroup.Use(middleware.JWTAuth(deps.JWTSecret, jwt.ScopeUpload))
	}
	uploadGroup.Use(middleware.RateLimit(deps.UploadRateLimit))
	uploadGroup.POST("/upload", deps.Upload.Upload)
}
