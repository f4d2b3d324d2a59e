package router

import (
	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/handler"
	"clientdesk.app/identity/internal/http/middleware"
)

func AuthRouter(rg *gin.RouterGroup, h *handler.AuthHandler, tokens middleware.TokenVerifier) {
	rg.POST("/exchange", h.Exchange)
	rg.POST("/sync", middleware.RequireToken(tokens), h.Sync)
}

func WebhookRouter(rg *gin.RouterGroup, h interface{ HandleEvent(*gin.Context) }) {
	rg.POST("/workos", h.HandleEvent)
}

func UserRouter(rg *gin.RouterGroup, h *handler.UserHandler) {
	rg.GET("/me", h.Me)
	rg.POST("/impersonation", h.StartImpersonation)
	rg.DELETE("/impersonation", h.StopImpersonation)
}
