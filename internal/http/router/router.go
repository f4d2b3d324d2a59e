package router

import (
	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/handler"
	"clientdesk.app/identity/internal/http/handler/webhook"
	"clientdesk.app/identity/internal/http/middleware"
	"clientdesk.app/identity/internal/service"
	"clientdesk.app/identity/internal/signature"
)

type RouterConfig struct {
	// Tokens verifies provider access tokens on authenticated routes.
	Tokens middleware.TokenVerifier
	// Webhooks verifies inbound provider events; nil disables them.
	Webhooks *signature.Verifier
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	webhookHandler := webhook.NewWorkOSWebhookHandler(services.Webhook(), cfg.Webhooks)
	WebhookRouter(router.Group("/webhooks"), webhookHandler)

	authHandler := handler.NewAuthHandler(services.Login())
	AuthRouter(router.Group("/auth"), authHandler, cfg.Tokens)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireToken(cfg.Tokens), middleware.RequireUser(services.Access()))
	{
		userHandler := handler.NewUserHandler(services.Access())
		UserRouter(v1, userHandler)

		invitationHandler := handler.NewInvitationHandler(services.Invitations())
		InvitationRouter(v1.Group("/invitations"), invitationHandler)

		memberHandler := handler.NewMemberHandler(services.Members())
		MemberRouter(v1.Group("/members"), memberHandler)

		orgHandler := handler.NewOrganizationHandler(services.Organizations())
		OrganizationRouter(v1, orgHandler)
	}
}
