package router

import (
	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/handler"
)

// InvitationRouter mounts the admin invitation routes. Role checks happen in
// the service so impersonation guards apply uniformly.
func InvitationRouter(rg *gin.RouterGroup, h *handler.InvitationHandler) {
	rg.POST("", h.Send)
	rg.GET("", h.List)
	rg.POST("/:id/resend", h.Resend)
	rg.DELETE("/:id", h.Revoke)
}

func MemberRouter(rg *gin.RouterGroup, h *handler.MemberHandler) {
	rg.GET("", h.List)
	rg.DELETE("/:id", h.Remove)
	rg.PATCH("/:id/role", h.ChangeRole)
	rg.POST("/:id/customers", h.AssignCustomer)
	rg.GET("/:id/customers", h.ListAssignments)
}

func OrganizationRouter(rg *gin.RouterGroup, h *handler.OrganizationHandler) {
	rg.POST("/organizations", h.Create)
	rg.GET("/organization", h.Get)
	rg.PATCH("/organization", h.UpdateSettings)
	rg.PUT("/organization/subscription", h.UpdateSubscription)
	rg.POST("/customers", h.CreateCustomer)
}
