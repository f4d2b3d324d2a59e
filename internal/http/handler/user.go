package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/dto"
	"clientdesk.app/identity/internal/service"
)

type UserHandler struct {
	access service.AccessService
}

func NewUserHandler(access service.AccessService) *UserHandler {
	return &UserHandler{access: access}
}

func (h *UserHandler) Me(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toMeResponse(rc))
}

func (h *UserHandler) StartImpersonation(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req dto.StartImpersonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: user_id is required"})
		return
	}

	next, err := h.access.StartImpersonating(c.Request.Context(), rc, req.UserID)
	if err != nil {
		respondError(c, err, "start impersonation")
		return
	}
	c.JSON(http.StatusOK, toMeResponse(next))
}

func (h *UserHandler) StopImpersonation(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	next, err := h.access.StopImpersonating(c.Request.Context(), rc)
	if err != nil {
		respondError(c, err, "stop impersonation")
		return
	}
	c.JSON(http.StatusOK, toMeResponse(next))
}

func toMeResponse(rc *service.RequestContext) dto.MeResponse {
	return dto.MeResponse{
		User:              dto.ToUserResponse(rc.Literal),
		EffectiveUser:     dto.ToUserResponse(rc.Effective),
		Impersonating:     rc.Impersonating(),
		TokenImpersonated: rc.TokenImpersonated,
	}
}
