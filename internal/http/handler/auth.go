package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/dto"
	"clientdesk.app/identity/internal/http/middleware"
	"clientdesk.app/identity/internal/service"
)

type AuthHandler struct {
	login service.LoginService
}

func NewAuthHandler(login service.LoginService) *AuthHandler {
	return &AuthHandler{login: login}
}

// Exchange completes the provider's hosted login by trading the
// authorization code for tokens, then syncs the user.
func (h *AuthHandler) Exchange(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ExchangeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: code is required"})
		return
	}

	result, err := h.login.ExchangeCode(ctx, req.Code)
	if err != nil {
		respondError(c, err, "complete login")
		return
	}

	slog.InfoContext(ctx, "user logged in", "user_id", result.User.ID, "email", result.User.Email)

	c.JSON(http.StatusOK, dto.ExchangeCodeResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         dto.ToUserResponse(result.User),
	})
}

// Sync reconciles the token's user with local state. The dashboard calls it
// after login and whenever it suspects membership changed at the provider.
func (h *AuthHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()

	claims := middleware.GetClaims(ctx)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := h.login.SyncByExternalID(ctx, claims.Subject)
	if err != nil {
		respondError(c, err, "sync user")
		return
	}

	c.JSON(http.StatusOK, dto.SyncResponse{
		User:            dto.ToUserResponse(user),
		HasOrganization: user.OrganizationID != nil,
	})
}
