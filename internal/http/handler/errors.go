package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/middleware"
	"clientdesk.app/identity/internal/service"
)

// respondError maps a service error onto its HTTP status. Unknown errors are
// logged and reported as 500 without leaking their text.
func respondError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()

	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, "failed to "+action, "error", err)
		c.JSON(status, gin.H{"error": "failed to " + action})
		return
	}
	if status == http.StatusBadGateway {
		slog.WarnContext(ctx, "identity provider failed", "action", action, "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrExternalProvider):
		return http.StatusBadGateway, "provider"
	}
	return http.StatusInternalServerError, "internal"
}

// pathID parses a snowflake id route parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// requestContext returns the caller resolved by middleware.RequireUser,
// answering 401 when the route was mounted without it.
func requestContext(c *gin.Context) (*service.RequestContext, bool) {
	rc := middleware.GetRequestContext(c.Request.Context())
	if rc == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	return rc, true
}
