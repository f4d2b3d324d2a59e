package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/common/logger"
	"clientdesk.app/identity/internal/auth"
	"clientdesk.app/identity/internal/service"
)

type contextKey string

const (
	claimsContextKey         contextKey = "claims"
	requestContextContextKey contextKey = "request_context"
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// RequestResolver builds the request context for an authenticated user.
type RequestResolver interface {
	Resolve(ctx context.Context, externalUserID string, tokenImpersonated bool) (*service.RequestContext, error)
}

// RequireToken rejects requests without a valid provider access token.
func RequireToken(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		claims, err := verifier.Verify(raw)
		if err != nil {
			slog.InfoContext(c.Request.Context(), "rejected access token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			return
		}

		ctx := WithClaims(c.Request.Context(), claims)
		ctx = logger.WithLogFields(ctx, logger.LogFields{ExternalUserID: logger.Ptr(claims.Subject)})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireUser resolves the literal and effective users behind the token.
// It must run after RequireToken.
func RequireUser(resolver RequestResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		claims := GetClaims(ctx)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		rc, err := resolver.Resolve(ctx, claims.Subject, claims.Impersonated())
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserDeactivated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account has been removed", "code": "deactivated"})
			case errors.Is(err, service.ErrUnauthenticated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not synced", "code": "not_synced"})
			default:
				slog.ErrorContext(ctx, "failed to resolve request user", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			}
			return
		}

		fields := logger.LogFields{
			UserID:         &rc.Literal.ID,
			OrganizationID: rc.Literal.OrganizationID,
		}
		if rc.Effective.ID != rc.Literal.ID {
			fields.EffectiveID = &rc.Effective.ID
		}
		ctx = logger.WithLogFields(ctx, fields)
		ctx = context.WithValue(ctx, requestContextContextKey, rc)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

func GetRequestContext(ctx context.Context) *service.RequestContext {
	rc, _ := ctx.Value(requestContextContextKey).(*service.RequestContext)
	return rc
}

// WithClaims attaches verified token claims to ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// WithRequestContext attaches rc to ctx. Handlers read it with GetRequestContext.
func WithRequestContext(ctx context.Context, rc *service.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextContextKey, rc)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
