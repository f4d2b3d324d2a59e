package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/auth"
	"clientdesk.app/identity/internal/http/middleware"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("Auth middleware", func() {
	var (
		router   *gin.Engine
		verifier *mockVerifier
		resolver *mockResolver
		seen     *service.RequestContext
	)

	get := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		seen = nil
		verifier = &mockVerifier{}
		user := &model.User{ID: 1, ExternalID: "user_abc"}
		resolver = &mockResolver{
			resolveFn: func(_ context.Context, _ string, tokenImpersonated bool) (*service.RequestContext, error) {
				return &service.RequestContext{Literal: user, Effective: user, TokenImpersonated: tokenImpersonated}, nil
			},
		}
		router = gin.New()
		router.GET("/me", middleware.RequireToken(verifier), middleware.RequireUser(resolver), func(c *gin.Context) {
			seen = middleware.GetRequestContext(c.Request.Context())
			c.Status(http.StatusOK)
		})
	})

	It("resolves the token subject", func() {
		var subject string
		resolver.resolveFn = func(_ context.Context, externalUserID string, _ bool) (*service.RequestContext, error) {
			subject = externalUserID
			u := &model.User{ID: 1, ExternalID: externalUserID}
			return &service.RequestContext{Literal: u, Effective: u}, nil
		}

		w := get("Bearer abc")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(subject).To(Equal("user_abc"))
		Expect(seen).NotTo(BeNil())
	})

	It("passes the act claim through", func() {
		verifier.verifyFn = func(_ string) (*auth.Claims, error) {
			claims := &auth.Claims{Act: &auth.Actor{Sub: "user_support"}}
			claims.Subject = "user_abc"
			return claims, nil
		}

		Expect(get("Bearer abc").Code).To(Equal(http.StatusOK))
		Expect(seen.TokenImpersonated).To(BeTrue())
	})

	DescribeTable("rejects missing or malformed credentials",
		func(header string) {
			Expect(get(header).Code).To(Equal(http.StatusUnauthorized))
			Expect(seen).To(BeNil())
		},
		Entry("no header", ""),
		Entry("basic auth", "Basic dXNlcjpwYXNz"),
		Entry("empty bearer", "Bearer "),
	)

	It("rejects tokens the verifier refuses", func() {
		verifier.verifyFn = func(_ string) (*auth.Claims, error) {
			return nil, errors.New("token is expired")
		}

		w := get("Bearer abc")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(w.Body.String()).To(ContainSubstring("invalid access token"))
	})

	It("tells removed users apart from unsynced ones", func() {
		resolver.resolveFn = func(_ context.Context, _ string, _ bool) (*service.RequestContext, error) {
			return nil, service.ErrUserDeactivated
		}
		w := get("Bearer abc")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(w.Body.String()).To(ContainSubstring("deactivated"))

		resolver.resolveFn = func(_ context.Context, _ string, _ bool) (*service.RequestContext, error) {
			return nil, service.ErrUnauthenticated
		}
		w = get("Bearer abc")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(w.Body.String()).To(ContainSubstring("not_synced"))
	})

	It("returns 500 when resolution fails", func() {
		resolver.resolveFn = func(_ context.Context, _ string, _ bool) (*service.RequestContext, error) {
			return nil, errors.New("db down")
		}

		Expect(get("Bearer abc").Code).To(Equal(http.StatusInternalServerError))
	})
})
