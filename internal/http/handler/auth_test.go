package handler_test

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/auth"
	"clientdesk.app/identity/internal/http/handler"
	"clientdesk.app/identity/internal/http/middleware"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("AuthHandler", func() {
	var (
		router *gin.Engine
		svc    *mockLoginService
	)

	BeforeEach(func() {
		router = newRouter(nil)
		svc = &mockLoginService{}
		h := handler.NewAuthHandler(svc)
		router.POST("/exchange", h.Exchange)
		router.POST("/sync", func(c *gin.Context) {
			claims := &auth.Claims{}
			claims.Subject = "user_ada"
			c.Request = c.Request.WithContext(middleware.WithClaims(c.Request.Context(), claims))
			c.Next()
		}, h.Sync)
	})

	Describe("Exchange", func() {
		It("returns tokens and the synced user", func() {
			svc.exchangeCodeFn = func(_ context.Context, code string) (*service.LoginResult, error) {
				Expect(code).To(Equal("code_123"))
				return &service.LoginResult{
					User:         &model.User{ID: 7, ExternalID: "user_ada", Email: "ada@example.com"},
					AccessToken:  "access",
					RefreshToken: "refresh",
				}, nil
			}

			w := serve(router, http.MethodPost, "/exchange", map[string]string{"code": "code_123"})

			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["access_token"]).To(Equal("access"))
			Expect(resp["user"]).To(HaveKeyWithValue("id", "7"))
		})

		It("returns 400 without a code", func() {
			w := serve(router, http.MethodPost, "/exchange", map[string]string{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 401 for a rejected code", func() {
			svc.exchangeCodeFn = func(_ context.Context, _ string) (*service.LoginResult, error) {
				return nil, service.ErrInvalidCode
			}

			w := serve(router, http.MethodPost, "/exchange", map[string]string{"code": "stale"})
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 502 when the provider is down", func() {
			svc.exchangeCodeFn = func(_ context.Context, _ string) (*service.LoginResult, error) {
				return nil, service.ErrExternalProvider
			}

			w := serve(router, http.MethodPost, "/exchange", map[string]string{"code": "code_123"})
			Expect(w.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("Sync", func() {
		It("syncs the token subject", func() {
			orgID := int64(100)
			svc.syncByExternalIDFn = func(_ context.Context, externalUserID string) (*model.User, error) {
				Expect(externalUserID).To(Equal("user_ada"))
				return &model.User{ID: 7, ExternalID: externalUserID, OrganizationID: &orgID}, nil
			}

			w := serve(router, http.MethodPost, "/sync", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["has_organization"]).To(BeTrue())
		})

		It("returns 401 for a removed user", func() {
			svc.syncByExternalIDFn = func(_ context.Context, _ string) (*model.User, error) {
				return nil, service.ErrUserDeactivated
			}

			w := serve(router, http.MethodPost, "/sync", nil)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
