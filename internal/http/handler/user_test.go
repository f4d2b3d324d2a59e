package handler_test

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/http/handler"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("UserHandler", func() {
	var (
		router *gin.Engine
		svc    *mockAccessService
		rc     *service.RequestContext
	)

	BeforeEach(func() {
		rc = adminContext()
		router = newRouter(rc)
		svc = &mockAccessService{}
		h := handler.NewUserHandler(svc)
		router.GET("/me", h.Me)
		router.POST("/impersonation", h.StartImpersonation)
		router.DELETE("/impersonation", h.StopImpersonation)
	})

	It("returns the caller as both identities", func() {
		w := serve(router, http.MethodGet, "/me", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		resp := decode(w)
		Expect(resp["user"]).To(HaveKeyWithValue("id", "1"))
		Expect(resp["effective_user"]).To(HaveKeyWithValue("id", "1"))
		Expect(resp["impersonating"]).To(BeFalse())
	})

	It("returns 401 when no user was resolved", func() {
		bare := newRouter(nil)
		bare.GET("/me", handler.NewUserHandler(svc).Me)

		w := serve(bare, http.MethodGet, "/me", nil)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("starts impersonating the requested user", func() {
		svc.startFn = func(_ context.Context, rc *service.RequestContext, targetUserID int64) (*service.RequestContext, error) {
			target := &model.User{ID: targetUserID, Email: "staff@example.com"}
			literal := *rc.Literal
			literal.ImpersonatingUserID = &target.ID
			return &service.RequestContext{Literal: &literal, Effective: target}, nil
		}

		w := serve(router, http.MethodPost, "/impersonation", map[string]string{"user_id": "2"})

		Expect(w.Code).To(Equal(http.StatusOK))
		resp := decode(w)
		Expect(resp["effective_user"]).To(HaveKeyWithValue("id", "2"))
		Expect(resp["impersonating"]).To(BeTrue())
	})

	It("returns 403 when staff try to impersonate", func() {
		svc.startFn = func(_ context.Context, _ *service.RequestContext, _ int64) (*service.RequestContext, error) {
			return nil, service.ErrAdminRequired
		}

		w := serve(router, http.MethodPost, "/impersonation", map[string]string{"user_id": "2"})
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(decode(w)["code"]).To(Equal("forbidden"))
	})

	It("returns 404 for an unknown target", func() {
		svc.startFn = func(_ context.Context, _ *service.RequestContext, _ int64) (*service.RequestContext, error) {
			return nil, service.ErrUserNotFound
		}

		w := serve(router, http.MethodPost, "/impersonation", map[string]string{"user_id": "99"})
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 400 without a user id", func() {
		w := serve(router, http.MethodPost, "/impersonation", `{}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("stops impersonating", func() {
		w := serve(router, http.MethodDelete, "/impersonation", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["impersonating"]).To(BeFalse())
	})
})
