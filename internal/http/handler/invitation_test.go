package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/http/handler"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("InvitationHandler", func() {
	var (
		router *gin.Engine
		svc    *mockInvitationService
	)

	BeforeEach(func() {
		router = newRouter(adminContext())
		svc = &mockInvitationService{}
		h := handler.NewInvitationHandler(svc)
		router.POST("/invitations", h.Send)
		router.GET("/invitations", h.List)
		router.POST("/invitations/:id/resend", h.Resend)
		router.DELETE("/invitations/:id", h.Revoke)
	})

	Describe("Send", func() {
		It("returns 201 with the stored invitation", func() {
			var got service.SendInvitationInput
			svc.sendFn = func(_ context.Context, _ *service.RequestContext, in service.SendInvitationInput) (*model.Invitation, error) {
				got = in
				return &model.Invitation{
					ID:         10,
					Email:      in.Email,
					Role:       in.Role,
					CustomerID: in.CustomerID,
					ExpiresAt:  time.Now().Add(time.Hour),
				}, nil
			}

			w := serve(router, http.MethodPost, "/invitations", map[string]string{
				"email":       "bob@example.com",
				"role":        "client",
				"customer_id": "55",
			})

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(got.Role).To(Equal(model.RoleClient))
			Expect(*got.CustomerID).To(Equal(int64(55)))
			Expect(decode(w)["customer_id"]).To(Equal("55"))
		})

		It("returns 400 for a malformed body", func() {
			w := serve(router, http.MethodPost, "/invitations", `{`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for validation failures", func() {
			svc.sendFn = func(_ context.Context, _ *service.RequestContext, _ service.SendInvitationInput) (*model.Invitation, error) {
				return nil, service.ErrCustomerRequired
			}

			w := serve(router, http.MethodPost, "/invitations", map[string]string{"email": "bob@example.com", "role": "client"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w)["code"]).To(Equal("validation"))
		})

		It("returns 409 for a duplicate invitation", func() {
			svc.sendFn = func(_ context.Context, _ *service.RequestContext, _ service.SendInvitationInput) (*model.Invitation, error) {
				return nil, service.ErrInvitationExists
			}

			w := serve(router, http.MethodPost, "/invitations", map[string]string{"email": "bob@example.com", "role": "staff"})
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("returns 409 with the seat count when the plan is full", func() {
			svc.sendFn = func(_ context.Context, _ *service.RequestContext, _ service.SendInvitationInput) (*model.Invitation, error) {
				return nil, fmt.Errorf("%w: 3 of 3 staff seats in use", service.ErrPlanLimitReached)
			}

			w := serve(router, http.MethodPost, "/invitations", map[string]string{"email": "bob@example.com", "role": "staff"})
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decode(w)["error"]).To(ContainSubstring("3 of 3 staff seats"))
		})

		It("hides unexpected errors", func() {
			svc.sendFn = func(_ context.Context, _ *service.RequestContext, _ service.SendInvitationInput) (*model.Invitation, error) {
				return nil, errors.New("connection reset by peer")
			}

			w := serve(router, http.MethodPost, "/invitations", map[string]string{"email": "bob@example.com", "role": "staff"})
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(ContainSubstring("connection reset"))
		})
	})

	It("lists pending invitations", func() {
		svc.listPendingFn = func(_ context.Context, _ *service.RequestContext) ([]model.Invitation, error) {
			return []model.Invitation{{ID: 1, Email: "a@example.com"}, {ID: 2, Email: "b@example.com"}}, nil
		}

		w := serve(router, http.MethodGet, "/invitations", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["invitations"]).To(HaveLen(2))
	})

	It("resends by id", func() {
		svc.resendFn = func(_ context.Context, _ *service.RequestContext, invitationID int64) (*model.Invitation, error) {
			Expect(invitationID).To(Equal(int64(42)))
			return &model.Invitation{ID: 43, Email: "bob@example.com"}, nil
		}

		w := serve(router, http.MethodPost, "/invitations/42/resend", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["id"]).To(Equal("43"))
	})

	It("returns 400 for a malformed id", func() {
		w := serve(router, http.MethodDelete, "/invitations/abc", nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 204 after revoking", func() {
		w := serve(router, http.MethodDelete, "/invitations/42", nil)
		Expect(w.Code).To(Equal(http.StatusNoContent))
	})

	It("returns 502 when the provider cannot revoke", func() {
		svc.revokeFn = func(_ context.Context, _ *service.RequestContext, _ int64) error {
			return fmt.Errorf("%w: revoke invitation: timeout", service.ErrExternalProvider)
		}

		w := serve(router, http.MethodDelete, "/invitations/42", nil)
		Expect(w.Code).To(Equal(http.StatusBadGateway))
	})
})
