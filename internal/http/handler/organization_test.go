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

var _ = Describe("OrganizationHandler", func() {
	var (
		router *gin.Engine
		svc    *mockOrganizationService
	)

	BeforeEach(func() {
		router = newRouter(adminContext())
		svc = &mockOrganizationService{}
		h := handler.NewOrganizationHandler(svc)
		router.GET("/organization", h.Get)
		router.POST("/organizations", h.Create)
		router.PATCH("/organization", h.UpdateSettings)
		router.PUT("/organization/subscription", h.UpdateSubscription)
		router.POST("/customers", h.CreateCustomer)
	})

	It("returns the caller's organization", func() {
		svc.getFn = func(_ context.Context, _ *service.RequestContext) (*model.Organization, error) {
			return &model.Organization{ID: 100, ExternalID: "org_acme", Name: "Acme"}, nil
		}

		w := serve(router, http.MethodGet, "/organization", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["id"]).To(Equal("100"))
	})

	Describe("Create", func() {
		It("returns the organization and its admin", func() {
			svc.createFn = func(_ context.Context, _ *service.RequestContext, in service.CreateOrganizationInput) (*model.Organization, *model.User, error) {
				orgID := int64(200)
				return &model.Organization{ID: orgID, Name: in.Name},
					&model.User{ID: 1, OrganizationID: &orgID, Role: model.RolePtr(model.RoleAdmin)}, nil
			}

			w := serve(router, http.MethodPost, "/organizations", map[string]string{"name": "Globex"})

			Expect(w.Code).To(Equal(http.StatusCreated))
			resp := decode(w)
			Expect(resp["organization"]).To(HaveKeyWithValue("name", "Globex"))
			Expect(resp["user"]).To(HaveKeyWithValue("role", "admin"))
		})

		It("returns 400 without a name", func() {
			w := serve(router, http.MethodPost, "/organizations", map[string]string{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 when the caller already has an organization", func() {
			svc.createFn = func(_ context.Context, _ *service.RequestContext, _ service.CreateOrganizationInput) (*model.Organization, *model.User, error) {
				return nil, nil, service.ErrAlreadyInOrg
			}

			w := serve(router, http.MethodPost, "/organizations", map[string]string{"name": "Globex"})
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	It("passes only the provided settings", func() {
		var got service.UpdateSettingsInput
		svc.updateSettingsFn = func(_ context.Context, _ *service.RequestContext, in service.UpdateSettingsInput) (*model.Organization, error) {
			got = in
			return &model.Organization{ID: 100, MaxStaff: *in.MaxStaff}, nil
		}

		w := serve(router, http.MethodPatch, "/organization", map[string]int{"max_staff": 4})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(got.Name).To(BeNil())
		Expect(*got.MaxStaff).To(Equal(4))
	})

	It("returns 403 for settings changes while impersonating", func() {
		svc.updateSettingsFn = func(_ context.Context, _ *service.RequestContext, _ service.UpdateSettingsInput) (*model.Organization, error) {
			return nil, service.ErrImpersonationBlocked
		}

		w := serve(router, http.MethodPatch, "/organization", map[string]string{"name": "Nope"})
		Expect(w.Code).To(Equal(http.StatusForbidden))
	})

	It("updates the subscription", func() {
		svc.updateSubscriptionFn = func(_ context.Context, _ *service.RequestContext, in service.UpdateSubscriptionInput) (*model.Organization, error) {
			return &model.Organization{ID: 100, SubscriptionStatus: in.Status, ProductKey: in.ProductKey}, nil
		}

		w := serve(router, http.MethodPut, "/organization/subscription", map[string]string{"status": "active", "product_key": "pro"})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["subscription_status"]).To(Equal("active"))
	})

	It("creates customers", func() {
		svc.createCustomerFn = func(_ context.Context, _ *service.RequestContext, in service.CreateCustomerInput) (*model.Customer, error) {
			return &model.Customer{ID: 55, OrganizationID: 100, Name: in.Name}, nil
		}

		w := serve(router, http.MethodPost, "/customers", map[string]string{"name": "Initech"})

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(decode(w)["organization_id"]).To(Equal("100"))
	})

	It("returns 409 when the customer cap is reached", func() {
		svc.createCustomerFn = func(_ context.Context, _ *service.RequestContext, _ service.CreateCustomerInput) (*model.Customer, error) {
			return nil, service.ErrPlanLimitReached
		}

		w := serve(router, http.MethodPost, "/customers", map[string]string{"name": "Initech"})
		Expect(w.Code).To(Equal(http.StatusConflict))
	})
})
