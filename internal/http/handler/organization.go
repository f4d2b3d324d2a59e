package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/dto"
	"clientdesk.app/identity/internal/service"
)

type OrganizationHandler struct {
	orgs service.OrganizationService
}

func NewOrganizationHandler(orgs service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs}
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	org, err := h.orgs.Get(c.Request.Context(), rc)
	if err != nil {
		respondError(c, err, "get organization")
		return
	}
	c.JSON(http.StatusOK, dto.ToOrganizationResponse(org))
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: name is required"})
		return
	}

	org, user, err := h.orgs.Create(ctx, rc, service.CreateOrganizationInput{Name: req.Name})
	if err != nil {
		respondError(c, err, "create organization")
		return
	}

	slog.InfoContext(ctx, "organization created via API", "organization_id", org.ID)
	c.JSON(http.StatusCreated, dto.CreateOrganizationResponse{
		Organization: dto.ToOrganizationResponse(org),
		User:         dto.ToUserResponse(user),
	})
}

func (h *OrganizationHandler) UpdateSettings(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req dto.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	org, err := h.orgs.UpdateSettings(c.Request.Context(), rc, service.UpdateSettingsInput{
		Name:         req.Name,
		MaxStaff:     req.MaxStaff,
		MaxClients:   req.MaxClients,
		MaxCustomers: req.MaxCustomers,
	})
	if err != nil {
		respondError(c, err, "update organization")
		return
	}
	c.JSON(http.StatusOK, dto.ToOrganizationResponse(org))
}

func (h *OrganizationHandler) UpdateSubscription(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req dto.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: status is required"})
		return
	}

	org, err := h.orgs.UpdateSubscription(c.Request.Context(), rc, service.UpdateSubscriptionInput{
		Status:     req.Status,
		ProductKey: req.ProductKey,
	})
	if err != nil {
		respondError(c, err, "update subscription")
		return
	}
	c.JSON(http.StatusOK, dto.ToOrganizationResponse(org))
}

func (h *OrganizationHandler) CreateCustomer(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req dto.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: name is required"})
		return
	}

	customer, err := h.orgs.CreateCustomer(c.Request.Context(), rc, service.CreateCustomerInput{Name: req.Name})
	if err != nil {
		respondError(c, err, "create customer")
		return
	}
	c.JSON(http.StatusCreated, dto.ToCustomerResponse(customer))
}
