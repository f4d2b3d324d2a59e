package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/dto"
	"clientdesk.app/identity/internal/service"
)

type InvitationHandler struct {
	invitations service.InvitationService
}

func NewInvitationHandler(invitations service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// Send invites an email address into the caller's organization (admin only).
func (h *InvitationHandler) Send(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.SendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: email and role are required"})
		return
	}

	inv, err := h.invitations.Send(ctx, rc, service.SendInvitationInput{
		Email:      req.Email,
		Role:       req.Role,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		respondError(c, err, "send invitation")
		return
	}

	slog.InfoContext(ctx, "invitation sent via API", "invitation_id", inv.ID, "role", inv.Role)
	c.JSON(http.StatusCreated, dto.ToInvitationResponse(inv))
}

func (h *InvitationHandler) List(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	invitations, err := h.invitations.ListPending(c.Request.Context(), rc)
	if err != nil {
		respondError(c, err, "list invitations")
		return
	}

	resp := dto.ListInvitationsResponse{Invitations: make([]*dto.InvitationResponse, 0, len(invitations))}
	for i := range invitations {
		resp.Invitations = append(resp.Invitations, dto.ToInvitationResponse(&invitations[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InvitationHandler) Resend(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	invID, ok := pathID(c, "id")
	if !ok {
		return
	}

	inv, err := h.invitations.Resend(c.Request.Context(), rc, invID)
	if err != nil {
		respondError(c, err, "resend invitation")
		return
	}
	c.JSON(http.StatusOK, dto.ToInvitationResponse(inv))
}

func (h *InvitationHandler) Revoke(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	invID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.invitations.Revoke(c.Request.Context(), rc, invID); err != nil {
		respondError(c, err, "revoke invitation")
		return
	}
	c.Status(http.StatusNoContent)
}
