package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/service"
	"clientdesk.app/identity/internal/signature"
)

// SignatureHeader carries "t=<unix>,v1=<hex>" on every WorkOS delivery.
const SignatureHeader = "WorkOS-Signature"

const maxBodyBytes = 1 << 20

type WorkOSWebhookHandler struct {
	webhooks service.WebhookService
	verifier *signature.Verifier
}

// NewWorkOSWebhookHandler builds the handler. A nil verifier means no secret
// is configured and every delivery is answered with 500.
func NewWorkOSWebhookHandler(webhooks service.WebhookService, verifier *signature.Verifier) *WorkOSWebhookHandler {
	return &WorkOSWebhookHandler{webhooks: webhooks, verifier: verifier}
}

type workosEvent struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type invitationAcceptedData struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	AcceptedUserID string `json:"accepted_user_id"`
}

func (h *WorkOSWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	if h.verifier == nil || h.verifier.Secret == "" {
		slog.ErrorContext(ctx, "workos webhook received but no secret is configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.verifier.Verify(body, c.GetHeader(SignatureHeader)) {
		slog.WarnContext(ctx, "rejected workos webhook with invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event workosEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.Event != service.EventInvitationAccepted {
		slog.DebugContext(ctx, "ignoring workos webhook", "event_id", event.ID, "event", event.Event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var data invitationAcceptedData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.AcceptedUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation.accepted payload"})
		return
	}

	user, err := h.webhooks.HandleInvitationAccepted(ctx, service.AcceptedInvitation{
		InvitationID:   data.ID,
		OrganizationID: data.OrganizationID,
		UserID:         data.AcceptedUserID,
		Email:          data.Email,
	})
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to process workos webhook", "error", err, "event_id", event.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	slog.InfoContext(ctx, "workos webhook processed",
		"event_id", event.ID,
		"user_id", user.ID,
	)
	c.JSON(http.StatusOK, gin.H{"status": "processed", "user_id": strconv.FormatInt(user.ID, 10)})
}
