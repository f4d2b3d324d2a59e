package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"clientdesk.app/identity/internal/http/handler/webhook"
	"clientdesk.app/identity/internal/signature"
)

type SignCmd struct {
	Payload string        `arg:"" optional:"" help:"Payload file, or - for stdin." default:"-"`
	Secret  string        `help:"Webhook signing secret." required:"" env:"WORKOS_WEBHOOK_SECRET"`
	Age     time.Duration `help:"Backdate the signature timestamp by this much." default:"0s"`
	URL     string        `help:"POST the signed payload to this URL instead of printing the header."`
}

func (s *SignCmd) Run(ctx context.Context) error {
	payload, err := readPayload(s.Payload)
	if err != nil {
		return err
	}

	header := signature.Sign(payload, s.Secret, time.Now().Add(-s.Age))
	if s.URL == "" {
		fmt.Println(header)
		return nil
	}
	return deliver(ctx, s.URL, payload, header)
}

type AcceptedCmd struct {
	URL            string        `help:"Webhook endpoint." default:"http://localhost:8080/webhooks/workos"`
	Secret         string        `help:"Webhook signing secret." required:"" env:"WORKOS_WEBHOOK_SECRET"`
	InvitationID   string        `help:"Provider invitation id." name:"invitation"`
	OrganizationID string        `help:"Provider organization id." name:"organization" required:""`
	UserID         string        `help:"Provider id of the accepting user." name:"user" required:""`
	Email          string        `help:"Email the invitation was sent to."`
	Age            time.Duration `help:"Backdate the signature timestamp by this much." default:"0s"`
	Print          bool          `help:"Print the signed request instead of sending it."`
}

func (a *AcceptedCmd) Run(ctx context.Context) error {
	payload, err := json.Marshal(map[string]any{
		"id":    "event_" + uuid.NewString(),
		"event": "invitation.accepted",
		"data": map[string]any{
			"object":           "invitation",
			"id":               a.InvitationID,
			"email":            a.Email,
			"state":            "accepted",
			"organization_id":  a.OrganizationID,
			"accepted_user_id": a.UserID,
			"accepted_at":      time.Now().UTC().Format(time.RFC3339),
		},
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	header := signature.Sign(payload, a.Secret, time.Now().Add(-a.Age))
	if a.Print {
		fmt.Printf("%s: %s\n%s\n", webhook.SignatureHeader, header, payload)
		return nil
	}
	return deliver(ctx, a.URL, payload, header)
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return payload, nil
}

func deliver(ctx context.Context, url string, payload []byte, header string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Printf("%s\n%s\n", resp.Status, bytes.TrimSpace(body))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with %s", resp.Status)
	}
	return nil
}
