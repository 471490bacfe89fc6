// Package webhook receives payment-gateway callbacks and hands confirmed
// payments to the provisioner.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/service"
)

const (
	signatureHeader    = "Stripe-Signature"
	checkoutCompleted  = "checkout.session.completed"
	maxWebhookBodySize = 1 << 20
)

type StripeWebhookHandler struct {
	provisioner   service.WorkspaceProvisioner
	webhookSecret string
}

// NewStripeWebhookHandler builds the webhook endpoint. With an empty secret
// the signature check is skipped (local development against the Stripe CLI or
// curl); in production the secret must be set.
func NewStripeWebhookHandler(provisioner service.WorkspaceProvisioner, webhookSecret string) *StripeWebhookHandler {
	return &StripeWebhookHandler{provisioner: provisioner, webhookSecret: webhookSecret}
}

// HandleEvent processes checkout.session.completed and ignores every other
// event type. Stripe redelivers on non-2xx, so transient provisioning
// failures return 502 and a duplicate delivery of an already-provisioned
// session returns the existing workspace with 200.
func (h *StripeWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	eventType, sess, err := h.parseEvent(payload, c.GetHeader(signatureHeader))
	if err != nil {
		slog.WarnContext(ctx, "rejected webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if eventType != checkoutCompleted {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}

	email := sess.Metadata["email"]
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email in event"})
		return
	}

	plan := model.Plan(sess.Metadata["plan"])
	if plan == "" {
		plan = model.PlanOneDay
	}
	if !plan.Purchasable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}

	ws, err := h.provisioner.Provision(ctx, service.PaymentEvent{
		SessionID:   sess.ID,
		Email:       email,
		Plan:        plan,
		AmountCents: sess.AmountTotal,
	})
	if err != nil {
		if errors.Is(err, service.ErrProvisioningInProgress) {
			// Another delivery of this session is mid-provision; let Stripe
			// redeliver once it has finished either way.
			c.JSON(http.StatusConflict, gin.H{"error": "provisioning in progress"})
			return
		}
		slog.ErrorContext(ctx, "provisioning from webhook failed",
			"session_id", sess.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "provisioning failed"})
		return
	}

	slog.InfoContext(ctx, "payment provisioned",
		"session_id", sess.ID, "workspace_id", ws.ID, "subdomain", ws.Subdomain)
	c.JSON(http.StatusOK, gin.H{"ok": true, "workspace_id": ws.ID, "subdomain": ws.Subdomain})
}

func (h *StripeWebhookHandler) parseEvent(payload []byte, signature string) (string, *stripe.CheckoutSession, error) {
	var raw json.RawMessage
	var eventType string

	if h.webhookSecret != "" {
		event, err := stripewebhook.ConstructEvent(payload, signature, h.webhookSecret)
		if err != nil {
			return "", nil, err
		}
		eventType = string(event.Type)
		raw = event.Data.Raw
	} else {
		var event struct {
			Type string `json:"type"`
			Data struct {
				Object json.RawMessage `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &event); err != nil {
			return "", nil, err
		}
		eventType = event.Type
		raw = event.Data.Object
	}

	if eventType != checkoutCompleted {
		return eventType, nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return "", nil, err
	}
	if sess.ID == "" {
		return "", nil, errors.New("event has no session id")
	}
	return eventType, &sess, nil
}
