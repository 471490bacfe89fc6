package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/dto"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

type CheckoutHandler struct {
	cfg config.StripeConfig
}

func NewCheckoutHandler(cfg config.StripeConfig) *CheckoutHandler {
	stripe.Key = cfg.SecretKey
	return &CheckoutHandler{cfg: cfg}
}

// CreateSession starts a Stripe Checkout session for a plan purchase. The
// purchaser email and plan travel in the session metadata and come back on
// the completion webhook.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cfg.SecretKey == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stripe is not configured"})
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and plan are required"})
		return
	}

	plan := model.Plan(req.Plan)
	if !plan.Purchasable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(plan.Label()),
				},
				UnitAmount: stripe.Int64(plan.AmountCents()),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(h.cfg.SuccessURL),
		CancelURL:  stripe.String(h.cfg.CancelURL),
	}
	params.AddMetadata("email", req.Email)
	params.AddMetadata("plan", string(plan))

	sess, err := session.New(params)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create checkout session", "error", err, "plan", plan)
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe error"})
		return
	}

	c.JSON(http.StatusOK, dto.CheckoutResponse{CheckoutURL: sess.URL, ID: sess.ID})
}
