package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler/webhook"
)

func StripeRouter(router *gin.RouterGroup, checkout *handler.CheckoutHandler, hook *webhook.StripeWebhookHandler) {
	router.POST("/create-checkout-session", checkout.CreateSession)
	router.POST("/webhook", hook.HandleEvent)
}
