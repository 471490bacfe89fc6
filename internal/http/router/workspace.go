package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler"
)

func WorkspaceRouter(router *gin.RouterGroup, handler *handler.WorkspaceHandler) {
	router.GET("/:subdomain", handler.GetBySubdomain)
	router.GET("/:subdomain/inspect", handler.Inspect)
	router.GET("/by-email/:email", handler.GetActiveByEmail)
	router.GET("/all-by-email/:email", handler.ListByEmail)
}
