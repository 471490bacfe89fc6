package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler"
)

// ProvisionRouter exposes the dev/test provisioning path. It is only mounted
// outside production.
func ProvisionRouter(router *gin.RouterGroup, handler *handler.WorkspaceHandler) {
	router.POST("/simulate", handler.SimulateProvision)
}
