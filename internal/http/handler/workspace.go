package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/dto"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/service"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

type WorkspaceHandler struct {
	stores      store.StoreProvider
	backend     backend.ContainerBackend
	provisioner service.WorkspaceProvisioner
}

func NewWorkspaceHandler(stores store.StoreProvider, cb backend.ContainerBackend, provisioner service.WorkspaceProvisioner) *WorkspaceHandler {
	return &WorkspaceHandler{
		stores:      stores,
		backend:     cb,
		provisioner: provisioner,
	}
}

func (h *WorkspaceHandler) GetBySubdomain(c *gin.Context) {
	ctx := c.Request.Context()

	ws, err := h.stores.Workspaces().GetBySubdomain(ctx, c.Param("subdomain"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load workspace", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "workspace": dto.ToWorkspaceResponse(ws)})
}

func (h *WorkspaceHandler) GetActiveByEmail(c *gin.Context) {
	ctx := c.Request.Context()

	ws, err := h.stores.Workspaces().GetActiveByEmail(ctx, c.Param("email"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active workspace for this email"})
			return
		}
		slog.ErrorContext(ctx, "failed to load workspace by email", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "workspace": dto.ToWorkspaceResponse(ws)})
}

func (h *WorkspaceHandler) ListByEmail(c *gin.Context) {
	ctx := c.Request.Context()

	workspaces, err := h.stores.Workspaces().ListByEmail(ctx, c.Param("email"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list workspaces by email", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list workspaces"})
		return
	}
	if len(workspaces) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active workspaces for this email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "workspaces": dto.ToWorkspaceResponses(workspaces)})
}

// Inspect is the operator/debug path: row state plus the live container state
// reported by the backend. Read-only, mutates nothing.
func (h *WorkspaceHandler) Inspect(c *gin.Context) {
	ctx := c.Request.Context()

	ws, err := h.stores.Workspaces().GetBySubdomain(ctx, c.Param("subdomain"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load workspace", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
		return
	}

	containerStatus, err := h.backend.Status(ctx, ws.ContainerName)
	if err != nil {
		slog.WarnContext(ctx, "failed to inspect container", "container", ws.ContainerName, "error", err)
		containerStatus = "unknown"
	}

	c.JSON(http.StatusOK, dto.InspectResponse{
		Subdomain:       ws.Subdomain,
		ContainerName:   ws.ContainerName,
		VolumeName:      ws.VolumeName,
		Address:         ws.FQDN,
		RowStatus:       string(ws.Status),
		ContainerStatus: containerStatus,
		ExpiresAt:       ws.ExpiresAt,
	})
}

// SimulateProvision is the dev/test provisioning path: it fabricates a
// payment session so the full provisioning flow can run without Stripe. The
// test plan takes an explicit lease duration, which is the only supported
// expiry override.
func (h *WorkspaceHandler) SimulateProvision(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SimulateProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and plan are required"})
		return
	}

	plan := model.Plan(req.Plan)
	event := service.PaymentEvent{
		SessionID:   "sim_" + newSessionToken(),
		Email:       req.Email,
		Plan:        plan,
		AmountCents: plan.AmountCents(),
	}
	if req.Lease != "" {
		lease, err := time.ParseDuration(req.Lease)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lease duration"})
			return
		}
		event.LeaseOverride = lease
	}

	ws, err := h.provisioner.Provision(ctx, event)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlan) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "simulated provisioning failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "provisioning failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "workspace": dto.ToWorkspaceResponse(ws)})
}

func (h *WorkspaceHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "api"})
}
