package dto

import (
	"time"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

// WorkspaceResponse is the ready-page read shape: enough for the landing page
// to show where the workspace lives and when the lease ends.
type WorkspaceResponse struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Subdomain string    `json:"subdomain"`
	FQDN      string    `json:"fqdn"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	ID        int64     `json:"id,string"`
}

func ToWorkspaceResponse(ws *model.Workspace) *WorkspaceResponse {
	return &WorkspaceResponse{
		ID:        ws.ID,
		Subdomain: ws.Subdomain,
		FQDN:      ws.FQDN,
		Plan:      string(ws.Plan),
		Status:    string(ws.Status),
		ExpiresAt: ws.ExpiresAt,
		CreatedAt: ws.CreatedAt,
	}
}

func ToWorkspaceResponses(workspaces []model.Workspace) []WorkspaceResponse {
	result := make([]WorkspaceResponse, len(workspaces))
	for i := range workspaces {
		result[i] = *ToWorkspaceResponse(&workspaces[i])
	}
	return result
}

// InspectResponse is the operator/debug view of one workspace: backend
// resource handles, published address and live container state. Read-only.
type InspectResponse struct {
	ExpiresAt       time.Time `json:"expires_at"`
	Subdomain       string    `json:"subdomain"`
	ContainerName   string    `json:"container_name"`
	VolumeName      string    `json:"volume_name"`
	Address         string    `json:"address"`
	RowStatus       string    `json:"row_status"`
	ContainerStatus string    `json:"container_status"`
}

type SimulateProvisionRequest struct {
	Email string `json:"email" binding:"required,email"`
	Plan  string `json:"plan" binding:"required"`
	// Lease is only honored for the test plan, e.g. "10m30s".
	Lease string `json:"lease,omitempty"`
}

type CheckoutRequest struct {
	Email string `json:"email" binding:"required,email"`
	Plan  string `json:"plan" binding:"required"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	ID          string `json:"id"`
}
