package model

import "time"

// Status is the lifecycle state of a workspace. Transitions only ever move
// forward: provisioning -> active -> stopping -> deleted, with a fast path
// provisioning -> deleted when backend creation fails.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusStopping     Status = "stopping"
	StatusDeleted      Status = "deleted"
)

var statusOrder = map[Status]int{
	StatusProvisioning: 0,
	StatusActive:       1,
	StatusStopping:     2,
	StatusDeleted:      3,
}

// CanTransitionTo reports whether moving from s to next respects the forward-only
// state machine. Skipping states is only allowed on the provisioning->deleted
// fast-fail path.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	if s == StatusProvisioning && next == StatusDeleted {
		return true
	}
	return to == from+1
}

// Workspace is one rented n8n container instance with a bounded lease. The
// database row is the single source of truth for its lifecycle; a container
// with no row is a leak, and a row past active with no container is a bug.
type Workspace struct {
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	Email            string    `json:"email"`
	Plan             Plan      `json:"plan"`
	Subdomain        string    `json:"subdomain"`
	FQDN             string    `json:"fqdn"`
	ContainerName    string    `json:"container_name"`
	VolumeName       string    `json:"volume_name"`
	Status           Status    `json:"status"`
	ID               int64     `json:"id,string"`
	ExportNoticeSent bool      `json:"export_notice_sent"`
}

// Live reports whether the workspace still owns (or may still own) backend
// resources. A dead workspace may be re-provisioned from the same payment.
func (w *Workspace) Live() bool {
	return w.Status != StatusDeleted
}
