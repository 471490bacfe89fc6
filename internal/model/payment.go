package model

import "time"

// Payment is the idempotency anchor for provisioning: exactly one workspace
// may be created per external checkout session. WorkspaceID records the
// successful association; it is nil until a workspace has been fully
// provisioned and is cleared again when that workspace dies on the
// provisioning fast-fail path, so a redelivered webhook may retry.
// Payment rows are never deleted.
type Payment struct {
	CreatedAt         time.Time `json:"created_at"`
	ExternalSessionID string    `json:"external_session_id"`
	Email             string    `json:"email"`
	Plan              Plan      `json:"plan"`
	WorkspaceID       *int64    `json:"workspace_id,string,omitempty"`
	ID                int64     `json:"id,string"`
	AmountCents       int64     `json:"amount_cents"`
}
