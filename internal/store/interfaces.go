package store

import (
	"context"
	"errors"
	"time"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

var ErrNotFound = errors.New("not found")

type WorkspaceStore interface {
	GetByID(ctx context.Context, id int64) (*model.Workspace, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*model.Workspace, error)
	GetActiveByEmail(ctx context.Context, email string) (*model.Workspace, error)
	ListByEmail(ctx context.Context, email string) ([]model.Workspace, error)
	SubdomainExists(ctx context.Context, subdomain string) (bool, error)
	Create(ctx context.Context, ws *model.Workspace) error
	// UpdateStatus is a compare-and-set: the write only lands when the row is
	// still in the from status, so interleaving from another sweep or an
	// operator edit surfaces as ErrNotFound instead of a clobbered state.
	UpdateStatus(ctx context.Context, id int64, from, to model.Status) error
	MarkActive(ctx context.Context, id int64, fqdn string) error
	MarkExportNoticeSent(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	ListExportDue(ctx context.Context, now time.Time, lead time.Duration) ([]model.Workspace, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.Workspace, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

type PaymentStore interface {
	GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	Create(ctx context.Context, payment *model.Payment) error
	AttachWorkspace(ctx context.Context, id int64, workspaceID int64) error
	DetachWorkspace(ctx context.Context, id int64) error
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.AppUser, error)
	EnsureByEmail(ctx context.Context, email string) error
}
