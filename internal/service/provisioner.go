package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vulkanCommand/xcommand-n8n-rental/common/id"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

var (
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrProvisioningInProgress means another delivery of the same payment is
	// mid-provision right now; the caller should let the webhook be retried.
	ErrProvisioningInProgress = errors.New("provisioning already in progress for this payment")
)

const uniqueViolation = "23505"

// PaymentEvent is a verified payment confirmation. Verification of the event
// itself (signature, amount) happens at the transport boundary; by the time a
// PaymentEvent reaches the provisioner it is trusted.
type PaymentEvent struct {
	SessionID   string
	Email       string
	Plan        model.Plan
	AmountCents int64
	// LeaseOverride sets the lease length for the internal test plan. It is
	// an operator/test path only and ignored for purchasable plans.
	LeaseOverride time.Duration
}

// WorkspaceProvisioner is the payment-to-workspace entry point consumed by
// the HTTP layer.
type WorkspaceProvisioner interface {
	Provision(ctx context.Context, event PaymentEvent) (*model.Workspace, error)
}

type Provisioner struct {
	tx            store.TxRunner
	stores        store.StoreProvider
	allocator     *SubdomainAllocator
	backend       backend.ContainerBackend
	baseDomain    string
	publicHost    string
	encryptionKey string
	now           func() time.Time
}

var _ WorkspaceProvisioner = (*Provisioner)(nil)

func NewProvisioner(
	tx store.TxRunner,
	stores store.StoreProvider,
	allocator *SubdomainAllocator,
	cb backend.ContainerBackend,
	baseDomain, publicHost, encryptionKey string,
) *Provisioner {
	return &Provisioner{
		tx:            tx,
		stores:        stores,
		allocator:     allocator,
		backend:       cb,
		baseDomain:    baseDomain,
		publicHost:    publicHost,
		encryptionKey: encryptionKey,
		now:           time.Now,
	}
}

// Provision creates the workspace purchased by the given payment. Redelivery
// of the same payment session returns the existing workspace without touching
// the backend; a payment whose workspace died on the fast-fail path is allowed
// to provision again.
func (p *Provisioner) Provision(ctx context.Context, event PaymentEvent) (*model.Workspace, error) {
	leaseDuration, err := p.leaseDuration(event)
	if err != nil {
		return nil, err
	}

	ws, existing, err := p.recordIntent(ctx, event, leaseDuration)
	if err != nil {
		return nil, err
	}
	if existing {
		slog.InfoContext(ctx, "payment already provisioned, returning existing workspace",
			"session_id", event.SessionID, "workspace_id", ws.ID, "subdomain", ws.Subdomain)
		return ws, nil
	}

	hostPort, err := p.backend.Create(ctx, backend.CreateSpec{
		Subdomain:     ws.Subdomain,
		ContainerName: ws.ContainerName,
		VolumeName:    ws.VolumeName,
		EncryptionKey: p.encryptionKey,
		ExpiresAt:     ws.ExpiresAt,
	})
	if err != nil {
		p.failFast(ctx, ws, event.SessionID)
		return nil, fmt.Errorf("creating backend resources for %s: %w", ws.Subdomain, err)
	}

	published := fmt.Sprintf("http://%s:%d", p.publicHost, hostPort)
	if err := p.activate(ctx, ws, published); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "workspace provisioned",
		"workspace_id", ws.ID, "subdomain", ws.Subdomain, "plan", ws.Plan,
		"expires_at", ws.ExpiresAt, "address", published)
	return ws, nil
}

func (p *Provisioner) leaseDuration(event PaymentEvent) (time.Duration, error) {
	if !event.Plan.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlan, event.Plan)
	}
	if event.Plan == model.PlanTest {
		if event.LeaseOverride <= 0 {
			return 0, fmt.Errorf("%w: test plan requires an explicit lease duration", ErrInvalidPlan)
		}
		return event.LeaseOverride, nil
	}
	return event.Plan.Duration(), nil
}

// recordIntent durably records the payment and the workspace row in status
// provisioning before anything touches the backend. The second return value
// is true when the payment was already successfully provisioned and the
// existing workspace should be returned as-is.
func (p *Provisioner) recordIntent(ctx context.Context, event PaymentEvent, lease time.Duration) (*model.Workspace, bool, error) {
	subdomain, err := p.allocator.Allocate(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		ws       *model.Workspace
		existing bool
	)
	err = p.tx.WithTx(ctx, func(s store.StoreProvider) error {
		payment, err := s.Payments().GetBySessionID(ctx, event.SessionID)
		switch {
		case err == nil:
			if payment.WorkspaceID != nil {
				live, err := s.Workspaces().GetByID(ctx, *payment.WorkspaceID)
				if err == nil && live.Live() {
					ws = live
					existing = true
					return nil
				}
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("loading workspace for payment %s: %w", event.SessionID, err)
				}
				// The associated workspace is dead; clear the link so this
				// delivery may provision a fresh one.
				if err := s.Payments().DetachWorkspace(ctx, payment.ID); err != nil {
					return fmt.Errorf("detaching dead workspace: %w", err)
				}
			}
		case errors.Is(err, store.ErrNotFound):
			if err := s.Users().EnsureByEmail(ctx, event.Email); err != nil {
				return fmt.Errorf("ensuring app user: %w", err)
			}
			payment = &model.Payment{
				ID:                id.New(),
				ExternalSessionID: event.SessionID,
				Email:             event.Email,
				Plan:              event.Plan,
				AmountCents:       event.AmountCents,
			}
			if err := s.Payments().Create(ctx, payment); err != nil {
				if isUniqueViolation(err) {
					return ErrProvisioningInProgress
				}
				return fmt.Errorf("recording payment: %w", err)
			}
		default:
			return fmt.Errorf("looking up payment %s: %w", event.SessionID, err)
		}

		now := p.now().UTC()
		ws = &model.Workspace{
			ID:            id.New(),
			Email:         event.Email,
			Plan:          event.Plan,
			Subdomain:     subdomain,
			FQDN:          FQDNFor(subdomain, p.baseDomain),
			ContainerName: ContainerNameFor(subdomain),
			VolumeName:    VolumeNameFor(subdomain),
			Status:        model.StatusProvisioning,
			ExpiresAt:     now.Add(lease),
		}
		if err := s.Workspaces().Create(ctx, ws); err != nil {
			return fmt.Errorf("creating workspace row: %w", err)
		}
		// Attach inside the intent transaction so a redelivery arriving while
		// the backend call is in flight finds this row instead of starting a
		// second container.
		if err := s.Payments().AttachWorkspace(ctx, payment.ID, ws.ID); err != nil {
			return fmt.Errorf("attaching workspace to payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ws, existing, nil
}

// activate flips the row to active and records the published address.
func (p *Provisioner) activate(ctx context.Context, ws *model.Workspace, published string) error {
	err := p.tx.WithTx(ctx, func(s store.StoreProvider) error {
		if err := s.Workspaces().MarkActive(ctx, ws.ID, published); err != nil {
			return fmt.Errorf("marking workspace active: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ws.Status = model.StatusActive
	ws.FQDN = published
	return nil
}

// failFast cleans up after a backend creation failure: best-effort removal of
// whatever was partially created, then the row goes straight to deleted. The
// payment stays attached to the dead row for reconciliation; a redelivered
// webhook sees the row is not live, detaches and tries again.
func (p *Provisioner) failFast(ctx context.Context, ws *model.Workspace, sessionID string) {
	if err := p.backend.Stop(ctx, ws.ContainerName); err != nil {
		slog.WarnContext(ctx, "cleanup stop failed", "container", ws.ContainerName, "error", err)
	}
	if err := p.backend.Remove(ctx, ws.ContainerName); err != nil {
		slog.WarnContext(ctx, "cleanup remove failed", "container", ws.ContainerName, "error", err)
	}
	if err := p.backend.RemoveVolume(ctx, ws.VolumeName); err != nil {
		slog.WarnContext(ctx, "cleanup volume remove failed", "volume", ws.VolumeName, "error", err)
	}

	if err := p.stores.Workspaces().UpdateStatus(ctx, ws.ID, model.StatusProvisioning, model.StatusDeleted); err != nil {
		slog.ErrorContext(ctx, "failed to mark dead workspace deleted",
			"workspace_id", ws.ID, "session_id", sessionID, "error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
