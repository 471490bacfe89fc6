// Package janitor enforces workspace leases: it sweeps the workspace table on
// an interval, fires the one-time pre-expiry export notice, and tears down
// expired workspaces through their state machine to terminal deletion.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

// ExportNotifier snapshots a workspace and delivers it to the purchaser.
// Failure is non-fatal: the janitor retries on later sweeps until expiry and
// never delays teardown on it.
type ExportNotifier interface {
	ExportAndNotify(ctx context.Context, ws *model.Workspace) error
}

// Stats summarizes one sweep. TeardownFailed > 0 across consecutive sweeps is
// the operator alert condition for a stuck backend.
type Stats struct {
	ExportDue      int
	Exported       int
	ExportFailed   int
	Expired        int
	TornDown       int
	TeardownFailed int
}

type Janitor struct {
	tx          store.TxRunner
	backend     backend.ContainerBackend
	notifier    ExportNotifier
	exportLead  time.Duration
	hookTimeout time.Duration
	now         func() time.Time
}

func New(tx store.TxRunner, cb backend.ContainerBackend, notifier ExportNotifier, exportLead time.Duration) *Janitor {
	return &Janitor{
		tx:          tx,
		backend:     cb,
		notifier:    notifier,
		exportLead:  exportLead,
		hookTimeout: 2 * time.Minute,
		now:         time.Now,
	}
}

// SweepOnce runs both passes over the workspace table. Rows are processed
// independently: one row's failure never blocks the rest of the batch, and a
// second sweep over unchanged state is a no-op.
func (j *Janitor) SweepOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := j.now().UTC()

	if err := j.exportPass(ctx, now, &stats); err != nil {
		return stats, fmt.Errorf("export pass: %w", err)
	}
	if err := j.teardownPass(ctx, now, &stats); err != nil {
		return stats, fmt.Errorf("teardown pass: %w", err)
	}

	slog.InfoContext(ctx, "sweep complete",
		"export_due", stats.ExportDue, "exported", stats.Exported, "export_failed", stats.ExportFailed,
		"expired", stats.Expired, "torn_down", stats.TornDown, "teardown_failed", stats.TeardownFailed)
	return stats, nil
}

// exportPass fires the pre-expiry export notice for workspaces entering the
// lead window, exactly once per workspace.
func (j *Janitor) exportPass(ctx context.Context, now time.Time, stats *Stats) error {
	var due []model.Workspace
	err := j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		var err error
		due, err = s.Workspaces().ListExportDue(ctx, now, j.exportLead)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing export-due workspaces: %w", err)
	}
	stats.ExportDue = len(due)

	for i := range due {
		ws := &due[i]
		sent, err := j.exportOne(ctx, ws)
		if err != nil {
			stats.ExportFailed++
			slog.WarnContext(ctx, "export notice failed, will retry next sweep",
				"workspace_id", ws.ID, "subdomain", ws.Subdomain, "error", err)
			continue
		}
		if sent {
			stats.Exported++
		}
	}
	return nil
}

var errRowSkipped = errors.New("row skipped")

// exportOne drives the lock/decide, unlocked hook call, lock/re-check/commit
// protocol for a single row. The advisory lock is never held across the hook
// call; interleaving from another sweep shows up in the compare-and-set on
// commit instead.
func (j *Janitor) exportOne(ctx context.Context, ws *model.Workspace) (bool, error) {
	err := j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		locked, err := s.LockWorkspace(ctx, ws.ID)
		if err != nil {
			return err
		}
		if !locked {
			return errRowSkipped
		}
		current, err := s.Workspaces().GetByID(ctx, ws.ID)
		if err != nil {
			return err
		}
		if current.Status != model.StatusActive || current.ExportNoticeSent || !current.ExpiresAt.After(j.now().UTC()) {
			return errRowSkipped
		}
		return nil
	})
	if errors.Is(err, errRowSkipped) || errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	hookCtx, cancel := context.WithTimeout(ctx, j.hookTimeout)
	err = j.notifier.ExportAndNotify(hookCtx, ws)
	cancel()
	if err != nil {
		return false, fmt.Errorf("export hook: %w", err)
	}

	err = j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		locked, err := s.LockWorkspace(ctx, ws.ID)
		if err != nil {
			return err
		}
		if !locked {
			return errRowSkipped
		}
		return s.Workspaces().MarkExportNoticeSent(ctx, ws.ID)
	})
	if errors.Is(err, errRowSkipped) || errors.Is(err, store.ErrNotFound) {
		// The row was torn down or flagged while the hook was in flight;
		// nothing left to record.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// teardownPass drives every expired workspace toward deletion. Backend calls
// are idempotent with respect to already-absent resources, so a teardown that
// a previous crashed sweep left half done completes cleanly here.
func (j *Janitor) teardownPass(ctx context.Context, now time.Time, stats *Stats) error {
	var expired []model.Workspace
	err := j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		var err error
		expired, err = s.Workspaces().ListExpired(ctx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing expired workspaces: %w", err)
	}
	stats.Expired = len(expired)

	for i := range expired {
		ws := &expired[i]
		removed, err := j.teardownOne(ctx, ws)
		if err != nil {
			stats.TeardownFailed++
			slog.ErrorContext(ctx, "teardown failed, row left for next sweep",
				"workspace_id", ws.ID, "subdomain", ws.Subdomain, "status", ws.Status, "error", err)
			continue
		}
		if removed {
			stats.TornDown++
		}
	}
	return nil
}

func (j *Janitor) teardownOne(ctx context.Context, ws *model.Workspace) (bool, error) {
	// Claim the row: re-check expiry under the lock and durably record the
	// stopping intent before the first backend call, so a crash mid-teardown
	// leaves a resumable row.
	err := j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		locked, err := s.LockWorkspace(ctx, ws.ID)
		if err != nil {
			return err
		}
		if !locked {
			return errRowSkipped
		}
		current, err := s.Workspaces().GetByID(ctx, ws.ID)
		if err != nil {
			return err
		}
		if current.ExpiresAt.After(j.now().UTC()) {
			// Lease was extended by an operator since the scan.
			return errRowSkipped
		}
		if current.Status == model.StatusActive {
			return s.Workspaces().UpdateStatus(ctx, ws.ID, model.StatusActive, model.StatusStopping)
		}
		// Rows still in provisioning (crashed mid-provision) or already in
		// stopping (crashed mid-teardown) keep their status; both are
		// rescanned until the backend resources are confirmed gone.
		return nil
	})
	if errors.Is(err, errRowSkipped) || errors.Is(err, store.ErrNotFound) {
		// Lease extended, lock held elsewhere, or already deleted by a
		// concurrent sweep.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming row: %w", err)
	}

	// Backend teardown happens without any store lock held.
	if err := j.backend.Stop(ctx, ws.ContainerName); err != nil {
		return false, fmt.Errorf("stopping container: %w", err)
	}
	if err := j.backend.Remove(ctx, ws.ContainerName); err != nil {
		return false, fmt.Errorf("removing container: %w", err)
	}
	if err := j.backend.RemoveVolume(ctx, ws.VolumeName); err != nil {
		return false, fmt.Errorf("removing volume: %w", err)
	}

	err = j.tx.WithTx(ctx, func(s store.StoreProvider) error {
		locked, err := s.LockWorkspace(ctx, ws.ID)
		if err != nil {
			return err
		}
		if !locked {
			return errRowSkipped
		}
		return s.Workspaces().Delete(ctx, ws.ID)
	})
	if errors.Is(err, errRowSkipped) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting row: %w", err)
	}

	slog.InfoContext(ctx, "workspace torn down",
		"workspace_id", ws.ID, "subdomain", ws.Subdomain,
		"container", ws.ContainerName, "volume", ws.VolumeName)
	return true, nil
}
