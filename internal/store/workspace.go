package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

const workspaceColumns = `id, email, plan, subdomain, fqdn, container_name, volume_name, status, expires_at, export_notice_sent, created_at`

type workspaceStore struct {
	q querier
}

func (s *workspaceStore) GetByID(ctx context.Context, id int64) (*model.Workspace, error) {
	row := s.q.QueryRow(ctx, `select `+workspaceColumns+` from workspaces where id = $1`, id)
	return scanWorkspace(row)
}

func (s *workspaceStore) GetBySubdomain(ctx context.Context, subdomain string) (*model.Workspace, error) {
	row := s.q.QueryRow(ctx, `select `+workspaceColumns+` from workspaces where subdomain = $1`, subdomain)
	return scanWorkspace(row)
}

func (s *workspaceStore) GetActiveByEmail(ctx context.Context, email string) (*model.Workspace, error) {
	row := s.q.QueryRow(ctx, `
		select `+workspaceColumns+`
		from workspaces
		where email = $1 and status <> 'deleted'
		order by created_at desc
		limit 1`, email)
	return scanWorkspace(row)
}

func (s *workspaceStore) ListByEmail(ctx context.Context, email string) ([]model.Workspace, error) {
	rows, err := s.q.Query(ctx, `
		select `+workspaceColumns+`
		from workspaces
		where email = $1 and status <> 'deleted'
		order by created_at desc`, email)
	if err != nil {
		return nil, err
	}
	return scanWorkspaces(rows)
}

func (s *workspaceStore) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `select exists(select 1 from workspaces where subdomain = $1)`, subdomain).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *workspaceStore) Create(ctx context.Context, ws *model.Workspace) error {
	row := s.q.QueryRow(ctx, `
		insert into workspaces (id, email, plan, subdomain, fqdn, container_name, volume_name, status, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+workspaceColumns,
		ws.ID, ws.Email, string(ws.Plan), ws.Subdomain, ws.FQDN, ws.ContainerName, ws.VolumeName, string(ws.Status), ws.ExpiresAt)
	created, err := scanWorkspace(row)
	if err != nil {
		return err
	}
	*ws = *created
	return nil
}

func (s *workspaceStore) UpdateStatus(ctx context.Context, id int64, from, to model.Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	tag, err := s.q.Exec(ctx, `update workspaces set status = $3 where id = $1 and status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *workspaceStore) MarkActive(ctx context.Context, id int64, fqdn string) error {
	tag, err := s.q.Exec(ctx, `
		update workspaces set status = 'active', fqdn = $2
		where id = $1 and status = 'provisioning'`, id, fqdn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *workspaceStore) MarkExportNoticeSent(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		update workspaces set export_notice_sent = true
		where id = $1 and export_notice_sent = false and status = 'active'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *workspaceStore) Delete(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `delete from workspaces where id = $1`, id)
	return err
}

func (s *workspaceStore) ListExportDue(ctx context.Context, now time.Time, lead time.Duration) ([]model.Workspace, error) {
	rows, err := s.q.Query(ctx, `
		select `+workspaceColumns+`
		from workspaces
		where status = 'active'
		  and export_notice_sent = false
		  and expires_at > $1
		  and expires_at <= $2`, now, now.Add(lead))
	if err != nil {
		return nil, err
	}
	return scanWorkspaces(rows)
}

func (s *workspaceStore) ListExpired(ctx context.Context, now time.Time) ([]model.Workspace, error) {
	rows, err := s.q.Query(ctx, `
		select `+workspaceColumns+`
		from workspaces
		where status in ('provisioning', 'active', 'stopping')
		  and expires_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	return scanWorkspaces(rows)
}

func (s *workspaceStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.q.Query(ctx, `select status, count(*) from workspaces group by status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[model.Status(status)] = count
	}
	return counts, rows.Err()
}

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var ws model.Workspace
	var plan, status string
	err := row.Scan(&ws.ID, &ws.Email, &plan, &ws.Subdomain, &ws.FQDN,
		&ws.ContainerName, &ws.VolumeName, &status, &ws.ExpiresAt,
		&ws.ExportNoticeSent, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ws.Plan = model.Plan(plan)
	ws.Status = model.Status(status)
	return &ws, nil
}

func scanWorkspaces(rows pgx.Rows) ([]model.Workspace, error) {
	defer rows.Close()
	var result []model.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ws)
	}
	return result, rows.Err()
}
