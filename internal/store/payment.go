package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

const paymentColumns = `id, external_session_id, email, plan, amount_cents, workspace_id, created_at`

type paymentStore struct {
	q querier
}

func (s *paymentStore) GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	row := s.q.QueryRow(ctx, `select `+paymentColumns+` from payments where external_session_id = $1`, sessionID)
	return scanPayment(row)
}

func (s *paymentStore) Create(ctx context.Context, payment *model.Payment) error {
	row := s.q.QueryRow(ctx, `
		insert into payments (id, external_session_id, email, plan, amount_cents, workspace_id)
		values ($1, $2, $3, $4, $5, $6)
		returning `+paymentColumns,
		payment.ID, payment.ExternalSessionID, payment.Email, string(payment.Plan),
		payment.AmountCents, payment.WorkspaceID)
	created, err := scanPayment(row)
	if err != nil {
		return err
	}
	*payment = *created
	return nil
}

func (s *paymentStore) AttachWorkspace(ctx context.Context, id int64, workspaceID int64) error {
	tag, err := s.q.Exec(ctx, `update payments set workspace_id = $2 where id = $1`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *paymentStore) DetachWorkspace(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `update payments set workspace_id = null where id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var plan string
	err := row.Scan(&p.ID, &p.ExternalSessionID, &p.Email, &plan, &p.AmountCents, &p.WorkspaceID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Plan = model.Plan(plan)
	return &p, nil
}
