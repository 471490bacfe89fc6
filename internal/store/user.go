package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vulkanCommand/xcommand-n8n-rental/common/id"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

type userStore struct {
	q querier
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*model.AppUser, error) {
	var u model.AppUser
	err := s.q.QueryRow(ctx, `select id, email, created_at from app_users where email = $1`, email).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) EnsureByEmail(ctx context.Context, email string) error {
	_, err := s.q.Exec(ctx, `
		insert into app_users (id, email) values ($1, $2)
		on conflict (email) do nothing`, id.New(), email)
	return err
}
