package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
)

// Connect opens a pgx pool against the configured Postgres instance and
// verifies connectivity before returning.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

const schema = `
create table if not exists app_users (
    id          bigint primary key,
    email       text not null unique,
    created_at  timestamptz not null default now()
);

create table if not exists payments (
    id                   bigint primary key,
    external_session_id  text not null unique,
    email                text not null,
    plan                 text not null,
    amount_cents         integer not null,
    workspace_id         bigint,
    created_at           timestamptz not null default now()
);

create table if not exists workspaces (
    id                  bigint primary key,
    email               text not null,
    plan                text not null,
    subdomain           text not null unique,
    fqdn                text not null,
    container_name      text not null unique,
    volume_name         text not null unique,
    status              text not null,
    expires_at          timestamptz not null,
    export_notice_sent  boolean not null default false,
    created_at          timestamptz not null default now()
);

create index if not exists idx_workspaces_email on workspaces (email);
create index if not exists idx_workspaces_expires_at on workspaces (expires_at);
`

// Migrate applies the schema. Statements are idempotent so this is safe to run
// on every startup from either process.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
