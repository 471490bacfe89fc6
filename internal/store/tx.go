package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx satisfied by both a pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoreProvider hands out stores bound to one querier. Inside a transaction,
// LockWorkspace additionally offers the per-row advisory lock that serializes
// the provisioner and janitor across processes.
type StoreProvider interface {
	Workspaces() WorkspaceStore
	Payments() PaymentStore
	Users() UserStore
	// LockWorkspace takes pg_try_advisory_xact_lock keyed by workspace id.
	// It returns false without blocking when another transaction holds the
	// row; the lock is released when the surrounding transaction ends.
	LockWorkspace(ctx context.Context, workspaceID int64) (bool, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(StoreProvider) error) error
}

type provider struct {
	q querier
}

func (p *provider) Workspaces() WorkspaceStore { return &workspaceStore{q: p.q} }
func (p *provider) Payments() PaymentStore     { return &paymentStore{q: p.q} }
func (p *provider) Users() UserStore           { return &userStore{q: p.q} }

func (p *provider) LockWorkspace(ctx context.Context, workspaceID int64) (bool, error) {
	var locked bool
	err := p.q.QueryRow(ctx, `select pg_try_advisory_xact_lock($1)`, workspaceID).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("acquiring workspace lock: %w", err)
	}
	return locked, nil
}

type txRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return &txRunner{pool: pool}
}

func (r *txRunner) WithTx(ctx context.Context, fn func(StoreProvider) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&provider{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Stores returns a provider bound directly to the pool for reads and
// single-statement writes that need no transaction.
func Stores(pool *pgxpool.Pool) StoreProvider {
	return &provider{q: pool}
}
