// Package storetest provides an in-memory store double used by service,
// janitor and handler tests. It mirrors the compare-and-set semantics of the
// Postgres implementation, including unique-violation errors and advisory
// lock denials, so the callers' concurrency protocol is exercised without a
// database.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

// Memory implements store.StoreProvider and store.TxRunner over maps.
type Memory struct {
	mu         sync.Mutex
	workspaces map[int64]*model.Workspace
	payments   map[int64]*model.Payment
	users      map[string]*model.AppUser
	// HeldLocks marks workspace ids whose advisory lock should be reported
	// as held by someone else.
	HeldLocks map[int64]bool
}

func NewMemory() *Memory {
	return &Memory{
		workspaces: make(map[int64]*model.Workspace),
		payments:   make(map[int64]*model.Payment),
		users:      make(map[string]*model.AppUser),
		HeldLocks:  make(map[int64]bool),
	}
}

var (
	_ store.StoreProvider = (*Memory)(nil)
	_ store.TxRunner      = (*Memory)(nil)
)

func (m *Memory) WithTx(ctx context.Context, fn func(store.StoreProvider) error) error {
	return fn(m)
}

func (m *Memory) Workspaces() store.WorkspaceStore { return (*memWorkspaces)(m) }
func (m *Memory) Payments() store.PaymentStore     { return (*memPayments)(m) }
func (m *Memory) Users() store.UserStore           { return (*memUsers)(m) }

func (m *Memory) LockWorkspace(ctx context.Context, workspaceID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.HeldLocks[workspaceID], nil
}

// SeedWorkspace inserts a workspace row directly, bypassing validation.
func (m *Memory) SeedWorkspace(ws model.Workspace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[ws.ID] = &ws
}

// Workspace returns a copy of the row, or nil when it no longer exists.
func (m *Memory) Workspace(id int64) *model.Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil
	}
	copied := *ws
	return &copied
}

// Payment returns a copy of the payment with the given session id, or nil.
func (m *Memory) Payment(sessionID string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ExternalSessionID == sessionID {
			copied := *p
			return &copied
		}
	}
	return nil
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

type memWorkspaces Memory

func (s *memWorkspaces) GetByID(ctx context.Context, id int64) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *ws
	return &copied, nil
}

func (s *memWorkspaces) GetBySubdomain(ctx context.Context, subdomain string) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.Subdomain == subdomain {
			copied := *ws
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memWorkspaces) GetActiveByEmail(ctx context.Context, email string) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *model.Workspace
	for _, ws := range s.workspaces {
		if ws.Email != email || ws.Status == model.StatusDeleted {
			continue
		}
		if newest == nil || ws.CreatedAt.After(newest.CreatedAt) {
			newest = ws
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	copied := *newest
	return &copied, nil
}

func (s *memWorkspaces) ListByEmail(ctx context.Context, email string) ([]model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Workspace
	for _, ws := range s.workspaces {
		if ws.Email == email && ws.Status != model.StatusDeleted {
			result = append(result, *ws)
		}
	}
	return result, nil
}

func (s *memWorkspaces) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.Subdomain == subdomain {
			return true, nil
		}
	}
	return false, nil
}

func (s *memWorkspaces) Create(ctx context.Context, ws *model.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workspaces {
		if existing.Subdomain == ws.Subdomain || existing.ContainerName == ws.ContainerName {
			return uniqueViolation()
		}
	}
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	copied := *ws
	s.workspaces[ws.ID] = &copied
	return nil
}

func (s *memWorkspaces) UpdateStatus(ctx context.Context, id int64, from, to model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.Status != from {
		return store.ErrNotFound
	}
	ws.Status = to
	return nil
}

func (s *memWorkspaces) MarkActive(ctx context.Context, id int64, fqdn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.Status != model.StatusProvisioning {
		return store.ErrNotFound
	}
	ws.Status = model.StatusActive
	ws.FQDN = fqdn
	return nil
}

func (s *memWorkspaces) MarkExportNoticeSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.Status != model.StatusActive || ws.ExportNoticeSent {
		return store.ErrNotFound
	}
	ws.ExportNoticeSent = true
	return nil
}

func (s *memWorkspaces) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, id)
	return nil
}

func (s *memWorkspaces) ListExportDue(ctx context.Context, now time.Time, lead time.Duration) ([]model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Workspace
	for _, ws := range s.workspaces {
		if ws.Status == model.StatusActive && !ws.ExportNoticeSent &&
			ws.ExpiresAt.After(now) && !ws.ExpiresAt.After(now.Add(lead)) {
			result = append(result, *ws)
		}
	}
	return result, nil
}

func (s *memWorkspaces) ListExpired(ctx context.Context, now time.Time) ([]model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Workspace
	for _, ws := range s.workspaces {
		switch ws.Status {
		case model.StatusProvisioning, model.StatusActive, model.StatusStopping:
			if !ws.ExpiresAt.After(now) {
				result = append(result, *ws)
			}
		}
	}
	return result, nil
}

func (s *memWorkspaces) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.Status]int)
	for _, ws := range s.workspaces {
		counts[ws.Status]++
	}
	return counts, nil
}

type memPayments Memory

func (s *memPayments) GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ExternalSessionID == sessionID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memPayments) Create(ctx context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ExternalSessionID == payment.ExternalSessionID {
			return uniqueViolation()
		}
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	copied := *payment
	s.payments[payment.ID] = &copied
	return nil
}

func (s *memPayments) AttachWorkspace(ctx context.Context, id int64, workspaceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return store.ErrNotFound
	}
	p.WorkspaceID = &workspaceID
	return nil
}

func (s *memPayments) DetachWorkspace(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return store.ErrNotFound
	}
	p.WorkspaceID = nil
	return nil
}

type memUsers Memory

func (s *memUsers) GetByEmail(ctx context.Context, email string) (*model.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUsers) EnsureByEmail(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; !ok {
		s.users[email] = &model.AppUser{ID: int64(len(s.users) + 1), Email: email, CreatedAt: time.Now().UTC()}
	}
	return nil
}
