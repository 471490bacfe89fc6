// Package export produces the pre-expiry workspace snapshot and delivers it
// to the purchaser by email.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
)

// snapshot is the portable record of a workspace mailed to its purchaser
// shortly before teardown.
type snapshot struct {
	Subdomain  string    `json:"subdomain"`
	Address    string    `json:"address"`
	Plan       string    `json:"plan"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExportedAt time.Time `json:"exported_at"`
}

type MailNotifier struct {
	client *mail.Client
	from   string
}

func NewMailNotifier(cfg config.SMTPConfig) (*MailNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return &MailNotifier{client: client, from: cfg.From}, nil
}

func (n *MailNotifier) ExportAndNotify(ctx context.Context, ws *model.Workspace) error {
	snap, err := json.MarshalIndent(snapshot{
		Subdomain:  ws.Subdomain,
		Address:    ws.FQDN,
		Plan:       string(ws.Plan),
		ExpiresAt:  ws.ExpiresAt,
		ExportedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(ws.Email); err != nil {
		return fmt.Errorf("setting recipient %s: %w", ws.Email, err)
	}
	msg.Subject(fmt.Sprintf("Your workspace %s expires soon", ws.Subdomain))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your xCommand workspace %s expires at %s.\n\n"+
			"A snapshot of its configuration is attached. The workspace and all of\n"+
			"its data will be removed automatically when the lease ends.\n",
		ws.Subdomain, ws.ExpiresAt.UTC().Format(time.RFC1123)))
	if err := msg.AttachReader("workspace-export.json", bytes.NewReader(snap)); err != nil {
		return fmt.Errorf("attaching snapshot: %w", err)
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending export notice to %s: %w", ws.Email, err)
	}

	slog.InfoContext(ctx, "export notice sent", "workspace_id", ws.ID, "email", ws.Email)
	return nil
}

// LogNotifier is the development fallback when SMTP is not configured: the
// notice is logged and counted as delivered.
type LogNotifier struct{}

func (LogNotifier) ExportAndNotify(ctx context.Context, ws *model.Workspace) error {
	slog.InfoContext(ctx, "export notice (smtp disabled, logging only)",
		"workspace_id", ws.ID, "subdomain", ws.Subdomain, "email", ws.Email,
		"expires_at", ws.ExpiresAt)
	return nil
}
