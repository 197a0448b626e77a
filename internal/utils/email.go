package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"bazaar_back_end/internal/config"
)

// Mail est un e-mail HTML avec une pièce jointe optionnelle.
type Mail struct {
	To             string
	Subject        string
	HTML           string
	Attachment     []byte
	AttachmentName string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPMailer envoie les e-mails par SMTP.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return err
	}
	if err := msg.To(m.To); err != nil {
		return err
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)

	if m.Attachment != nil {
		name := m.AttachmentName
		if name == "" {
			name = "facture.pdf"
		}
		if err := msg.AttachReader(name, bytes.NewReader(m.Attachment)); err != nil {
			return fmt.Errorf("pièce jointe: %w", err)
		}
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}

	zap.S().Infof("📤 Envoi de l'e-mail à %s", m.To)
	return client.DialAndSendWithContext(ctx, msg)
}

// LogMailer remplace SMTP en développement : l'e-mail est seulement journalisé.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Mail) error {
	zap.S().Infow("📭 SMTP non configuré, e-mail non envoyé", "to", m.To, "subject", m.Subject)
	return nil
}

// NewMailer choisit SMTP si un hôte est configuré.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg)
	}
	return LogMailer{}
}
