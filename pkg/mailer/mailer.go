package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// Enabled reports whether enough settings are present to deliver mail.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.Sender) != ""
}

// Message is one outbound plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// sendFunc matches (*email.Email).Send so tests can capture outgoing mail.
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// SMTPMailer delivers messages over SMTP.
type SMTPMailer struct {
	cfg    Config
	logger *zap.Logger
	send   sendFunc
}

// New constructs an SMTP mailer.
func New(cfg Config, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Send builds and delivers msg. The context is checked before dialing; the
// SMTP exchange itself is not cancellable.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = m.cfg.Sender
	e.To = msg.To
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(e, addr, auth); err != nil {
		m.logger.Error("failed to send email", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Info("email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
