package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal/config"
)

type EmailOption func(*Email)

func WithEmailLogger(logger *zap.Logger) EmailOption {
	return func(e *Email) {
		e.logger = logger
	}
}

// Email sends the run summary over SMTP. The body is plain text or HTML
// depending on notify.html.
type Email struct {
	logger *zap.Logger
	cfg    config.Email
	html   bool

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg config.Email, html bool, opts ...EmailOption) *Email {
	e := &Email{
		logger: zap.NewNop(),
		cfg:    cfg,
		html:   html,
		send:   smtp.SendMail,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Email) Notify(ctx context.Context, subject, body string) error {
	contentType := "text/plain; charset=UTF-8"
	if e.html {
		contentType = "text/html; charset=UTF-8"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&msg, "\r\n%s\r\n", body)

	var auth smtp.Auth
	if e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.From, e.cfg.Password, e.cfg.Server)
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Server, e.cfg.Port)
	e.logger.Info("sending summary email",
		zap.String("server", addr),
		zap.Strings("to", e.cfg.To),
	)
	return e.send(addr, auth, e.cfg.From, e.cfg.To, []byte(msg.String()))
}

func (e *Email) Close() error {
	return nil
}
