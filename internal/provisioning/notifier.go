package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/logging"
)

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
	// Domain completes recipients given as bare user ids.
	Domain string
}

type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers notifications as plain-text email.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendMailFunc
	now  func() time.Time
}

// NewSMTPNotifier builds a notifier for cfg.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Recipient resolves a notification target to an email address.
func (n *SMTPNotifier) Recipient(to string) string {
	to = strings.TrimSpace(to)
	if strings.Contains(to, "@") || n.cfg.Domain == "" {
		return to
	}
	return to + "@" + strings.TrimPrefix(n.cfg.Domain, "@")
}

// Notify sends msg. The relay call does not observe ctx once started.
func (n *SMTPNotifier) Notify(ctx context.Context, msg application.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := n.Recipient(msg.To)
	if to == "" {
		return fmt.Errorf("provisioning: notification has no recipient")
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		host, _, err := net.SplitHostPort(n.cfg.Addr)
		if err != nil {
			return fmt.Errorf("provisioning: invalid smtp address %q: %w", n.cfg.Addr, err)
		}
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, host)
	}
	if err := n.send(n.cfg.Addr, auth, n.cfg.From, []string{to}, n.compose(to, msg)); err != nil {
		return fmt.Errorf("provisioning: sending mail to %s: %w", to, err)
	}
	return nil
}

func (n *SMTPNotifier) compose(to string, msg application.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogNotifier writes notifications to the log instead of sending them. It is
// used when no mail relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg application.Notification) error {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = n.logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

var (
	_ application.Notifier = (*SMTPNotifier)(nil)
	_ application.Notifier = (*LogNotifier)(nil)
)
