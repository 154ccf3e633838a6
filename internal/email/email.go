// Package email mails the report to each recipient over SMTP with a
// personalised unsubscribe link.
package email

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/retry"
)

type Config struct {
	Host     string
	Port     int
	UseTLS   bool // STARTTLS after EHLO
	Username string
	Password string

	From           string
	SubjectPrefix  string
	UnsubscribeURL string
	SecretKey      string
}

// Token is the hex HMAC-SHA256 of the address under secret.
func Token(secret, email string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

// UnsubscribeLink returns base?email=E&token=T, or "" without a base URL or
// secret.
func UnsubscribeLink(base, secret, email string) string {
	if base == "" || secret == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "email=" + url.QueryEscape(email) + "&token=" + Token(secret, email)
}

// Subject is "<prefix> News Report - YYYY-MM-DD".
func Subject(prefix string, day time.Time) string {
	return strings.TrimSpace(prefix + " News Report - " + day.Format("2006-01-02"))
}

const footerTemplate = `<div style="margin-top:24px;background-color:#f9f9f9;border-top:1px solid #eee;text-align:center;padding:15px 0;">
<a href="%s" style="display:inline-block;padding:10px 20px;background-color:#f44336;color:white;text-decoration:none;border-radius:5px;font-weight:bold;">Unsubscribe</a>
</div>`

// Body places the report in an HTML page and appends the unsubscribe
// footer. A report that is already a full document gets the footer
// inserted before </body>.
func Body(report, unsubscribe string) string {
	footer := ""
	if unsubscribe != "" {
		footer = fmt.Sprintf(footerTemplate, html.EscapeString(unsubscribe))
	}

	if i := strings.LastIndex(strings.ToLower(report), "</body>"); i >= 0 {
		return report[:i] + footer + report[i:]
	}

	var b strings.Builder
	b.WriteString(`<html><body style="font-family:Arial,sans-serif;line-height:1.5;color:#333;margin:0;padding:0;">`)
	b.WriteString("\n<div style=\"padding:20px;\">\n")
	b.WriteString(report)
	b.WriteString("\n</div>\n")
	b.WriteString(footer)
	b.WriteString("\n</body></html>")
	return b.String()
}

// BuildMessage assembles one quoted-printable HTML message for to.
func BuildMessage(from, to, subject, body, unsubscribe string, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithEncoding(mail.EncodingQP), mail.WithCharset(mail.CharsetUTF8))
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	domain := "localhost"
	if addrs := m.GetFrom(); len(addrs) > 0 {
		if _, d, ok := strings.Cut(addrs[0].Address, "@"); ok {
			domain = d
		}
	}

	m.Subject(subject)
	m.SetDateWithValue(now)
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domain)
	if unsubscribe != "" {
		m.SetGenHeaderPreformatted(mail.HeaderListUnsubscribe, "<"+unsubscribe+">")
	}
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

// transport is one open SMTP session.
type transport interface {
	Send(msg *mail.Msg) error
	Close() error
}

type Sender struct {
	cfg     Config
	dial    func(ctx context.Context, cfg Config) (transport, error)
	retry   retry.RetryConfig
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewSender(cfg Config) *Sender {
	return &Sender{
		cfg:  cfg,
		dial: dialSMTP,
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
			Backoff:     true,
		},
		now:     time.Now,
		metrics: metrics.Global,
		log:     logger.With("component", "email"),
	}
}

var ErrNoRecipients = errors.New("no recipients")

// Send mails report to every recipient over one SMTP session. A failed
// recipient is retried, then logged and skipped. It returns the number of
// messages delivered and an error only when nothing could be sent.
func (s *Sender) Send(ctx context.Context, report string, recipients []string) (int, error) {
	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return 0, fmt.Errorf("SMTP username or password not set")
	}

	conn, err := s.dial(ctx, s.cfg)
	if err != nil {
		return 0, fmt.Errorf("connecting to SMTP server: %w", err)
	}
	defer conn.Close()

	now := s.now()
	subject := Subject(s.cfg.SubjectPrefix, now)

	sent := 0
	var lastErr error
	for _, to := range recipients {
		link := UnsubscribeLink(s.cfg.UnsubscribeURL, s.cfg.SecretKey, to)
		msg, err := BuildMessage(s.cfg.From, to, subject, Body(report, link), link, now)
		if err != nil {
			lastErr = err
			s.log.Error("skipping recipient", "to", to, "error", err)
			continue
		}

		err = retry.WithRetry(ctx, s.retry, func() error {
			return conn.Send(msg)
		})
		if err != nil {
			lastErr = err
			s.log.Error("failed to send email", "to", to, "error", err)
			continue
		}
		sent++
		s.metrics.IncrementEmailsSent()
		s.log.Info("email sent", "to", to)
	}

	if sent == 0 && lastErr != nil {
		return 0, fmt.Errorf("no email delivered: %w", lastErr)
	}
	return sent, nil
}

type smtpTransport struct {
	client *mail.Client
}

// dialSMTP opens an authenticated session. UseTLS requires STARTTLS.
func dialSMTP(ctx context.Context, cfg Config) (transport, error) {
	policy := mail.NoTLS
	if cfg.UseTLS {
		policy = mail.TLSMandatory
	}

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return nil, err
	}
	return &smtpTransport{client: c}, nil
}

func (t *smtpTransport) Send(msg *mail.Msg) error {
	return t.client.Send(msg)
}

func (t *smtpTransport) Close() error {
	return t.client.Close()
}
